package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultResendEndpoint is the Resend send-email API.
const DefaultResendEndpoint = "https://api.resend.com/emails"

// ResendMailer sends mail through the Resend HTTP API.
type ResendMailer struct {
	apiKey   string
	endpoint string
	from     string
	http     *http.Client
}

// NewResendMailer builds a mailer. An empty apiKey is accepted here and
// reported as ErrConfiguration on Send, so the daemon can start without mail.
func NewResendMailer(apiKey, endpoint, from string) *ResendMailer {
	if endpoint == "" {
		endpoint = DefaultResendEndpoint
	}
	if from == "" {
		from = DefaultFrom
	}
	return &ResendMailer{
		apiKey:   apiKey,
		endpoint: endpoint,
		from:     from,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type resendAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type resendRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	Text        string             `json:"text"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

// Send posts msg to Resend. Any non-2xx response is a DeliveryError.
func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	if m.apiKey == "" {
		return fmt.Errorf("%w: Resend API key not configured", ErrConfiguration)
	}
	from := msg.From
	if from == "" {
		from = m.from
	}
	body := resendRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Text,
	}
	for _, a := range msg.Attachments {
		body.Attachments = append(body.Attachments, resendAttachment{
			Filename: a.Filename,
			Content:  base64.StdEncoding.EncodeToString(a.Content),
		})
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding resend request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building resend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.http.Do(req)
	if err != nil {
		return &DeliveryError{Recipient: msg.To, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &DeliveryError{Recipient: msg.To, Err: fmt.Errorf("resend returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(detail))}
	}
	return nil
}
