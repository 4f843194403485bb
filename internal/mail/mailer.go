// Package mail delivers release bundles and backup archives by email.
package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// DefaultFrom is used when neither the message nor the settings name a sender.
const DefaultFrom = "Legacy Organizer <onboarding@resend.dev>"

// ErrConfiguration means delivery credentials are missing. Nothing was sent.
var ErrConfiguration = errors.New("mail delivery is not configured")

// Attachment is a file sent alongside a message.
type Attachment struct {
	Filename string
	Content  []byte
}

// Message is one email to one recipient.
type Message struct {
	From        string
	To          string
	Subject     string
	Text        string
	Attachments []Attachment
}

// Mailer sends a single message. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// DeliveryError wraps a failure to deliver to one recipient.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering to %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// LogMailer writes messages to a logger instead of sending them. Bodies are
// not logged since they carry decrypted data.
type LogMailer struct {
	Log zerolog.Logger
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	names := make([]string, len(msg.Attachments))
	for i, a := range msg.Attachments {
		names[i] = a.Filename
	}
	m.Log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("body_bytes", len(msg.Text)).
		Strs("attachments", names).
		Msg("mail suppressed (log driver)")
	return nil
}
