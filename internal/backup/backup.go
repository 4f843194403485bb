// Package backup exports and imports the encrypted store as a single
// document and mails it to the owner on a schedule.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/org/legacyvault/internal/mail"
	"github.com/org/legacyvault/internal/storage"
	"github.com/org/legacyvault/pkg/models"
	"github.com/rs/zerolog"
)

const (
	Subject = "Legacy Organizer - Automatic Backup"

	dayMillis  = 24 * 60 * 60 * 1000
	dateLayout = "2006-01-02 15:04:05 MST"
)

// ErrInvalidFormat is returned by Parse when pages or settings are missing.
var ErrInvalidFormat = errors.New("invalid backup file format")

// Archiver keeps an off-site copy of each mailed backup.
type Archiver interface {
	Put(ctx context.Context, name string, data []byte) error
}

// Status reports what a scheduled check did.
type Status struct {
	ShouldSend bool   `json:"shouldSend"`
	Sent       bool   `json:"sent"`
	Reason     string `json:"reason,omitempty"`
	Filename   string `json:"filename,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ImportSummary counts what an import wrote.
type ImportSummary struct {
	Entries  int `json:"entries"`
	Trustees int `json:"trustees"`
}

// Service builds and restores backup documents.
type Service struct {
	store   storage.Store
	mailer  mail.Mailer
	archive Archiver
	log     zerolog.Logger
	now     func() time.Time
}

// NewService creates a Service. archive may be nil.
func NewService(store storage.Store, mailer mail.Mailer, archive Archiver, logger zerolog.Logger) *Service {
	return &Service{store: store, mailer: mailer, archive: archive, log: logger, now: time.Now}
}

// Filename names the document for the given day.
func Filename(t time.Time) string {
	return fmt.Sprintf("legacy-backup-%s.legacy", t.UTC().Format("2006-01-02"))
}

// Export collects everything needed to restore the store elsewhere. Entries
// stay encrypted.
func (s *Service) Export(ctx context.Context) (*models.Backup, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	pages, err := s.store.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading entries: %w", err)
	}
	trustees, err := s.store.ListTrustees(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading trustees: %w", err)
	}
	b := &models.Backup{
		Version:   models.BackupVersion,
		Timestamp: s.now().UTC(),
		Pages:     pages,
		Settings:  settings,
		Trustees:  trustees,
	}
	if b.Pages == nil {
		b.Pages = []*models.EncryptedRecord{}
	}
	if cond, err := s.store.GetReleaseConditions(ctx); err == nil {
		b.ReleaseConditions = cond
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading release conditions: %w", err)
	}
	if es, err := s.store.GetEmailSettings(ctx); err == nil {
		b.EmailSettings = es
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading email settings: %w", err)
	}
	return b, nil
}

// Marshal encodes b the way it is written to disk.
func Marshal(b *models.Backup) ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// Parse decodes a backup document and checks the mandatory sections.
func Parse(data []byte) (*models.Backup, error) {
	var b models.Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := Validate(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks that b can be imported.
func Validate(b *models.Backup) error {
	if b.Pages == nil || b.Settings == nil {
		return ErrInvalidFormat
	}
	if err := b.Settings.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	for _, t := range b.Trustees {
		if t == nil || t.ID == "" {
			return fmt.Errorf("%w: trustee without id", ErrInvalidFormat)
		}
	}
	if len(b.Trustees) > models.MaxTrustees {
		return fmt.Errorf("%w: %d trustees (at most %d)", ErrInvalidFormat, len(b.Trustees), models.MaxTrustees)
	}
	return nil
}

// Import writes b into the store. Writes are not transactional: a failure part
// way leaves the earlier writes in place.
func (s *Service) Import(ctx context.Context, b *models.Backup) (*ImportSummary, error) {
	if err := Validate(b); err != nil {
		return nil, err
	}
	if err := s.checkTrusteeRoom(ctx, b.Trustees); err != nil {
		return nil, err
	}
	if err := s.store.ReplaceSettings(ctx, b.Settings); err != nil {
		return nil, fmt.Errorf("restoring settings: %w", err)
	}
	sum := &ImportSummary{}
	for _, p := range b.Pages {
		rec := *p
		if rec.LastModified.IsZero() {
			rec.LastModified = s.now().UTC()
		}
		if err := s.store.PutRecord(ctx, &rec); err != nil {
			return sum, fmt.Errorf("restoring entry %s: %w", rec.ID, err)
		}
		sum.Entries++
	}
	for _, t := range b.Trustees {
		if err := s.store.PutTrustee(ctx, t); err != nil {
			return sum, fmt.Errorf("restoring trustee %s: %w", t.ID, err)
		}
		sum.Trustees++
	}
	if b.ReleaseConditions != nil {
		cond := *b.ReleaseConditions
		// An armed block without activity would read as decades of inactivity.
		if !cond.Released && cond.LastActivity.IsZero() {
			cond.LastActivity = s.now().UTC()
		}
		if err := s.store.PutReleaseConditions(ctx, &cond); err != nil {
			return sum, fmt.Errorf("restoring release conditions: %w", err)
		}
	}
	if b.EmailSettings != nil {
		if err := s.store.PutEmailSettings(ctx, b.EmailSettings); err != nil {
			return sum, fmt.Errorf("restoring email settings: %w", err)
		}
	}
	s.log.Info().Int("entries", sum.Entries).Int("trustees", sum.Trustees).Msg("backup imported")
	return sum, nil
}

// checkTrusteeRoom fails when the imported trustees together with the ones
// already stored would exceed models.MaxTrustees. It runs before any write.
func (s *Service) checkTrusteeRoom(ctx context.Context, incoming []*models.Trustee) error {
	existing, err := s.store.ListTrustees(ctx)
	if err != nil {
		return fmt.Errorf("loading trustees: %w", err)
	}
	ids := make(map[string]struct{}, len(existing)+len(incoming))
	for _, t := range existing {
		ids[t.ID] = struct{}{}
	}
	for _, t := range incoming {
		ids[t.ID] = struct{}{}
	}
	if len(ids) > models.MaxTrustees {
		return fmt.Errorf("%w: import would leave %d trustees (at most %d)", ErrInvalidFormat, len(ids), models.MaxTrustees)
	}
	return nil
}

// Due reports whether a scheduled backup should go out at now.
func Due(cfg *models.BackupEmail, now time.Time) (bool, int) {
	if cfg.LastSent == nil {
		return true, 0
	}
	freq := cfg.FrequencyDays
	if freq <= 0 {
		freq = models.DefaultBackupFrequencyDays
	}
	days := int(now.Sub(*cfg.LastSent).Milliseconds() / dayMillis)
	return days >= freq, days
}

// CheckAndSend mails a backup when one is due. LastSent only advances when
// delivery succeeds.
func (s *Service) CheckAndSend(ctx context.Context) (*Status, error) {
	es, err := s.store.GetEmailSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && (es.Backup == nil || es.Backup.Address == "")) {
		return &Status{Reason: "No backup email configured"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading email settings: %w", err)
	}

	now := s.now()
	due, days := Due(es.Backup, now)
	if !due {
		freq := es.Backup.FrequencyDays
		if freq <= 0 {
			freq = models.DefaultBackupFrequencyDays
		}
		return &Status{Reason: fmt.Sprintf("Last backup sent %d days ago (frequency: %d days)", days, freq)}, nil
	}
	return s.send(ctx, es, now)
}

// SendNow mails a backup regardless of the schedule.
func (s *Service) SendNow(ctx context.Context) (*Status, error) {
	es, err := s.store.GetEmailSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && (es.Backup == nil || es.Backup.Address == "")) {
		return nil, &models.ValidationError{Field: "backupEmail.email", Msg: "is not configured"}
	}
	if err != nil {
		return nil, fmt.Errorf("loading email settings: %w", err)
	}
	return s.send(ctx, es, s.now())
}

func (s *Service) send(ctx context.Context, es *models.EmailSettings, now time.Time) (*Status, error) {
	b, err := s.Export(ctx)
	if err != nil {
		return nil, err
	}
	data, err := Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encoding backup: %w", err)
	}
	name := Filename(now)
	st := &Status{ShouldSend: true, Filename: name}

	if s.archive != nil {
		if err := s.archive.Put(ctx, name, data); err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("archiving backup")
		}
	}

	err = s.mailer.Send(ctx, mail.Message{
		From:        es.FromAddress,
		To:          es.Backup.Address,
		Subject:     Subject,
		Text:        body(now),
		Attachments: []mail.Attachment{{Filename: name, Content: data}},
	})
	if err != nil {
		backupsSent.WithLabelValues("failed").Inc()
		s.log.Warn().Err(err).Msg("backup email failed")
		st.Error = err.Error()
		return st, nil
	}

	sent := now.UTC()
	es.Backup.LastSent = &sent
	if err := s.store.PutEmailSettings(ctx, es); err != nil {
		return nil, fmt.Errorf("recording backup time: %w", err)
	}
	backupsSent.WithLabelValues("sent").Inc()
	st.Sent = true
	return st, nil
}

func body(at time.Time) string {
	return "This is an automatic backup of your Legacy Organizer data.\n\n" +
		"Please find the backup file attached.\n\n" +
		"Backup generated on: " + at.UTC().Format(dateLayout) + "\n\n" +
		"You can import this backup file using the Import Backup feature in Legacy Organizer."
}
