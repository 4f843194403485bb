package models

import "time"

// KeyCheckID identifies the sentinel value encrypted at first run so that
// unlock can verify a password before touching any entry.
const KeyCheckID = "key-check"

// KDFSettings holds the key-derivation parameters. Written once at first run.
type KDFSettings struct {
	Salt       []byte `json:"salt"`
	Iterations int    `json:"iterations"`
	// KeyCheck is an encrypted copy of KeyCheckID under the derived key.
	KeyCheck      []byte    `json:"keyCheck,omitempty"`
	KeyCheckNonce []byte    `json:"keyCheckNonce,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Validate checks that the settings can be used to derive a key.
func (s *KDFSettings) Validate() error {
	if len(s.Salt) == 0 {
		return &ValidationError{Field: "salt", Msg: "is required"}
	}
	if s.Iterations <= 0 {
		return &ValidationError{Field: "iterations", Msg: "must be positive"}
	}
	return nil
}

const DefaultBackupFrequencyDays = 30

// BackupEmail configures the periodic backup mail.
type BackupEmail struct {
	Address       string     `json:"email"`
	FrequencyDays int        `json:"frequency"`
	LastSent      *time.Time `json:"lastSent,omitempty"`
}

// EmailSettings holds delivery preferences. The API key itself lives in the
// daemon configuration, never in the store.
type EmailSettings struct {
	FromAddress string       `json:"fromAddress,omitempty"`
	Backup      *BackupEmail `json:"backupEmail,omitempty"`
}

// Validate checks the backup block when present.
func (s *EmailSettings) Validate() error {
	if s.Backup == nil {
		return nil
	}
	if s.Backup.Address == "" {
		return &ValidationError{Field: "backupEmail.email", Msg: "is required"}
	}
	if s.Backup.FrequencyDays < 0 {
		return &ValidationError{Field: "backupEmail.frequency", Msg: "must not be negative"}
	}
	return nil
}
