package models

import "time"

const BackupVersion = "1.0"

// Backup is the export document. Pages and Settings are mandatory on import.
type Backup struct {
	Version           string             `json:"version"`
	Timestamp         time.Time          `json:"timestamp"`
	Pages             []*EncryptedRecord `json:"pages"`
	Settings          *KDFSettings       `json:"settings"`
	Trustees          []*Trustee         `json:"trustees,omitempty"`
	ReleaseConditions *ReleaseConditions `json:"releaseConditions,omitempty"`
	EmailSettings     *EmailSettings     `json:"emailSettings,omitempty"`
}
