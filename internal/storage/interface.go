package storage

import (
	"context"
	"errors"

	"github.com/org/legacyvault/pkg/models"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when trying to create a resource that already exists.
var ErrAlreadyExists = errors.New("already exists")

// Store is the persistence boundary. It only ever sees ciphertext for entries.
type Store interface {
	// KDF settings are written once; only backup import replaces them.
	InitSettings(ctx context.Context, s *models.KDFSettings) error
	GetSettings(ctx context.Context) (*models.KDFSettings, error)
	ReplaceSettings(ctx context.Context, s *models.KDFSettings) error

	// Records
	PutRecord(ctx context.Context, r *models.EncryptedRecord) error
	GetRecord(ctx context.Context, id string) (*models.EncryptedRecord, error)
	DeleteRecord(ctx context.Context, id string) error
	ListRecords(ctx context.Context) ([]*models.EncryptedRecord, error)

	// Trustees
	PutTrustee(ctx context.Context, t *models.Trustee) error
	GetTrustee(ctx context.Context, id string) (*models.Trustee, error)
	DeleteTrustee(ctx context.Context, id string) error
	ListTrustees(ctx context.Context) ([]*models.Trustee, error)

	// Release conditions
	GetReleaseConditions(ctx context.Context) (*models.ReleaseConditions, error)
	PutReleaseConditions(ctx context.Context, c *models.ReleaseConditions) error

	// Email settings
	GetEmailSettings(ctx context.Context) (*models.EmailSettings, error)
	PutEmailSettings(ctx context.Context, s *models.EmailSettings) error

	// Metrics helpers
	CountRecords(ctx context.Context) (int64, error)

	// Lifecycle
	Close() error
}
