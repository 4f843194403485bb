package secret

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/org/legacyvault/internal/core"
	"github.com/org/legacyvault/internal/crypto"
	"github.com/org/legacyvault/internal/storage"
	"github.com/org/legacyvault/pkg/models"
)

// RecordError reports an entry that could not be decrypted during a listing.
type RecordError struct {
	ID  string
	Err error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("entry %s: %v", e.ID, e.Err)
}

// RecordEngine encrypts entries under the session key before they reach the store.
type RecordEngine struct {
	store   storage.Store
	session *core.Session
	now     func() time.Time
}

// NewRecordEngine creates a RecordEngine.
func NewRecordEngine(store storage.Store, session *core.Session) *RecordEngine {
	return &RecordEngine{store: store, session: session, now: time.Now}
}

// Save encrypts e with a fresh nonce and upserts it. An empty ID creates a new entry.
func (e *RecordEngine) Save(ctx context.Context, entry *models.Entry) (*models.Entry, error) {
	if !entry.Category.Valid() {
		return nil, &models.ValidationError{Field: "category", Msg: fmt.Sprintf("unknown category %q", entry.Category)}
	}
	if !hasValue(entry.Fields) {
		return nil, &models.ValidationError{Field: "fields", Msg: "at least one field is required"}
	}

	key, err := e.session.Key()
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(key)

	ciphertext, nonce, err := crypto.Encrypt(key, entry.Fields)
	if err != nil {
		return nil, fmt.Errorf("encrypting entry: %w", err)
	}

	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	rec := &models.EncryptedRecord{
		ID:           id,
		Category:     entry.Category,
		CipherText:   ciphertext,
		Nonce:        nonce,
		LastModified: e.now().UTC(),
	}
	if err := e.store.PutRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing entry: %w", err)
	}
	return &models.Entry{ID: rec.ID, Category: rec.Category, Fields: entry.Fields, LastModified: rec.LastModified}, nil
}

// Get decrypts a single entry.
func (e *RecordEngine) Get(ctx context.Context, id string) (*models.Entry, error) {
	key, err := e.session.Key()
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(key)

	rec, err := e.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return DecryptRecord(key, rec)
}

// List decrypts every entry, optionally filtered by category. Entries that
// fail to decrypt are reported in the second return value; the rest still load.
func (e *RecordEngine) List(ctx context.Context, category models.Category) ([]*models.Entry, []RecordError, error) {
	key, err := e.session.Key()
	if err != nil {
		return nil, nil, err
	}
	defer crypto.Zero(key)

	recs, err := e.store.ListRecords(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing entries: %w", err)
	}
	entries := []*models.Entry{}
	var failed []RecordError
	for _, rec := range recs {
		if category != "" && rec.Category != category {
			continue
		}
		entry, err := DecryptRecord(key, rec)
		if err != nil {
			failed = append(failed, RecordError{ID: rec.ID, Err: err})
			continue
		}
		entries = append(entries, entry)
	}
	return entries, failed, nil
}

// Delete removes an entry.
func (e *RecordEngine) Delete(ctx context.Context, id string) error {
	if e.session.IsLocked() {
		return core.ErrLocked
	}
	return e.store.DeleteRecord(ctx, id)
}

// DecryptRecord opens rec under key.
func DecryptRecord(key []byte, rec *models.EncryptedRecord) (*models.Entry, error) {
	var fields map[string]any
	if err := crypto.Decrypt(key, rec.CipherText, rec.Nonce, &fields); err != nil {
		return nil, err
	}
	return &models.Entry{ID: rec.ID, Category: rec.Category, Fields: fields, LastModified: rec.LastModified}, nil
}

// IsRecordError reports whether err came from decrypting stored data rather than the store itself.
func IsRecordError(err error) bool {
	return errors.Is(err, crypto.ErrAuthentication) || errors.Is(err, crypto.ErrDecoding)
}

func hasValue(fields map[string]any) bool {
	for _, v := range fields {
		if s, ok := v.(string); ok {
			if s != "" {
				return true
			}
			continue
		}
		if v != nil {
			return true
		}
	}
	return false
}
