package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/org/legacyvault/pkg/models"
)

// MemoryStore is an in-process Store. Nothing survives a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	settings   *models.KDFSettings
	records    map[string]models.EncryptedRecord
	trustees   map[string]models.Trustee
	conditions *models.ReleaseConditions
	email      *models.EmailSettings
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  map[string]models.EncryptedRecord{},
		trustees: map[string]models.Trustee{},
	}
}

func (m *MemoryStore) InitSettings(_ context.Context, s *models.KDFSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings != nil {
		return ErrAlreadyExists
	}
	cp := *s
	m.settings = &cp
	return nil
}

func (m *MemoryStore) GetSettings(_ context.Context) (*models.KDFSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return nil, ErrNotFound
	}
	cp := *m.settings
	return &cp, nil
}

func (m *MemoryStore) ReplaceSettings(_ context.Context, s *models.KDFSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.settings = &cp
	return nil
}

// --- Records ---

func (m *MemoryStore) PutRecord(_ context.Context, r *models.EncryptedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = *r
	return nil
}

func (m *MemoryStore) GetRecord(_ context.Context, id string) (*models.EncryptedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) DeleteRecord(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) ListRecords(_ context.Context) ([]*models.EncryptedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.EncryptedRecord, 0, len(m.records))
	for _, r := range m.records {
		r := r
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].LastModified.Before(out[j].LastModified)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) CountRecords(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.records)), nil
}

// --- Trustees ---

func (m *MemoryStore) PutTrustee(_ context.Context, t *models.Trustee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trustees[t.ID] = *t
	return nil
}

func (m *MemoryStore) GetTrustee(_ context.Context, id string) (*models.Trustee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trustees[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) DeleteTrustee(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trustees[id]; !ok {
		return ErrNotFound
	}
	delete(m.trustees, id)
	return nil
}

func (m *MemoryStore) ListTrustees(_ context.Context) ([]*models.Trustee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Trustee, 0, len(m.trustees))
	for _, t := range m.trustees {
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedDate.Equal(out[j].AddedDate) {
			return out[i].AddedDate.Before(out[j].AddedDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- Release conditions ---

func (m *MemoryStore) GetReleaseConditions(_ context.Context) (*models.ReleaseConditions, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conditions == nil {
		return nil, ErrNotFound
	}
	cp := *m.conditions
	if cp.ReleaseTimestamp != nil {
		ts := *cp.ReleaseTimestamp
		cp.ReleaseTimestamp = &ts
	}
	return &cp, nil
}

func (m *MemoryStore) PutReleaseConditions(_ context.Context, c *models.ReleaseConditions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	if cp.ReleaseTimestamp != nil {
		ts := *cp.ReleaseTimestamp
		cp.ReleaseTimestamp = &ts
	}
	m.conditions = &cp
	return nil
}

// --- Email settings ---

func (m *MemoryStore) GetEmailSettings(_ context.Context) (*models.EmailSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.email == nil {
		return nil, ErrNotFound
	}
	return copyEmailSettings(m.email), nil
}

func (m *MemoryStore) PutEmailSettings(_ context.Context, s *models.EmailSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.email = copyEmailSettings(s)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func copyEmailSettings(s *models.EmailSettings) *models.EmailSettings {
	cp := *s
	if s.Backup != nil {
		b := *s.Backup
		if b.LastSent != nil {
			ts := *b.LastSent
			b.LastSent = &ts
		}
		cp.Backup = &b
	}
	return &cp
}
