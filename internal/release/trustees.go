package release

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/org/legacyvault/internal/storage"
	"github.com/org/legacyvault/pkg/models"
)

// ErrTrusteeLimit is returned when adding beyond models.MaxTrustees.
var ErrTrusteeLimit = fmt.Errorf("at most %d trustees can be registered", models.MaxTrustees)

// TrusteeService manages the people who receive a release.
type TrusteeService struct {
	// mu serializes writes so the limit check and insert happen together.
	mu    sync.Mutex
	store storage.Store
	now   func() time.Time
}

// NewTrusteeService creates a TrusteeService.
func NewTrusteeService(store storage.Store) *TrusteeService {
	return &TrusteeService{store: store, now: time.Now}
}

// List returns trustees in the order they were added.
func (s *TrusteeService) List(ctx context.Context) ([]*models.Trustee, error) {
	return s.store.ListTrustees(ctx)
}

// Add registers a new trustee with a fresh ID and AddedDate.
func (s *TrusteeService) Add(ctx context.Context, t *models.Trustee) (*models.Trustee, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.ListTrustees(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing trustees: %w", err)
	}
	if len(existing) >= models.MaxTrustees {
		return nil, ErrTrusteeLimit
	}
	nt := *t
	nt.ID = uuid.NewString()
	nt.AddedDate = s.now().UTC()
	if err := s.store.PutTrustee(ctx, &nt); err != nil {
		return nil, fmt.Errorf("saving trustee: %w", err)
	}
	return &nt, nil
}

// Update replaces a trustee's contact details. ID and AddedDate are preserved.
func (s *TrusteeService) Update(ctx context.Context, id string, t *models.Trustee) (*models.Trustee, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.store.GetTrustee(ctx, id)
	if err != nil {
		return nil, err
	}
	nt := *t
	nt.ID = cur.ID
	nt.AddedDate = cur.AddedDate
	if err := s.store.PutTrustee(ctx, &nt); err != nil {
		return nil, fmt.Errorf("saving trustee: %w", err)
	}
	return &nt, nil
}

// Remove deletes a trustee.
func (s *TrusteeService) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteTrustee(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return fmt.Errorf("removing trustee: %w", err)
	}
	return nil
}
