package release

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/org/legacyvault/internal/storage"
	"github.com/org/legacyvault/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrusteeService(t *testing.T) {
	ctx := context.Background()
	svc := NewTrusteeService(storage.NewMemoryStore())
	clock := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	_, err := svc.Add(ctx, &models.Trustee{Name: "No Email"})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email", ve.Field)

	ann, err := svc.Add(ctx, &models.Trustee{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, ann.ID)
	assert.True(t, ann.AddedDate.Equal(clock))

	clock = clock.Add(time.Hour)
	_, err = svc.Add(ctx, &models.Trustee{Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)

	_, err = svc.Add(ctx, &models.Trustee{Name: "Cat", Email: "cat@example.com"})
	assert.ErrorIs(t, err, ErrTrusteeLimit)

	clock = clock.Add(time.Hour)
	updated, err := svc.Update(ctx, ann.ID, &models.Trustee{ID: "ignored", Name: "Ann B", Email: "annb@example.com"})
	require.NoError(t, err)
	assert.Equal(t, ann.ID, updated.ID)
	assert.True(t, updated.AddedDate.Equal(ann.AddedDate))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ann B", list[0].Name)

	_, err = svc.Update(ctx, "missing", &models.Trustee{Name: "X", Email: "x@example.com"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, svc.Remove(ctx, ann.ID))
	assert.ErrorIs(t, svc.Remove(ctx, ann.ID), storage.ErrNotFound)

	_, err = svc.Add(ctx, &models.Trustee{Name: "Cat", Email: "cat@example.com"})
	assert.NoError(t, err, "slot frees up after removal")
}

func TestTrusteeServiceConcurrentAdd(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewTrusteeService(store)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Add(ctx, &models.Trustee{Name: fmt.Sprintf("T%d", i), Email: fmt.Sprintf("t%d@example.com", i)})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	ok, limited := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrTrusteeLimit):
			limited++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, models.MaxTrustees, ok)
	assert.Equal(t, workers-models.MaxTrustees, limited)

	list, err := store.ListTrustees(ctx)
	require.NoError(t, err)
	assert.Len(t, list, models.MaxTrustees)
}
