package release

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/org/legacyvault/internal/crypto"
	"github.com/org/legacyvault/internal/mail"
	"github.com/org/legacyvault/internal/storage"
	"github.com/org/legacyvault/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	fail map[string]error
}

func (f *fakeMailer) Send(_ context.Context, m mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[m.To]; err != nil {
		return err
	}
	f.sent = append(f.sent, m)
	return nil
}

type fixture struct {
	ctl    *Controller
	store  *storage.MemoryStore
	mailer *fakeMailer
	key    []byte
	clock  time.Time
}

func newFixture(t *testing.T, trustees ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:  storage.NewMemoryStore(),
		mailer: &fakeMailer{fail: map[string]error{}},
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	key, err := crypto.DeriveKey("correct horse", []byte("0123456789abcdef"), 1000)
	require.NoError(t, err)
	f.key = key

	f.ctl = NewController(f.store, f.mailer, zerolog.Nop())
	f.ctl.now = func() time.Time { return f.clock }

	for i, email := range trustees {
		require.NoError(t, f.store.PutTrustee(ctx, &models.Trustee{
			ID: fmt.Sprintf("t%d", i), Name: fmt.Sprintf("Trustee %d", i), Email: email,
			AddedDate: f.clock.Add(time.Duration(i) * time.Minute),
		}))
	}

	ct, nonce, err := crypto.Encrypt(key, map[string]any{"service": "Example Mail", "password": "hunter2"})
	require.NoError(t, err)
	require.NoError(t, f.store.PutRecord(ctx, &models.EncryptedRecord{
		ID: "r1", Category: models.CategoryDigitalAccounts, CipherText: ct, Nonce: nonce, LastModified: f.clock,
	}))
	return f
}

func (f *fixture) arm(t *testing.T, days, required int) {
	t.Helper()
	require.NoError(t, f.store.PutReleaseConditions(context.Background(), &models.ReleaseConditions{
		InactivityThresholdDays: days, RequiredTrusteeCount: required, LastActivity: f.clock,
	}))
}

func TestCheckAndRelease_NotConfigured(t *testing.T) {
	f := newFixture(t, "a@example.com")
	res, err := f.ctl.CheckAndRelease(context.Background(), f.key)
	require.NoError(t, err)
	assert.Equal(t, ActionNotConfigured, res.Decision.Action)
	assert.Empty(t, f.mailer.sent)
}

func TestCheckAndRelease_SevenDays(t *testing.T) {
	f := newFixture(t, "a@example.com")
	ctx := context.Background()
	f.arm(t, 7, 1)

	res, err := f.ctl.CheckAndRelease(ctx, f.key)
	require.NoError(t, err)
	assert.Equal(t, ActionNotDue, res.Decision.Action)
	assert.Empty(t, f.mailer.sent)

	f.clock = f.clock.Add(8 * 24 * time.Hour)
	res, err = f.ctl.CheckAndRelease(ctx, f.key)
	require.NoError(t, err)
	assert.True(t, res.Released)
	assert.Empty(t, res.Bundle, "automatic release never returns the bundle")
	require.Len(t, f.mailer.sent, 1)
	msg := f.mailer.sent[0]
	assert.Equal(t, "a@example.com", msg.To)
	assert.Equal(t, AutoReleaseSubject, msg.Subject)
	assert.Contains(t, msg.Text, "Service: Example Mail")
	assert.Contains(t, msg.Text, "Password: hunter2")
	assert.Contains(t, msg.Text, "inactive for 8 days (threshold: 7 days)")

	stored, err := f.store.GetReleaseConditions(ctx)
	require.NoError(t, err)
	assert.True(t, stored.Released)
	require.NotNil(t, stored.ReleaseTimestamp)
	assert.True(t, stored.ReleaseTimestamp.Equal(f.clock))

	f.clock = f.clock.Add(time.Hour)
	res, err = f.ctl.CheckAndRelease(ctx, f.key)
	require.NoError(t, err)
	assert.Equal(t, ActionAlreadyReleased, res.Decision.Action)
	assert.Len(t, f.mailer.sent, 1, "second evaluation must not send again")
}

func TestCheckAndRelease_InsufficientTrustees(t *testing.T) {
	f := newFixture(t, "a@example.com")
	f.arm(t, 60, 2)
	f.clock = f.clock.Add(90 * 24 * time.Hour)

	res, err := f.ctl.CheckAndRelease(context.Background(), f.key)
	require.NoError(t, err)
	assert.Equal(t, ActionInsufficientTrustees, res.Decision.Action)
	assert.Equal(t, "Need 2 trustee(s), but only 1 configured", res.Decision.Reason)
	assert.Empty(t, f.mailer.sent)
}

func TestCheckAndRelease_DeliveryFailureStillLatches(t *testing.T) {
	f := newFixture(t, "a@example.com", "b@example.com")
	f.mailer.fail["a@example.com"] = errors.New("mailbox full")
	f.arm(t, 60, 1)
	f.clock = f.clock.Add(60 * 24 * time.Hour)

	res, err := f.ctl.CheckAndRelease(context.Background(), f.key)
	require.NoError(t, err)
	assert.True(t, res.Released)
	require.Len(t, res.Deliveries, 2)
	assert.False(t, res.Deliveries[0].Delivered)
	assert.Contains(t, res.Deliveries[0].Error, "mailbox full")
	assert.True(t, res.Deliveries[1].Delivered)

	stored, _ := f.store.GetReleaseConditions(context.Background())
	assert.True(t, stored.Released)
}

func TestCheckAndRelease_ConfigurationErrorAborts(t *testing.T) {
	f := newFixture(t, "a@example.com")
	f.mailer.fail["a@example.com"] = fmt.Errorf("%w: no key", mail.ErrConfiguration)
	f.arm(t, 7, 1)
	f.clock = f.clock.Add(8 * 24 * time.Hour)

	_, err := f.ctl.CheckAndRelease(context.Background(), f.key)
	assert.ErrorIs(t, err, mail.ErrConfiguration)

	stored, _ := f.store.GetReleaseConditions(context.Background())
	assert.False(t, stored.Released, "latch must stay open so the release can be retried")
}

func TestCheckAndRelease_UndecryptableEntry(t *testing.T) {
	f := newFixture(t, "a@example.com")
	require.NoError(t, f.store.PutRecord(context.Background(), &models.EncryptedRecord{
		ID: "bad", Category: models.CategoryKeyContacts, CipherText: []byte("junk"),
		Nonce: make([]byte, crypto.NonceSize), LastModified: f.clock,
	}))
	f.arm(t, 1, 1)
	f.clock = f.clock.Add(48 * time.Hour)

	res, err := f.ctl.CheckAndRelease(context.Background(), f.key)
	require.NoError(t, err)
	assert.True(t, res.Released)
	assert.Contains(t, f.mailer.sent[0].Text, "[Error decrypting entry]")
	assert.Contains(t, f.mailer.sent[0].Text, "Service: Example Mail")
}

func TestReleaseNow(t *testing.T) {
	f := newFixture(t, "a@example.com")
	ctx := context.Background()

	res, err := f.ctl.ReleaseNow(ctx, f.key)
	require.NoError(t, err)
	assert.True(t, res.Released)
	assert.Contains(t, res.Bundle, "LEGACY ORGANIZER - INFORMATION RELEASE")
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, ManualReleaseSubject, f.mailer.sent[0].Subject)

	res, err = f.ctl.ReleaseNow(ctx, f.key)
	require.NoError(t, err)
	assert.Equal(t, ActionAlreadyReleased, res.Decision.Action)
	assert.Len(t, f.mailer.sent, 1)
}

func TestReleaseNow_NoTrustees(t *testing.T) {
	f := newFixture(t)
	res, err := f.ctl.ReleaseNow(context.Background(), f.key)
	require.NoError(t, err)
	assert.True(t, res.Released)
	assert.Empty(t, res.Deliveries)
	assert.NotEmpty(t, res.Bundle)
}

func TestPreviewHasNoSideEffects(t *testing.T) {
	f := newFixture(t, "a@example.com")
	f.arm(t, 7, 1)
	out, err := f.ctl.Preview(context.Background(), f.key)
	require.NoError(t, err)
	assert.Contains(t, out, "DIGITAL ACCOUNTS")
	assert.Empty(t, f.mailer.sent)
	stored, _ := f.store.GetReleaseConditions(context.Background())
	assert.False(t, stored.Released)
}

func TestTouchAndUpdateConditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cond, err := f.ctl.Conditions(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultInactivityDays, cond.InactivityThresholdDays)
	assert.Equal(t, models.DefaultRequiredTrustees, cond.RequiredTrusteeCount)

	f.clock = f.clock.Add(3 * time.Hour)
	cond, err = f.ctl.TouchActivity(ctx)
	require.NoError(t, err)
	assert.True(t, cond.LastActivity.Equal(f.clock))

	f.clock = f.clock.Add(-time.Hour)
	cond, err = f.ctl.TouchActivity(ctx)
	require.NoError(t, err)
	assert.True(t, cond.LastActivity.Equal(f.clock.Add(time.Hour)), "activity never moves backwards")

	cond, err = f.ctl.UpdateConditions(ctx, 14, 2)
	require.NoError(t, err)
	assert.Equal(t, 14, cond.InactivityThresholdDays)
	assert.Equal(t, 2, cond.RequiredTrusteeCount)

	_, err = f.ctl.UpdateConditions(ctx, 0, 1)
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
	_, err = f.ctl.UpdateConditions(ctx, 7, 3)
	assert.ErrorAs(t, err, &ve)
}

func TestRefreshActivityStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.ctl.RefreshActivity(ctx, time.Millisecond, func() bool { return false })
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh loop did not stop")
	}
}

func TestCheckAndRelease_ZeroActivityIsNotConfigured(t *testing.T) {
	f := newFixture(t, "a@example.com")
	ctx := context.Background()
	require.NoError(t, f.store.PutReleaseConditions(ctx, &models.ReleaseConditions{
		InactivityThresholdDays: 60, RequiredTrusteeCount: 1,
	}))

	res, err := f.ctl.CheckAndRelease(ctx, f.key)
	require.NoError(t, err)
	assert.Equal(t, ActionNotConfigured, res.Decision.Action)
	assert.False(t, res.Released)
	assert.Empty(t, f.mailer.sent)

	stored, err := f.store.GetReleaseConditions(ctx)
	require.NoError(t, err)
	assert.False(t, stored.Released, "the latch stays open")
}
