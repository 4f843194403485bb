package release

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/org/legacyvault/internal/mail"
	"github.com/org/legacyvault/internal/secret"
	"github.com/org/legacyvault/internal/storage"
	"github.com/org/legacyvault/pkg/models"
	"github.com/rs/zerolog"
)

// Delivery is the per-trustee outcome of a release.
type Delivery struct {
	TrusteeID string `json:"trusteeId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// Result reports what a release check did.
type Result struct {
	Decision   Decision                  `json:"decision"`
	Released   bool                      `json:"released"`
	Deliveries []Delivery                `json:"deliveries,omitempty"`
	Conditions *models.ReleaseConditions `json:"conditions,omitempty"`
	// Bundle is only returned to the owner on manual release.
	Bundle string `json:"bundle,omitempty"`
}

// Controller owns every change to the persisted release conditions.
type Controller struct {
	mu     sync.Mutex
	store  storage.Store
	mailer mail.Mailer
	log    zerolog.Logger
	now    func() time.Time
}

// NewController creates a Controller.
func NewController(store storage.Store, mailer mail.Mailer, logger zerolog.Logger) *Controller {
	return &Controller{store: store, mailer: mailer, log: logger, now: time.Now}
}

// Conditions returns the persisted conditions, creating the defaults on first access.
func (c *Controller) Conditions(ctx context.Context) (*models.ReleaseConditions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadOrInit(ctx)
}

// UpdateConditions changes the threshold and trustee requirement. The latch
// and the activity timestamp are left as they are.
func (c *Controller) UpdateConditions(ctx context.Context, thresholdDays, requiredTrustees int) (*models.ReleaseConditions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cond, err := c.loadOrInit(ctx)
	if err != nil {
		return nil, err
	}
	cond.InactivityThresholdDays = thresholdDays
	cond.RequiredTrusteeCount = requiredTrustees
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	if err := c.store.PutReleaseConditions(ctx, cond); err != nil {
		return nil, fmt.Errorf("saving release conditions: %w", err)
	}
	return cond, nil
}

// TouchActivity records owner activity at the current time.
func (c *Controller) TouchActivity(ctx context.Context) (*models.ReleaseConditions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cond, err := c.loadOrInit(ctx)
	if err != nil {
		return nil, err
	}
	updated, changed := Touch(*cond, c.now())
	if !changed {
		return cond, nil
	}
	if err := c.store.PutReleaseConditions(ctx, &updated); err != nil {
		return nil, fmt.Errorf("saving activity: %w", err)
	}
	return &updated, nil
}

// CheckAndRelease evaluates the stored conditions once and, when they are
// met, releases to every trustee. key is the unlocked session key.
func (c *Controller) CheckAndRelease(ctx context.Context, key []byte) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cond, err := c.store.GetReleaseConditions(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return &Result{Decision: Decision{Action: ActionNotConfigured, Reason: "No release conditions configured"}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading release conditions: %w", err)
	}
	// Without a recorded activity there is nothing to measure inactivity from.
	if !cond.Released && cond.LastActivity.IsZero() {
		return &Result{Decision: Decision{Action: ActionNotConfigured, Reason: "No release conditions configured"}, Conditions: cond}, nil
	}
	trustees, err := c.store.ListTrustees(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading trustees: %w", err)
	}

	now := c.now()
	next, decision := Evaluate(*cond, now, len(trustees))
	if decision.Action != ActionRelease {
		c.log.Debug().Str("action", string(decision.Action)).Str("reason", decision.Reason).Msg("release not triggered")
		return &Result{Decision: decision, Conditions: cond}, nil
	}

	bundle, err := c.render(ctx, key, now, autoReleaseNote)
	if err != nil {
		return nil, err
	}
	subject, body := AutoReleaseEmail(decision, bundle, now)
	return c.commit(ctx, "inactivity", decision, next, trustees, subject, body, "")
}

// ReleaseNow performs the release immediately at the owner's request.
func (c *Controller) ReleaseNow(ctx context.Context, key []byte) (*Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cond, err := c.loadOrInit(ctx)
	if err != nil {
		return nil, err
	}
	trustees, err := c.store.ListTrustees(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading trustees: %w", err)
	}

	now := c.now()
	next, decision := Force(*cond, now)
	if decision.Action != ActionRelease {
		return &Result{Decision: decision, Conditions: cond}, nil
	}

	bundle, err := c.render(ctx, key, now, manualReleaseNote)
	if err != nil {
		return nil, err
	}
	subject, body := ManualReleaseEmail(bundle, now)
	return c.commit(ctx, "manual", decision, next, trustees, subject, body, bundle)
}

// Preview renders the bundle without sending or latching anything.
func (c *Controller) Preview(ctx context.Context, key []byte) (string, error) {
	return c.render(ctx, key, c.now(), manualReleaseNote)
}

// commit delivers to each trustee and closes the latch. Individual delivery
// failures are recorded but do not stop the latch. A missing mail
// configuration aborts before anything is sent or persisted.
func (c *Controller) commit(ctx context.Context, trigger string, decision Decision, next models.ReleaseConditions,
	trustees []*models.Trustee, subject, body, bundle string) (*Result, error) {
	from := c.fromAddress(ctx)
	deliveries := make([]Delivery, 0, len(trustees))
	for i, t := range trustees {
		d := Delivery{TrusteeID: t.ID, Name: t.Name, Email: t.Email}
		err := c.mailer.Send(ctx, mail.Message{From: from, To: t.Email, Subject: subject, Text: body})
		if err != nil && i == 0 && errors.Is(err, mail.ErrConfiguration) {
			return nil, err
		}
		if err != nil {
			deliveryFailures.Inc()
			d.Error = (&mail.DeliveryError{Recipient: t.Email, Err: err}).Error()
			c.log.Warn().Err(err).Str("trustee", t.ID).Msg("release delivery failed")
		} else {
			d.Delivered = true
		}
		deliveries = append(deliveries, d)
	}

	if err := c.store.PutReleaseConditions(ctx, &next); err != nil {
		return nil, fmt.Errorf("latching release: %w", err)
	}
	releasesTotal.WithLabelValues(trigger).Inc()
	c.log.Info().Str("trigger", trigger).Int("trustees", len(trustees)).Msg("information released")

	return &Result{
		Decision:   decision,
		Released:   true,
		Deliveries: deliveries,
		Conditions: &next,
		Bundle:     bundle,
	}, nil
}

func (c *Controller) render(ctx context.Context, key []byte, now time.Time, note string) (string, error) {
	recs, err := c.store.ListRecords(ctx)
	if err != nil {
		return "", fmt.Errorf("loading entries: %w", err)
	}
	entries := make([]BundleEntry, 0, len(recs))
	for _, rec := range recs {
		be := BundleEntry{Category: rec.Category}
		entry, err := secret.DecryptRecord(key, rec)
		if err != nil {
			c.log.Error().Err(err).Str("entry", rec.ID).Msg("decrypting entry for release")
			be.Err = err
		} else {
			be.Fields = entry.Fields
		}
		entries = append(entries, be)
	}
	return Render(entries, now, note), nil
}

func (c *Controller) loadOrInit(ctx context.Context) (*models.ReleaseConditions, error) {
	cond, err := c.store.GetReleaseConditions(ctx)
	if err == nil {
		return cond, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading release conditions: %w", err)
	}
	cond = models.DefaultReleaseConditions(c.now())
	if err := c.store.PutReleaseConditions(ctx, cond); err != nil {
		return nil, fmt.Errorf("initializing release conditions: %w", err)
	}
	return cond, nil
}

func (c *Controller) fromAddress(ctx context.Context) string {
	s, err := c.store.GetEmailSettings(ctx)
	if err != nil {
		return ""
	}
	return s.FromAddress
}
