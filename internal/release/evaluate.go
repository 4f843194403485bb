// Package release decides when the owner's information goes to trustees and
// performs the one-shot release.
package release

import (
	"fmt"
	"time"

	"github.com/org/legacyvault/pkg/models"
)

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// Action is the outcome of evaluating release conditions.
type Action string

const (
	ActionNotConfigured        Action = "not_configured"
	ActionNotDue               Action = "not_due"
	ActionNoTrustees           Action = "no_trustees"
	ActionInsufficientTrustees Action = "insufficient_trustees"
	ActionAlreadyReleased      Action = "already_released"
	ActionRelease              Action = "release"
)

// Decision explains an Action.
type Decision struct {
	Action        Action `json:"action"`
	DaysInactive  int    `json:"daysInactive"`
	ThresholdDays int    `json:"thresholdDays"`
	Reason        string `json:"reason"`
}

// DaysInactive is floor((now - last) / 1 day) in milliseconds.
func DaysInactive(last, now time.Time) int {
	ms := now.Sub(last).Milliseconds()
	d := ms / dayMillis
	if ms < 0 && ms%dayMillis != 0 {
		d--
	}
	return int(d)
}

// Evaluate is the release state machine. It never mutates its input; the
// returned conditions differ from c only when the action is ActionRelease.
func Evaluate(c models.ReleaseConditions, now time.Time, trusteeCount int) (models.ReleaseConditions, Decision) {
	threshold := c.InactivityThresholdDays
	if threshold <= 0 {
		threshold = models.DefaultInactivityDays
	}
	required := c.RequiredTrusteeCount
	if required <= 0 {
		required = models.DefaultRequiredTrustees
	}
	days := DaysInactive(c.LastActivity, now)
	d := Decision{DaysInactive: days, ThresholdDays: threshold}

	switch {
	case c.Released:
		d.Action = ActionAlreadyReleased
		d.Reason = "Information already released"
		return c, d
	case days < threshold:
		d.Action = ActionNotDue
		d.Reason = fmt.Sprintf("Only %d days since last activity (need %d)", days, threshold)
		return c, d
	case trusteeCount == 0:
		d.Action = ActionNoTrustees
		d.Reason = "No trustees configured"
		return c, d
	case trusteeCount < required:
		d.Action = ActionInsufficientTrustees
		d.Reason = fmt.Sprintf("Need %d trustee(s), but only %d configured", required, trusteeCount)
		return c, d
	}

	d.Action = ActionRelease
	d.Reason = fmt.Sprintf("Release conditions met after %d days of inactivity", days)
	return latch(c, now), d
}

// Force is the owner's manual override. It skips the inactivity and trustee
// checks but still honours the latch.
func Force(c models.ReleaseConditions, now time.Time) (models.ReleaseConditions, Decision) {
	d := Decision{
		DaysInactive:  DaysInactive(c.LastActivity, now),
		ThresholdDays: c.InactivityThresholdDays,
	}
	if c.Released {
		d.Action = ActionAlreadyReleased
		d.Reason = "Information already released"
		return c, d
	}
	d.Action = ActionRelease
	d.Reason = "Released manually by the account owner"
	return latch(c, now), d
}

// Touch moves LastActivity forward to now. It never moves it backwards.
func Touch(c models.ReleaseConditions, now time.Time) (models.ReleaseConditions, bool) {
	if !now.After(c.LastActivity) {
		return c, false
	}
	c.LastActivity = now.UTC()
	return c, true
}

func latch(c models.ReleaseConditions, now time.Time) models.ReleaseConditions {
	ts := now.UTC()
	c.Released = true
	c.ReleaseTimestamp = &ts
	return c
}
