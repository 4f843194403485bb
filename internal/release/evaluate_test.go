package release

import (
	"testing"
	"time"

	"github.com/org/legacyvault/pkg/models"
)

var base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestDaysInactive(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		want int
	}{
		{"zero", 0, 0},
		{"just under a day", 24*time.Hour - time.Millisecond, 0},
		{"exactly one day", 24 * time.Hour, 1},
		{"sixty days", 60 * 24 * time.Hour, 60},
		{"clock went backwards", -time.Hour, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysInactive(base, base.Add(tt.gap)); got != tt.want {
				t.Errorf("DaysInactive = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	armed := models.ReleaseConditions{InactivityThresholdDays: 60, RequiredTrusteeCount: 1, LastActivity: base}
	day := 24 * time.Hour

	tests := []struct {
		name     string
		cond     models.ReleaseConditions
		elapsed  time.Duration
		trustees int
		want     Action
	}{
		{"59 days is not due", armed, 59 * day, 1, ActionNotDue},
		{"60 days is due (inclusive)", armed, 60 * day, 1, ActionRelease},
		{"60 days minus 1ms is not due", armed, 60*day - time.Millisecond, 1, ActionNotDue},
		{"no trustees", armed, 90 * day, 0, ActionNoTrustees},
		{"two required, one registered", models.ReleaseConditions{InactivityThresholdDays: 60, RequiredTrusteeCount: 2, LastActivity: base}, 90 * day, 1, ActionInsufficientTrustees},
		{"two required, two registered", models.ReleaseConditions{InactivityThresholdDays: 60, RequiredTrusteeCount: 2, LastActivity: base}, 90 * day, 2, ActionRelease},
		{"zero threshold falls back to default", models.ReleaseConditions{LastActivity: base}, 59 * day, 1, ActionNotDue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, d := Evaluate(tt.cond, base.Add(tt.elapsed), tt.trustees)
			if d.Action != tt.want {
				t.Fatalf("action = %s (%s), want %s", d.Action, d.Reason, tt.want)
			}
			if tt.want == ActionRelease {
				if !next.Released || next.ReleaseTimestamp == nil {
					t.Fatal("release must latch")
				}
				if !next.ReleaseTimestamp.Equal(base.Add(tt.elapsed)) {
					t.Errorf("release timestamp = %v", next.ReleaseTimestamp)
				}
			} else if next.Released {
				t.Error("non-release action must not latch")
			}
			if tt.cond.Released {
				t.Error("input must not be mutated")
			}
		})
	}
}

func TestEvaluateLatchIdempotent(t *testing.T) {
	ts := base.Add(100 * 24 * time.Hour)
	released := models.ReleaseConditions{
		InactivityThresholdDays: 60, RequiredTrusteeCount: 1, LastActivity: base,
		Released: true, ReleaseTimestamp: &ts,
	}
	for _, later := range []time.Duration{0, 24 * time.Hour, 365 * 24 * time.Hour} {
		next, d := Evaluate(released, ts.Add(later), 2)
		if d.Action != ActionAlreadyReleased {
			t.Fatalf("expected already released, got %s", d.Action)
		}
		if !next.Released || !next.ReleaseTimestamp.Equal(ts) {
			t.Error("released state must be unchanged")
		}
	}
}

func TestEvaluateSevenDayScenario(t *testing.T) {
	cond := models.ReleaseConditions{InactivityThresholdDays: 7, RequiredTrusteeCount: 1, LastActivity: base}

	cond, d := Evaluate(cond, base, 1)
	if d.Action != ActionNotDue {
		t.Fatalf("immediately: got %s, want not due", d.Action)
	}

	later := base.Add(8 * 24 * time.Hour)
	cond, d = Evaluate(cond, later, 1)
	if d.Action != ActionRelease || !cond.Released {
		t.Fatalf("after 8 days: got %s, released=%v", d.Action, cond.Released)
	}
	firstTS := *cond.ReleaseTimestamp

	cond, d = Evaluate(cond, later.Add(time.Hour), 1)
	if d.Action != ActionAlreadyReleased {
		t.Fatalf("second evaluation: got %s", d.Action)
	}
	if !cond.ReleaseTimestamp.Equal(firstTS) {
		t.Error("release timestamp must not change")
	}
}

func TestForce(t *testing.T) {
	cond := models.ReleaseConditions{InactivityThresholdDays: 60, RequiredTrusteeCount: 2, LastActivity: base}
	next, d := Force(cond, base.Add(time.Hour))
	if d.Action != ActionRelease || !next.Released {
		t.Fatalf("manual release should bypass conditions, got %s", d.Action)
	}
	_, d = Force(next, base.Add(2*time.Hour))
	if d.Action != ActionAlreadyReleased {
		t.Errorf("manual release must honour the latch, got %s", d.Action)
	}
}

func TestTouchIsMonotonic(t *testing.T) {
	cond := models.ReleaseConditions{LastActivity: base}
	if _, changed := Touch(cond, base.Add(-time.Minute)); changed {
		t.Error("activity must not move backwards")
	}
	if _, changed := Touch(cond, base); changed {
		t.Error("equal time is not a change")
	}
	next, changed := Touch(cond, base.Add(time.Minute))
	if !changed || !next.LastActivity.Equal(base.Add(time.Minute)) {
		t.Errorf("expected activity to advance, got %v", next.LastActivity)
	}
}
