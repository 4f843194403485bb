package models

import "time"

const (
	// MaxTrustees caps how many trustees may be registered.
	MaxTrustees = 2

	DefaultInactivityDays   = 60
	DefaultRequiredTrustees = 1
)

// Trustee is a contact who receives released information.
type Trustee struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	Relationship string    `json:"relationship,omitempty"`
	AddedDate    time.Time `json:"addedDate"`
}

// Validate checks the required trustee fields.
func (t *Trustee) Validate() error {
	if t.Name == "" {
		return &ValidationError{Field: "name", Msg: "is required"}
	}
	if t.Email == "" {
		return &ValidationError{Field: "email", Msg: "is required"}
	}
	return nil
}

// ReleaseConditions is the persisted state of the release latch.
type ReleaseConditions struct {
	InactivityThresholdDays int        `json:"inactivityThresholdDays"`
	RequiredTrusteeCount    int        `json:"requiredTrusteeCount"`
	LastActivity            time.Time  `json:"lastActivity"`
	Released                bool       `json:"released"`
	ReleaseTimestamp        *time.Time `json:"releaseTimestamp,omitempty"`
}

// DefaultReleaseConditions returns armed conditions with activity at now.
func DefaultReleaseConditions(now time.Time) *ReleaseConditions {
	return &ReleaseConditions{
		InactivityThresholdDays: DefaultInactivityDays,
		RequiredTrusteeCount:    DefaultRequiredTrustees,
		LastActivity:            now.UTC(),
	}
}

// Validate checks the user-editable fields.
func (c *ReleaseConditions) Validate() error {
	if c.InactivityThresholdDays < 1 {
		return &ValidationError{Field: "inactivityThresholdDays", Msg: "must be at least 1"}
	}
	if c.RequiredTrusteeCount < 1 || c.RequiredTrusteeCount > MaxTrustees {
		return &ValidationError{Field: "requiredTrusteeCount", Msg: "must be 1 or 2"}
	}
	return nil
}
