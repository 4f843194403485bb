package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_IssueValidate(t *testing.T) {
	s := NewTokenService(time.Minute)
	tok, exp, err := s.Issue()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	claims, err := s.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "owner", claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenService_NoSession(t *testing.T) {
	s := NewTokenService(time.Minute)
	_, err := s.Validate("anything")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTokenService_RotationInvalidatesOldToken(t *testing.T) {
	s := NewTokenService(time.Minute)
	old, _, err := s.Issue()
	require.NoError(t, err)
	fresh, _, err := s.Issue()
	require.NoError(t, err)

	_, err = s.Validate(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = s.Validate(fresh)
	assert.NoError(t, err)
}

func TestTokenService_Revoke(t *testing.T) {
	s := NewTokenService(time.Minute)
	tok, _, err := s.Issue()
	require.NoError(t, err)
	s.Revoke()
	_, err = s.Validate(tok)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTokenService_Expiry(t *testing.T) {
	s := NewTokenService(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }
	tok, _, err := s.Issue()
	require.NoError(t, err)

	assert.False(t, s.Expired())

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = s.Validate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.True(t, s.Expired())

	s.Revoke()
	assert.False(t, s.Expired())
	assert.True(t, s.ExpiresAt().IsZero())
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	s := NewTokenService(time.Minute)
	_, _, err := s.Issue()
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Validate(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Validate("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
