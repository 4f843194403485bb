package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenHeader carries the session token on API requests.
const TokenHeader = "X-Legacy-Token"

var (
	ErrNoSession    = errors.New("no active session")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims identify one unlock session.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService issues short-lived HS256 tokens for the unlocked session.
// Every Issue rotates the signing secret, so at most one session is valid.
type TokenService struct {
	mu      sync.RWMutex
	secret  []byte
	jti     string
	expires time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewTokenService creates a TokenService whose tokens live for ttl.
func NewTokenService(ttl time.Duration) *TokenService {
	return &TokenService{ttl: ttl, now: time.Now}
}

// Issue starts a new session and returns its signed token and expiry.
func (s *TokenService) Issue() (string, time.Time, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", time.Time{}, fmt.Errorf("generating token secret: %w", err)
	}
	now := s.now()
	exp := now.Add(s.ttl)
	jti := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   "owner",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	s.mu.Lock()
	s.secret, s.jti, s.expires = secret, jti, exp
	s.mu.Unlock()
	return signed, exp, nil
}

// Expired reports whether a session was issued and has outlived its TTL.
func (s *TokenService) Expired() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secret != nil && !s.now().Before(s.expires)
}

// ExpiresAt returns the current session's expiry, or the zero time.
func (s *TokenService) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expires
}

// Validate checks a token against the current session.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	s.mu.RLock()
	secret, jti := s.secret, s.jti
	s.mu.RUnlock()
	if secret == nil {
		return nil, ErrNoSession
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.ID != jti {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Revoke ends the current session.
func (s *TokenService) Revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.secret {
		s.secret[i] = 0
	}
	s.secret, s.jti, s.expires = nil, "", time.Time{}
}
