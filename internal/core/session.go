package core

import (
	"errors"
	"sync"
	"time"

	"github.com/org/legacyvault/internal/crypto"
)

// ErrLocked is returned when the session key is requested while locked.
var ErrLocked = errors.New("session is locked")

// Session holds the password-derived key in memory while the owner is logged in.
// The key is never persisted and is zeroed on Lock.
type Session struct {
	mu         sync.RWMutex
	key        []byte
	unlockedAt time.Time
}

// NewSession creates a Session in locked state.
func NewSession() *Session {
	return &Session{}
}

// IsLocked reports whether no key is held.
func (s *Session) IsLocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key == nil
}

// UnlockedAt returns when the current key was installed, or the zero time.
func (s *Session) UnlockedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unlockedAt
}

// Unlock installs key, replacing and wiping any previous one. The session
// takes a private copy so the caller may zero its own slice.
func (s *Session) Unlock(key []byte, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	crypto.Zero(s.key)
	s.key = append([]byte(nil), key...)
	s.unlockedAt = now
}

// Lock wipes the key from memory.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	crypto.Zero(s.key)
	s.key = nil
	s.unlockedAt = time.Time{}
}

// Key returns a copy of the session key. Callers should zero it when done.
func (s *Session) Key() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, ErrLocked
	}
	keyCopy := make([]byte, len(s.key))
	copy(keyCopy, s.key)
	return keyCopy, nil
}
