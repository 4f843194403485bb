// Package audit records API access. Entries carry request metadata only,
// never entry contents.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one audited request.
type Entry struct {
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"requestId"`
	SessionID      string    `json:"sessionId,omitempty"`
	Operation      string    `json:"operation"`
	Path           string    `json:"path"`
	ResponseCode   int       `json:"responseCode"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
	ClientIP       string    `json:"clientIp"`
}

// Logger writes entries to a zerolog sink and keeps the most recent ones in memory.
type Logger struct {
	log zerolog.Logger

	mu     sync.Mutex
	recent []Entry
	next   int
	full   bool
}

// NewLogger creates a Logger that remembers up to keep entries.
func NewLogger(logger zerolog.Logger, keep int) *Logger {
	if keep <= 0 {
		keep = 1
	}
	return &Logger{log: logger.With().Str("component", "audit").Logger(), recent: make([]Entry, keep)}
}

// LogRequest records an API request.
func (l *Logger) LogRequest(_ context.Context, e *Entry) {
	e.Timestamp = time.Now().UTC()
	l.log.Info().
		Str("request_id", e.RequestID).
		Str("session", e.SessionID).
		Str("op", e.Operation).
		Str("path", e.Path).
		Int("code", e.ResponseCode).
		Int64("ms", e.ResponseTimeMs).
		Str("ip", e.ClientIP).
		Send()

	l.mu.Lock()
	l.recent[l.next] = *e
	l.next = (l.next + 1) % len(l.recent)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()
}

// Recent returns up to limit entries, newest first.
func (l *Logger) Recent(limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.recent)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Entry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (l.next - 1 - i + len(l.recent)) % len(l.recent)
		out = append(out, l.recent[idx])
	}
	return out
}
