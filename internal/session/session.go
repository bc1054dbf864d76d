// Package session holds the authenticated identity the composer acts under.
// The session is created once at login, handed to the backend client and
// orchestrator at construction, and closed at logout; nothing here is global.
package session

import (
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned for any use of a session after logout.
var ErrClosed = errors.New("session closed")

// Session is an explicit auth context for the persistence API.
type Session struct {
	mu        sync.RWMutex
	token     string
	user      string
	createdAt time.Time
	closed    bool
}

// New creates a live session with the given bearer token.
func New(token, user string) *Session {
	return &Session{
		token:     token,
		user:      user,
		createdAt: time.Now(),
	}
}

// Token returns the bearer token, or ErrClosed after logout.
func (s *Session) Token() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}
	return s.token, nil
}

// User returns the identity the session was opened for.
func (s *Session) User() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Close tears the session down. Subsequent Token calls fail.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.token = ""
	s.mu.Unlock()
}
