// Package session exposes the signed-in trainer to the sync engine.
// Authentication itself happens elsewhere; the engine only reads the result.
package session

import (
	"strings"
	"sync"
)

// Session reports who the local trainer is and whether they are signed in.
type Session interface {
	Username() string
	Authenticated() bool
}

// Static is a Session whose values are set by the host application.
type Static struct {
	mu            sync.RWMutex
	username      string
	authenticated bool
}

// NewStatic creates a session for username.
func NewStatic(username string, authenticated bool) *Static {
	return &Static{username: strings.TrimSpace(username), authenticated: authenticated}
}

// Username returns the trainer name, or "" when unknown.
func (s *Static) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// Authenticated reports whether the trainer is signed in.
func (s *Static) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated && s.username != ""
}

// Set replaces both values.
func (s *Static) Set(username string, authenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = strings.TrimSpace(username)
	s.authenticated = authenticated
}

// SameUser compares trainer names the way the remote authority does.
func SameUser(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
