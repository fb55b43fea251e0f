// Package session holds the process-wide authentication state and the
// controller that bootstraps and mutates it.
package session

import (
	"sync"

	"staffconsole/internal/identityapi"
)

type ProbeState int

const (
	ProbePending ProbeState = iota
	ProbeResolved
)

func (p ProbeState) String() string {
	if p == ProbeResolved {
		return "resolved"
	}
	return "pending"
}

// Profile is the authenticated principal.
type Profile = identityapi.Profile

// Snapshot is an immutable copy of the session.
type Snapshot struct {
	Authenticated bool
	Principal     *Profile
	Probe         ProbeState
}

// Session is owned by the application root and handed to the guard and
// screens by pointer. Only the Controller mutates it.
type Session struct {
	mu        sync.RWMutex
	snap      Snapshot
	version   uint64
	resolved  chan struct{}
	closeOnce sync.Once
}

// New returns a pending, unauthenticated session.
func New() *Session {
	return &Session{resolved: make(chan struct{})}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	if out.Principal != nil {
		p := *out.Principal
		out.Principal = &p
	}
	return out
}

// Version increases on every mutation.
func (s *Session) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Resolved is closed once the probe outcome (or its skip) is known.
func (s *Session) Resolved() <-chan struct{} { return s.resolved }

// set replaces the principal and marks the session resolved. A nil
// principal means unauthenticated.
func (s *Session) set(p *Profile) {
	s.mu.Lock()
	if p != nil {
		cp := *p
		s.snap.Principal = &cp
		s.snap.Authenticated = true
	} else {
		s.snap.Principal = nil
		s.snap.Authenticated = false
	}
	s.snap.Probe = ProbeResolved
	s.version++
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.resolved) })
}
