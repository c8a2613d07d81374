package search

import (
	"sync"

	"github.com/poiesic/askit/core"
)

// Session carries the entity a conversation is currently about. Retrievals
// on the same session are serialized; separate sessions never interact.
type Session struct {
	mu     sync.Mutex
	entity core.EntityContext
	ttl    int
	idle   int
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithContextTTL forgets the entity after turns consecutive retrievals that
// did not refresh it. Zero or less keeps it until replaced.
func WithContextTTL(turns int) SessionOption {
	return func(s *Session) {
		s.ttl = max(turns, 0)
	}
}

// NewSession creates a session with no entity.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Context returns the current entity.
func (s *Session) Context() core.EntityContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entity
}

// Reset clears the entity.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entity = core.EntityContext{}
	s.idle = 0
}

// refresh and age must be called with mu held.
func (s *Session) refresh(entity core.EntityContext) {
	s.entity = entity
	s.idle = 0
}

func (s *Session) age() {
	if s.ttl == 0 || s.entity.IsEmpty() {
		return
	}
	s.idle++
	if s.idle >= s.ttl {
		s.entity = core.EntityContext{}
		s.idle = 0
	}
}
