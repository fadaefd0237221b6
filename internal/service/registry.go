package service

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps session codes to live sessions. Sessions share no mutable
// state; the registry lock only guards the map itself.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Get returns the session for code.
func (r *Registry) Get(code string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[code]
	return s, ok
}

// Add registers a session. Codes are unique.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.Code]; ok {
		return fmt.Errorf("%w: %s", ErrSessionExists, s.Code)
	}
	r.sessions[s.Code] = s
	return nil
}

// Remove drops a session from the registry.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	delete(r.sessions, code)
	r.mu.Unlock()
}

// Codes returns all registered session codes, sorted.
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for code := range r.sessions {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
