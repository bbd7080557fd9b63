// Package session tracks live inbound connections for liveness reporting and
// coordinated teardown.
package session

import (
	"sort"
	"sync"
)

// Session is one live inbound connection
type Session interface {
	ID() string
	Close() error
}

// Registry holds the set of open sessions. It never gates frame
// processing; counts are point-in-time.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]Session),
	}
}

// Register adds s to the registry. Registering the same ID twice keeps the
// latest session.
func (r *Registry) Register(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID()] = s
}

// Unregister removes s. Unknown or already removed sessions are ignored.
func (r *Registry) Unregister(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Only remove the exact session; a reconnect may have reused the ID
	if current, ok := r.sessions[s.ID()]; ok && current == s {
		delete(r.sessions, s.ID())
	}
}

// Live returns the number of registered sessions
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// IDs returns the registered session IDs in sorted order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll asks every session to close, then clears the registry.
// Close is called outside the lock so sessions may unregister themselves.
// Errors from individual sessions are returned but do not stop the sweep.
func (r *Registry) CloseAll() []error {
	r.mu.Lock()
	snapshot := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.sessions = make(map[string]Session)
	r.mu.Unlock()

	var errs []error
	for _, s := range snapshot {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
