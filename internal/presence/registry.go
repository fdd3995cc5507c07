// Package presence tracks which users currently have at least one live
// connection. A user with several devices appears once; the registry reports
// only the 0→1 and 1→0 transitions so callers can broadcast online/offline
// events exactly once per transition.
package presence

import "sync"

// Registry is a process-wide map from user ID to the set of active
// connection handles for that user. It is constructed once at startup and
// injected into connection handlers; it is never a package-level singleton
// so tests can build a fresh one.
type Registry struct {
	mu      sync.Mutex
	handles map[string]map[string]struct{} // userID -> set of connection IDs
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handles: make(map[string]map[string]struct{}),
	}
}

// Register adds a connection handle to the user's set. It returns true when
// this is the user's first handle, i.e. the user just came online.
func (r *Registry) Register(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.handles[userID]
	if !ok {
		set = make(map[string]struct{})
		r.handles[userID] = set
	}
	set[connID] = struct{}{}
	return !ok
}

// Deregister removes a connection handle from the user's set. It returns
// true when the set became empty, i.e. the user just went offline; the
// entry is deleted in the same critical section so a userID is present iff
// its handle set is non-empty. Deregistering an unknown handle is a no-op.
func (r *Registry) Deregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.handles[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.handles, userID)
		return true
	}
	return false
}

// Online reports whether the user currently has at least one handle.
func (r *Registry) Online(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles[userID]) > 0
}

// OnlineUsers returns a snapshot of all user IDs with at least one handle.
func (r *Registry) OnlineUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]string, 0, len(r.handles))
	for id := range r.handles {
		users = append(users, id)
	}
	return users
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
