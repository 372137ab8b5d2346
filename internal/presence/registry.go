// Package presence tracks which users currently have at least one live
// realtime connection. The registry is the only shared mutable structure in
// the delivery core; its lock is held per call and never across I/O.
package presence

import "sync"

// Registry maps a user id to the set of its live connection ids. A user is
// online iff its set is non-empty. The state is process-local and derived:
// it is rebuilt from scratch by connections registering themselves, and is
// never persisted.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]map[string]struct{}),
	}
}

// Register adds connID to userID's connection set, creating the set if
// absent. Registering the same pair twice has no additional effect.
func (r *Registry) Register(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.users[userID] = conns
	}
	conns[connID] = struct{}{}
}

// Unregister removes connID from userID's set. When the set empties the user
// entry is removed entirely so online enumeration never reports users with
// zero connections. Unregistering a pair that was never registered is a
// no-op, which guards against double-disconnect races.
func (r *Registry) Unregister(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.users, userID)
	}
}

// ConnectionsFor returns a copy of userID's live connection ids. The result
// is empty, never nil, when the user has no connections.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userID]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

// OnlineUserIDs returns the ids of all users with at least one connection.
// Snapshot semantics: a concurrent register/unregister may or may not be
// reflected.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	return ids
}

// IsOnline reports whether userID has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// ConnectionCount returns the total number of live connections across all
// users.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, conns := range r.users {
		total += len(conns)
	}
	return total
}
