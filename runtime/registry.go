// Package runtime holds the live session state and the routing of events
// between connected users. Durable state lives behind the repositories; this
// package only decides who is reachable and what gets pushed where.
package runtime

import (
	"chat-relay/contract"
	"sync"

	"github.com/samber/lo"
)

// Registry maps a user to the single connection currently reachable for
// live push. It is a derived index and never a source of truth for the
// durable online flag.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]contract.Connection // map user -> connection
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]contract.Connection)}
}

// Register makes conn the reachable connection of userID.
// Last registered wins: a previous connection of the same user stays open
// but is no longer routed to. The superseded connection is returned (nil if
// there was none) so the caller can notify it.
func (r *Registry) Register(userID string, conn contract.Connection) contract.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.sessions[userID]
	r.sessions[userID] = conn
	if previous != nil && previous.ID() == conn.ID() {
		return nil
	}
	return previous
}

func (r *Registry) Lookup(userID string) (contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.sessions[userID]
	return conn, ok
}

// Deregister removes userID only while it still points at conn.
// A disconnect of a superseded connection must not evict the newer one, so
// the mapping is compared by connection id. It reports whether it removed.
func (r *Registry) Deregister(userID string, conn contract.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[userID]
	if !ok || current.ID() != conn.ID() {
		return false
	}
	delete(r.sessions, userID)
	return true
}

// Snapshot copies the reachable connections for a broadcast.
// Connections registered or removed after the copy are not affected.
func (r *Registry) Snapshot() []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Values(r.sessions)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}
