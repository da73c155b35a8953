// Package presence tracks which identities currently hold a live connection.
package presence

import (
	"sync"

	"github.com/zulandar/signalbox/internal/protocol"
)

// Handle is a live connection that events can be pushed to.
type Handle interface {
	// Key uniquely identifies the connection for the life of the process.
	Key() string
	// Push queues evt for delivery without blocking. It fails when the
	// connection is closed or cannot accept more events.
	Push(evt protocol.Event) error
}

// Registry maps identity ids to their single active connection.
// It is safe for concurrent use; no method performs I/O while holding the lock.
type Registry struct {
	mu    sync.RWMutex
	conns map[uint]Handle
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uint]Handle)}
}

// Register binds id to h, replacing any previous binding. The replaced
// handle, if any, is returned.
func (r *Registry) Register(id uint, h Handle) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[id]
	r.conns[id] = h
	return prev
}

// Unregister removes id's binding only if it is still h. It reports whether
// a binding was removed; a stale disconnect racing a newer connect is a no-op.
func (r *Registry) Unregister(id uint, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[id]
	if !ok || cur.Key() != h.Key() {
		return false
	}
	delete(r.conns, id)
	return true
}

// Lookup returns the handle bound to id.
func (r *Registry) Lookup(id uint) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.conns[id]
	return h, ok
}

// IsOnline reports whether id has a registered connection.
func (r *Registry) IsOnline(id uint) bool {
	_, ok := r.Lookup(id)
	return ok
}

// Snapshot returns a copy of the current bindings.
func (r *Registry) Snapshot() map[uint]Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[uint]Handle, len(r.conns))
	for id, h := range r.conns {
		out[id] = h
	}
	return out
}

// Len returns the number of online identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
