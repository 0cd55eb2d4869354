package core

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrHandleTaken reports a reservation for a handle that is already
	// live.
	ErrHandleTaken = errors.New("core: handle already taken")

	// ErrServerFull reports that all connection slots are occupied.
	ErrServerFull = errors.New("core: connection slots exhausted")
)

// Registry is the process-wide map from handle to live connection. A single
// lock guards the map; no operation blocks on per-connection activity while
// holding it.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Conn
	max   int
}

// NewRegistry returns an empty registry with a hard ceiling of max live
// entries.
func NewRegistry(max int) *Registry {
	return &Registry{
		conns: make(map[string]*Conn, max),
		max:   max,
	}
}

// Reserve inserts c under its handle. It fails with ErrHandleTaken if the
// handle is live and ErrServerFull if the ceiling is reached.
func (r *Registry) Reserve(c *Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.Handle]; ok {
		return ErrHandleTaken
	}
	if len(r.conns) >= r.max {
		return ErrServerFull
	}
	r.conns[c.Handle] = c
	return nil
}

// Lookup returns the live connection for handle. The returned record stays
// usable after the lock is released: its notification channel rejects
// publishes once the session has torn down, so holders need no further
// coordination with the registry.
func (r *Registry) Lookup(handle string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[handle]
	return c, ok
}

// Remove releases the slot for handle and returns the record for teardown.
// Removing an unknown handle is reported, not an error: disconnect paths may
// race.
func (r *Registry) Remove(handle string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[handle]
	if ok {
		delete(r.conns, handle)
	}
	return c, ok
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Snapshot returns the live connections sorted by handle. Used by shutdown to
// close every socket, and by the status API.
func (r *Registry) Snapshot() []*Conn {
	r.mu.Lock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}
