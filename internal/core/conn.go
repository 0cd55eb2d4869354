// Package core holds the server's live state: the connection registry, the
// room registry, and the per-connection notification channel. Everything here
// is safe for concurrent use; the locking rules are documented on each type.
//
// Lock order across the package, outermost first: connection registry, room
// registry, room, connection. A caller must never hold the connection
// registry lock while calling into the room subsystem.
package core

import (
	"errors"
	"net"
	"sync"
	"time"
)

// SendTimeout bounds how long publishing one frame to a notification channel
// may block when the consumer is slow.
const SendTimeout = 50 * time.Millisecond

var (
	// ErrNotifyClosed reports a publish to a channel whose consumer has
	// gone away. Producers treat it as non-fatal.
	ErrNotifyClosed = errors.New("core: notification channel closed")

	// ErrNotifySlow reports a publish that timed out against a live but
	// stalled consumer. The frame is dropped.
	ErrNotifySlow = errors.New("core: notification channel backed up")
)

// Notify is the per-connection notification duct: any number of producers
// append framed byte slices, exactly one consumer (the owning session loop)
// drains them in order. A frame is delivered whole or not at all; frames from
// one producer arrive in the order its Publish calls returned.
type Notify struct {
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewNotify returns a channel buffering up to buf frames.
func NewNotify(buf int) *Notify {
	if buf < 1 {
		buf = 1
	}
	return &Notify{
		ch:   make(chan []byte, buf),
		done: make(chan struct{}),
	}
}

// Publish appends one frame. It blocks up to SendTimeout when the buffer is
// full and fails with ErrNotifyClosed once the channel is closed. The caller
// must not modify frame afterwards.
func (n *Notify) Publish(frame []byte) error {
	select {
	case <-n.done:
		return ErrNotifyClosed
	default:
	}
	timer := time.NewTimer(SendTimeout)
	defer timer.Stop()
	select {
	case n.ch <- frame:
		return nil
	case <-n.done:
		return ErrNotifyClosed
	case <-timer.C:
		return ErrNotifySlow
	}
}

// Frames exposes the consumer side. Only the owning session loop may receive
// from it.
func (n *Notify) Frames() <-chan []byte { return n.ch }

// Done is closed when the channel is shut down.
func (n *Notify) Done() <-chan struct{} { return n.done }

// Close shuts the channel down. Idempotent. Frames already buffered remain
// readable so the consumer can drain before exiting.
func (n *Notify) Close() {
	n.closeOnce.Do(func() { close(n.done) })
}

// Conn is the record for one live client connection. It is created after a
// successful handshake and removed from the registry when its session loop
// exits. All fields except the room back-pointer are written only before the
// session loop starts; the back-pointer is maintained by the room registry.
type Conn struct {
	Handle   string
	SID      string // short correlation ID for log lines
	Sock     net.Conn
	Notify   *Notify
	JoinedAt time.Time

	mu   sync.Mutex
	room *Room
}

// NewConn builds a connection record around an accepted socket.
func NewConn(handle, sid string, sock net.Conn, notifyBuf int) *Conn {
	return &Conn{
		Handle:   handle,
		SID:      sid,
		Sock:     sock,
		Notify:   NewNotify(notifyBuf),
		JoinedAt: time.Now(),
	}
}

// Room returns the room this connection is currently a member of, or nil.
func (c *Conn) Room() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Conn) setRoom(r *Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}

// clearRoom resets the back-pointer iff it still refers to r, so a stale
// leave cannot clobber a newer join.
func (c *Conn) clearRoom(r *Room) {
	c.mu.Lock()
	if c.room == r {
		c.room = nil
	}
	c.mu.Unlock()
}
