// Package fileq provides the bounded FIFO of pending file relays. Any number
// of producers (client sessions) and consumers (upload workers) may use a
// Queue concurrently. Worker shutdown is signalled in-band: one sentinel item
// is enqueued per worker, and a worker exits on the first sentinel it sees.
package fileq

import (
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a destroyed queue.
var ErrClosed = errors.New("fileq: queue destroyed")

// Item is one pending file relay. The payload buffer is owned by whoever
// holds the item: the producer until Enqueue returns, the queue while
// buffered, and the dequeuing worker afterwards.
type Item struct {
	Filename string
	Data     []byte
	Sender   string
	Target   string

	// Sentinel marks a shutdown item. Sentinels carry no payload.
	Sentinel bool
}

// Size returns the payload length in bytes.
func (it Item) Size() int { return len(it.Data) }

// Queue is a fixed-capacity FIFO. A buffered channel supplies the blocking
// enqueue/dequeue and strict FIFO ordering; the capacity is set at
// construction and never grows.
type Queue struct {
	ch        chan Item
	done      chan struct{}
	closeOnce sync.Once
}

// New returns an empty queue with the given capacity. Capacity must be at
// least 1.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:   make(chan Item, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue blocks while the queue is full. On return the queue owns the item.
func (q *Queue) Enqueue(it Item) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- it:
		return nil
	case <-q.done:
		return ErrClosed
	}
}

// TryEnqueue is the non-blocking variant; it reports false iff the queue is
// full or destroyed.
func (q *Queue) TryEnqueue(it Item) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.ch <- it:
		return true
	default:
		return false
	}
}

// Dequeue blocks while the queue is empty and transfers ownership of the
// returned item, payload included, to the caller.
func (q *Queue) Dequeue() (Item, error) {
	select {
	case it := <-q.ch:
		return it, nil
	case <-q.done:
		// Drain any residue so late enqueues are not lost silently.
		select {
		case it := <-q.ch:
			return it, nil
		default:
			return Item{}, ErrClosed
		}
	}
}

// IsFull is a snapshot probe. The answer is informational only: the state may
// change before a subsequent Enqueue.
func (q *Queue) IsFull() bool {
	return len(q.ch) == cap(q.ch)
}

// Len returns the current number of buffered items.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the fixed capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Destroy marks the queue closed and releases any payloads still buffered.
// It returns the number of non-sentinel items that were dropped. Destroy is
// idempotent in effect: later calls drop nothing.
func (q *Queue) Destroy() int {
	q.closeOnce.Do(func() { close(q.done) })
	dropped := 0
	for {
		select {
		case it := <-q.ch:
			if !it.Sentinel {
				it.Data = nil
				dropped++
			}
		default:
			return dropped
		}
	}
}
