package core

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestNotifyPreservesProducerOrder(t *testing.T) {
	n := NewNotify(8)
	frames := [][]byte{[]byte("one\n"), []byte("two\n"), []byte("three\n")}
	for _, f := range frames {
		if err := n.Publish(f); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	for i, want := range frames {
		got := <-n.Frames()
		if !bytes.Equal(got, want) {
			t.Fatalf("frame %d: got %q, want %q", i, got, want)
		}
	}
}

func TestNotifyPublishAfterClose(t *testing.T) {
	n := NewNotify(4)
	n.Close()
	if err := n.Publish([]byte("late")); !errors.Is(err, ErrNotifyClosed) {
		t.Fatalf("publish after close: %v, want ErrNotifyClosed", err)
	}
	// Close is idempotent.
	n.Close()
}

func TestNotifyBufferedFramesSurviveClose(t *testing.T) {
	n := NewNotify(4)
	n.Publish([]byte("a"))
	n.Publish([]byte("b"))
	n.Close()

	if got := <-n.Frames(); string(got) != "a" {
		t.Fatalf("got %q, want a", got)
	}
	if got := <-n.Frames(); string(got) != "b" {
		t.Fatalf("got %q, want b", got)
	}
}

func TestNotifyPublishTimesOutWhenBackedUp(t *testing.T) {
	n := NewNotify(1)
	if err := n.Publish([]byte("fills the buffer")); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	err := n.Publish([]byte("no consumer"))
	if !errors.Is(err, ErrNotifySlow) {
		t.Fatalf("publish against stalled consumer: %v, want ErrNotifySlow", err)
	}
	if elapsed := time.Since(start); elapsed < SendTimeout {
		t.Fatalf("publish gave up after %v, before the %v timeout", elapsed, SendTimeout)
	}
}

func TestConnRoomBackPointer(t *testing.T) {
	c := NewConn("alice", "t1", nil, 4)
	if c.Room() != nil {
		t.Fatal("fresh connection should have no room")
	}

	r := &Room{name: "main", capacity: 2, members: map[string]*Conn{}}
	c.setRoom(r)
	if c.Room() != r {
		t.Fatal("setRoom did not take")
	}

	// Clearing against a different room is a no-op.
	other := &Room{name: "other", capacity: 2, members: map[string]*Conn{}}
	c.clearRoom(other)
	if c.Room() != r {
		t.Fatal("clearRoom with a stale room clobbered the pointer")
	}

	c.clearRoom(r)
	if c.Room() != nil {
		t.Fatal("clearRoom did not clear")
	}
}
