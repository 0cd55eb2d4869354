package core

import (
	"errors"
	"fmt"
	"testing"
)

func newConn(handle string) *Conn {
	return NewConn(handle, "sid-"+handle, nil, 4)
}

func TestRegistryUniqueness(t *testing.T) {
	r := NewRegistry(16)
	if err := r.Reserve(newConn("alice")); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := r.Reserve(newConn("alice")); !errors.Is(err, ErrHandleTaken) {
		t.Fatalf("duplicate reserve: %v, want ErrHandleTaken", err)
	}
	if r.Count() != 1 {
		t.Fatalf("Count = %d, want 1", r.Count())
	}
}

func TestRegistryCeiling(t *testing.T) {
	r := NewRegistry(3)
	for i := 0; i < 3; i++ {
		if err := r.Reserve(newConn(fmt.Sprintf("u%d", i))); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	if err := r.Reserve(newConn("overflow")); !errors.Is(err, ErrServerFull) {
		t.Fatalf("reserve past ceiling: %v, want ErrServerFull", err)
	}

	// Removing one frees a slot.
	if _, ok := r.Remove("u0"); !ok {
		t.Fatal("remove of live handle failed")
	}
	if err := r.Reserve(newConn("overflow")); err != nil {
		t.Fatalf("reserve after free: %v", err)
	}
}

func TestRegistryLookupAndRemove(t *testing.T) {
	r := NewRegistry(8)
	c := newConn("bob")
	r.Reserve(c)

	got, ok := r.Lookup("bob")
	if !ok || got != c {
		t.Fatalf("Lookup returned %v, %v", got, ok)
	}
	if _, ok := r.Lookup("nobody"); ok {
		t.Fatal("Lookup of unknown handle succeeded")
	}

	removed, ok := r.Remove("bob")
	if !ok || removed != c {
		t.Fatal("Remove did not return the record")
	}
	if _, ok := r.Remove("bob"); ok {
		t.Fatal("second Remove of same handle succeeded")
	}
	if _, ok := r.Lookup("bob"); ok {
		t.Fatal("Lookup found a removed handle")
	}
}

func TestRegistrySnapshotSorted(t *testing.T) {
	r := NewRegistry(8)
	for _, h := range []string{"carol", "alice", "bob"} {
		r.Reserve(newConn(h))
	}
	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot len = %d, want 3", len(snap))
	}
	want := []string{"alice", "bob", "carol"}
	for i, c := range snap {
		if c.Handle != want[i] {
			t.Fatalf("snapshot[%d] = %q, want %q", i, c.Handle, want[i])
		}
	}
}
