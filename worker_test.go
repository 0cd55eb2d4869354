package main

import (
	"bytes"
	"testing"
	"time"

	"banter/server/internal/core"
	"banter/server/internal/fileq"
	"banter/server/internal/logfile"
)

func newBareServer(t *testing.T) *Server {
	t.Helper()
	sink, err := logfile.Open(t.TempDir(), false)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return NewServer("127.0.0.1:0", sink)
}

func TestRelayFileDelivers(t *testing.T) {
	srv := newBareServer(t)
	bob := core.NewConn("bob", "s1", nil, 4)
	srv.registry.Reserve(bob)

	payload := []byte("file contents here")
	srv.relayFile(fileq.Item{
		Filename: "doc.txt",
		Data:     payload,
		Sender:   "alice",
		Target:   "bob",
	})

	frame := <-bob.Notify.Frames()
	want := append([]byte("[FILE doc.txt 18 alice]\n"), payload...)
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame = %q, want %q", frame, want)
	}
	if srv.stats.FilesRelayed() != 1 || srv.stats.BytesRelayed() != uint64(len(payload)) {
		t.Fatalf("stats = relayed %d, bytes %d", srv.stats.FilesRelayed(), srv.stats.BytesRelayed())
	}
}

func TestRelayFileUnknownRecipient(t *testing.T) {
	srv := newBareServer(t)
	srv.relayFile(fileq.Item{Filename: "doc.txt", Data: []byte("x"), Sender: "alice", Target: "ghost"})

	if srv.stats.FilesDropped() != 1 {
		t.Fatalf("FilesDropped = %d, want 1", srv.stats.FilesDropped())
	}
	if srv.stats.FilesRelayed() != 0 {
		t.Fatalf("FilesRelayed = %d, want 0", srv.stats.FilesRelayed())
	}
}

func TestRelayFileClosedRecipient(t *testing.T) {
	srv := newBareServer(t)
	bob := core.NewConn("bob", "s1", nil, 4)
	srv.registry.Reserve(bob)
	bob.Notify.Close()

	srv.relayFile(fileq.Item{Filename: "doc.txt", Data: []byte("x"), Sender: "alice", Target: "bob"})
	if srv.stats.FilesDropped() != 1 {
		t.Fatalf("FilesDropped = %d, want 1", srv.stats.FilesDropped())
	}
}

func TestWorkersDrainThenStopOnSentinel(t *testing.T) {
	srv := newBareServer(t)
	bob := core.NewConn("bob", "s1", nil, UploadQueueCapacity+1)
	srv.registry.Reserve(bob)

	srv.startUploadWorkers()
	for i := 0; i < 3; i++ {
		if err := srv.queue.Enqueue(fileq.Item{
			Filename: "f.bin", Data: []byte("d"), Sender: "alice", Target: "bob",
		}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	for i := 0; i < NumUploadWorkers; i++ {
		srv.queue.Enqueue(fileq.Item{Sentinel: true})
	}

	done := make(chan struct{})
	go func() {
		srv.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not stop on sentinels")
	}

	if got := srv.stats.FilesRelayed(); got != 3 {
		t.Fatalf("FilesRelayed = %d, want 3", got)
	}
	for i := 0; i < 3; i++ {
		select {
		case <-bob.Notify.Frames():
		default:
			t.Fatalf("frame %d missing from recipient channel", i)
		}
	}
}
