package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"banter/server/internal/core"
	"banter/server/internal/fileq"
)

type fakeCounters struct {
	files, dropped, bytes uint64
}

func (f fakeCounters) FilesRelayed() uint64 { return f.files }
func (f fakeCounters) FilesDropped() uint64 { return f.dropped }
func (f fakeCounters) BytesRelayed() uint64 { return f.bytes }

func newTestAPI(t *testing.T) (*Server, *core.Registry, *core.Rooms, *fileq.Queue) {
	t.Helper()
	registry := core.NewRegistry(16)
	rooms := core.NewRooms(16, 4)
	queue := fileq.New(4)
	api := New(registry, rooms, queue, fakeCounters{files: 3, dropped: 1, bytes: 4096})
	return api, registry, rooms, queue
}

func doGET(t *testing.T, api *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	api.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	api, registry, _, _ := newTestAPI(t)
	registry.Reserve(core.NewConn("alice", "s1", nil, 4))

	rec := doGET(t, api, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Clients != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestState(t *testing.T) {
	api, registry, rooms, queue := newTestAPI(t)

	alice := core.NewConn("alice", "s1", nil, 4)
	bob := core.NewConn("bob", "s2", nil, 4)
	registry.Reserve(alice)
	registry.Reserve(bob)

	room, _, _ := rooms.FindOrCreate("main")
	rooms.Join(room, alice)

	queue.TryEnqueue(fileq.Item{Filename: "a.txt", Data: []byte("x"), Sender: "alice", Target: "bob"})

	rec := doGET(t, api, "/api/state")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(resp.Clients) != 2 {
		t.Fatalf("clients = %d, want 2", len(resp.Clients))
	}
	if resp.Clients[0].Handle != "alice" || resp.Clients[0].Room != "main" {
		t.Fatalf("clients[0] = %+v", resp.Clients[0])
	}
	if resp.Clients[1].Handle != "bob" || resp.Clients[1].Room != "" {
		t.Fatalf("clients[1] = %+v", resp.Clients[1])
	}
	if len(resp.Rooms) != 1 || resp.Rooms[0].Name != "main" || resp.Rooms[0].Members != 1 {
		t.Fatalf("rooms = %+v", resp.Rooms)
	}
	if resp.Queue.Depth != 1 || resp.Queue.Capacity != 4 {
		t.Fatalf("queue = %+v", resp.Queue)
	}
	if resp.Relay.FilesRelayed != 3 || resp.Relay.FilesDropped != 1 || resp.Relay.BytesRelayed != 4096 {
		t.Fatalf("relay = %+v", resp.Relay)
	}
	if resp.Relay.BytesHuman == "" {
		t.Fatal("bytes_human missing")
	}
}
