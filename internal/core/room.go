package core

import (
	"errors"
	"sort"
	"sync"
)

var (
	// ErrNoRoomSlot reports that the room registry is at its ceiling and
	// a new room cannot be created.
	ErrNoRoomSlot = errors.New("core: room slots exhausted")

	// ErrRoomFull reports a join against a room at member capacity.
	ErrRoomFull = errors.New("core: room full")

	// ErrRoomGone reports a join against a room destroyed between lookup
	// and join. Callers retry the find-or-create.
	ErrRoomGone = errors.New("core: room destroyed")
)

// Room is a named broadcast domain with a bounded member set. The room's own
// lock covers members and the defunct flag. A room exists in the registry iff
// it has at least one member; the last leave destroys it.
type Room struct {
	name     string
	capacity int

	mu      sync.Mutex
	members map[string]*Conn
	defunct bool
}

// Name returns the room's immutable name.
func (r *Room) Name() string { return r.name }

// MemberCount returns the current member count.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Broadcast publishes frame to every member's notification channel,
// the sender included. Delivery is best-effort per member: a full or closed
// channel drops that member's copy. Returns delivered and dropped counts.
// When Broadcast returns, every delivered copy is enqueued at its recipient.
func (r *Room) Broadcast(frame []byte) (delivered, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if err := m.Notify.Publish(frame); err != nil {
			dropped++
			continue
		}
		delivered++
	}
	return delivered, dropped
}

// Members returns the member handles, sorted.
func (r *Room) Members() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.members))
	for h := range r.members {
		out = append(out, h)
	}
	r.mu.Unlock()
	sort.Strings(out)
	return out
}

// RoomInfo is a point-in-time view of one room, for stats and the status API.
type RoomInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
}

// Rooms is the process-wide room registry. Its lock guards the name map;
// each room's lock guards that room's members. When both are needed (room
// destruction) the registry lock is taken first.
type Rooms struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	max     int
	roomCap int
}

// NewRooms returns an empty registry holding at most max rooms of roomCap
// members each.
func NewRooms(max, roomCap int) *Rooms {
	return &Rooms{
		rooms:   make(map[string]*Room, max),
		max:     max,
		roomCap: roomCap,
	}
}

// FindOrCreate returns the room named name, creating it if absent. The
// second result reports whether the room was created by this call. Fails
// with ErrNoRoomSlot when a new room is needed and all slots are taken.
func (rs *Rooms) FindOrCreate(name string) (*Room, bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if room, ok := rs.rooms[name]; ok {
		return room, false, nil
	}
	if len(rs.rooms) >= rs.max {
		return nil, false, ErrNoRoomSlot
	}
	room := &Room{
		name:     name,
		capacity: rs.roomCap,
		members:  make(map[string]*Conn, rs.roomCap),
	}
	rs.rooms[name] = room
	return room, true, nil
}

// Lookup returns the room named name if it currently exists.
func (rs *Rooms) Lookup(name string) (*Room, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	room, ok := rs.rooms[name]
	return room, ok
}

// Join adds c to room and sets the connection's room back-pointer, all under
// the room lock. Fails with ErrRoomFull at capacity and ErrRoomGone if the
// room was destroyed since lookup.
func (rs *Rooms) Join(room *Room, c *Conn) error {
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.defunct {
		return ErrRoomGone
	}
	if len(room.members) >= room.capacity {
		return ErrRoomFull
	}
	room.members[c.Handle] = c
	c.setRoom(room)
	return nil
}

// Leave removes c from room and clears the back-pointer iff it still refers
// to room. If the member set becomes empty the room is detached from the
// registry and marked defunct; Leave reports whether that happened.
func (rs *Rooms) Leave(room *Room, c *Conn) (destroyed bool) {
	room.mu.Lock()
	delete(room.members, c.Handle)
	empty := len(room.members) == 0
	room.mu.Unlock()

	c.clearRoom(room)

	if !empty {
		return false
	}

	// Destruction path: registry lock, then room lock. Emptiness is
	// re-checked because a join may have slipped in between.
	rs.mu.Lock()
	room.mu.Lock()
	if len(room.members) == 0 && rs.rooms[room.name] == room {
		delete(rs.rooms, room.name)
		room.defunct = true
		destroyed = true
	}
	room.mu.Unlock()
	rs.mu.Unlock()
	return destroyed
}

// Count returns the number of live rooms.
func (rs *Rooms) Count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.rooms)
}

// Snapshot returns a sorted view of all rooms, for stats and the status API.
func (rs *Rooms) Snapshot() []RoomInfo {
	rs.mu.Lock()
	rooms := make([]*Room, 0, len(rs.rooms))
	for _, r := range rs.rooms {
		rooms = append(rooms, r)
	}
	rs.mu.Unlock()

	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomInfo{Name: r.Name(), Members: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
