package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"banter/server/internal/core"
	"banter/server/internal/fileq"
)

// session is the per-connection event loop. A reader goroutine parses
// commands off the socket; a writer goroutine is the connection's single
// socket writer, draining the notification channel. Everything the session
// sends to its own client, replies included, goes through the notification
// channel so the single-writer rule holds.
type session struct {
	srv        *Server
	conn       *core.Conn
	reader     *bufio.Reader
	writerDone chan struct{}
}

func (s *Server) runSession(conn *core.Conn, reader *bufio.Reader, started chan<- struct{}) {
	defer s.sessions.Done()

	sess := &session{
		srv:        s,
		conn:       conn,
		reader:     reader,
		writerDone: make(chan struct{}),
	}

	sess.logf("session started for user '%s'", conn.Handle)
	close(started)

	go sess.writePump()
	sess.readLoop()
	sess.teardown()
}

// writePump is the only goroutine that writes to the client socket. It exits
// when the notification channel closes (after draining what is buffered) or
// when a socket write fails.
func (sess *session) writePump() {
	defer close(sess.writerDone)
	notify := sess.conn.Notify
	for {
		select {
		case frame := <-notify.Frames():
			if _, err := sess.conn.Sock.Write(frame); err != nil {
				return
			}
		case <-notify.Done():
			for {
				select {
				case frame := <-notify.Frames():
					if _, err := sess.conn.Sock.Write(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// readLoop runs the session while it is RUNNING. Returning from it moves the
// session to DRAINING, handled by teardown.
func (sess *session) readLoop() {
	handle := sess.conn.Handle
	for {
		raw, err := sess.reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				sess.logf("User '%s' closed the connection.", handle)
			} else {
				sess.logf("Connection of user '%s' is over (read error).", handle)
			}
			return
		}
		line := strings.TrimRight(raw, "\r\n")
		verb, _, _ := strings.Cut(line, " ")

		sess.logf("User '%s' sent %s command", handle, verb)

		switch verb {
		case "/exit":
			sess.reply(replyExit)
			return
		case "/whisper":
			sess.handleWhisper(line)
		case "/join":
			sess.handleJoin(line)
		case "/leave":
			sess.handleLeave()
		case "/broadcast":
			sess.handleBroadcast(line)
		case "/sendfile":
			sess.handleSendfile(line)
		default:
			sess.reply(replyUnknownCommand)
			sess.logf("User '%s' sent unknown command.", handle)
		}
	}
}

func (sess *session) handleWhisper(line string) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
		sess.reply(replyWhisperUsage)
		return
	}
	target, msg := parts[1], parts[2]
	from := sess.conn.Handle

	tc, ok := sess.srv.registry.Lookup(target)
	if !ok {
		sess.reply(fmt.Sprintf("[ERROR] User '%s' not online.\n", target))
		sess.logf("User '%s' tried to whisper to offline user '%s'", from, target)
		return
	}
	if err := tc.Notify.Publish(formatMessage(from, msg)); err != nil {
		// The recipient is tearing down or backed up; not fatal for us.
		sess.logf("whisper from '%s' to '%s' dropped: %v", from, target, err)
		return
	}
	sess.logf("User '%s' sent whisper to %s", from, target)
}

func (sess *session) handleJoin(line string) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		sess.reply(replyJoinUsage)
		return
	}
	name := fields[1]
	conn := sess.conn

	if !validRoomName(name) {
		sess.reply(replyBadRoomName)
		sess.logf("User '%s' sent invalid room name %s", conn.Handle, name)
		return
	}

	// Joining while in a room leaves the old room first, the current one
	// included: /join X while in X is leave-then-join.
	if cur := conn.Room(); cur != nil {
		sess.leaveRoom(cur)
	}

	for {
		room, created, err := sess.srv.rooms.FindOrCreate(name)
		if err != nil {
			sess.reply(replyRoomSlotsFull)
			sess.logf("Room %s is not created. Room slots are full", name)
			return
		}
		if created {
			sess.logf("New room %s is created", name)
		}

		switch err := sess.srv.rooms.Join(room, conn); {
		case errors.Is(err, core.ErrRoomGone):
			// Destroyed between lookup and join; recreate.
			continue
		case errors.Is(err, core.ErrRoomFull):
			sess.reply(replyRoomFull)
			sess.logf("User '%s' could not join room %s. Room is full.", conn.Handle, name)
			return
		default:
			sess.reply(fmt.Sprintf("[OK] User %q joined the room: %s\n", conn.Handle, name))
			sess.logf("User '%s' joined the room %s.", conn.Handle, name)
			return
		}
	}
}

func (sess *session) handleLeave() {
	conn := sess.conn
	room := conn.Room()
	if room == nil {
		sess.reply(fmt.Sprintf("[INFO] User %q is not in any room\n", conn.Handle))
		sess.logf("User '%s' tried to leave a room but was not in any room.", conn.Handle)
		return
	}
	name := room.Name()
	sess.leaveRoom(room)
	sess.reply(fmt.Sprintf("[INFO] User %q left the room: %s\n", conn.Handle, name))
	sess.logf("User '%s' left the room %s.", conn.Handle, name)
}

// leaveRoom removes the session's connection from room and logs the
// departure, plus the destruction when it was the last member out.
func (sess *session) leaveRoom(room *core.Room) {
	destroyed := sess.srv.rooms.Leave(room, sess.conn)
	sess.logf("username %s removed from room %s", sess.conn.Handle, room.Name())
	if destroyed {
		sess.logf("The room %s was deleted because there was no one left in the room", room.Name())
	}
}

func (sess *session) handleBroadcast(line string) {
	_, msg, ok := strings.Cut(line, " ")
	if !ok || msg == "" {
		sess.reply(replyBroadcastUsage)
		return
	}
	conn := sess.conn
	room := conn.Room()
	if room == nil {
		sess.reply(replyNotInRoom)
		sess.logf("User '%s' tried to broadcast but was not in any room.", conn.Handle)
		return
	}
	delivered, dropped := room.Broadcast(formatMessage(conn.Handle, msg))
	sess.logf("User '%s' broadcast to room %s (delivered=%d dropped=%d)",
		conn.Handle, room.Name(), delivered, dropped)
}

func (sess *session) handleSendfile(line string) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		sess.reply(replySendfileUsage)
		return
	}
	filename := cleanFilename(fields[1])
	target := fields[2]

	size, ok := parseFileSize(fields[3])
	if !ok {
		// The payload is not read: the client only transmits it after
		// an accepted size.
		sess.reply(replyBadFileSize)
		return
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(sess.reader, payload); err != nil {
		sess.reply(replyShortFileData)
		sess.logf("User '%s' sent short file data for '%s' (%v)", sess.conn.Handle, filename, err)
		return
	}

	item := fileq.Item{
		Filename: filename,
		Data:     payload,
		Sender:   sess.conn.Handle,
		Target:   target,
	}

	// Informational probe: the enqueue below still blocks until a worker
	// makes room.
	if sess.srv.queue.IsFull() {
		sess.reply(fmt.Sprintf("[INFO] Upload queue is full. Your file '%s' will be queued.\n", filename))
	}
	if err := sess.srv.queue.Enqueue(item); err != nil {
		// Queue destroyed mid-shutdown; the session is about to be
		// closed out anyway.
		sess.logf("upload '%s' from %s dropped: %v", filename, sess.conn.Handle, err)
		return
	}

	sess.reply(fmt.Sprintf("[OK] File '%s' queued for sending to %s. Size: %d bytes.\n",
		filename, target, size))
	sess.srv.sink.Writef("[FILE-QUEUE] Upload '%s' from %s enqueued for %s.",
		filename, sess.conn.Handle, target)
}

// teardown runs the DRAINING state: leave any room, close the notification
// channel so producers fail fast, let the writer flush, close the socket and
// release the registry slot.
func (sess *session) teardown() {
	conn := sess.conn

	if room := conn.Room(); room != nil {
		sess.leaveRoom(room)
	}

	conn.Notify.Close()
	<-sess.writerDone
	conn.Sock.Close()

	if _, ok := sess.srv.registry.Remove(conn.Handle); ok {
		sess.logf("Connection of %s is deleted", conn.Handle)
	} else {
		sess.logf("Connection of %s could not be deleted", conn.Handle)
	}
	sess.logf("User %q has been disconnected and removed.", conn.Handle)
}

// reply queues a status line for this session's own client.
func (sess *session) reply(msg string) {
	if err := sess.conn.Notify.Publish([]byte(msg)); err != nil {
		sess.logf("reply to '%s' dropped: %v", sess.conn.Handle, err)
	}
}

// logf writes one session-tagged line to the event sink.
func (sess *session) logf(format string, args ...any) {
	sess.srv.sink.Write(fmt.Sprintf("[SESSION-INFO (SID: %s)] ", sess.conn.SID) +
		fmt.Sprintf(format, args...))
}
