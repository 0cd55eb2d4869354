package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"banter/server/internal/core"
	"banter/server/internal/fileq"
	"banter/server/internal/logfile"
)

// relayStats accumulates upload worker counters for the stats ticker and the
// status API.
type relayStats struct {
	filesRelayed atomic.Uint64
	filesDropped atomic.Uint64
	bytesRelayed atomic.Uint64
}

func (s *relayStats) FilesRelayed() uint64 { return s.filesRelayed.Load() }
func (s *relayStats) FilesDropped() uint64 { return s.filesDropped.Load() }
func (s *relayStats) BytesRelayed() uint64 { return s.bytesRelayed.Load() }

// Server owns the listener, the live-state registries, the upload queue and
// the worker pool, and orchestrates startup and shutdown.
type Server struct {
	addr     string
	sink     *logfile.Sink
	registry *core.Registry
	rooms    *core.Rooms
	queue    *fileq.Queue
	stats    relayStats

	stopping atomic.Bool
	workers  sync.WaitGroup
	sessions sync.WaitGroup

	// hsMu guards the socket currently blocked in a handshake read, so
	// shutdown can close it and unblock the accept loop.
	hsMu   sync.Mutex
	hsSock net.Conn

	// addrCh reports the bound listen address once, so callers that
	// listen on port 0 can learn the real port.
	addrCh chan net.Addr
}

// NewServer wires a server around the given listen address and event sink.
func NewServer(addr string, sink *logfile.Sink) *Server {
	return &Server{
		addr:     addr,
		sink:     sink,
		registry: core.NewRegistry(MaxConnections),
		rooms:    core.NewRooms(MaxRooms, RoomCapacity),
		queue:    fileq.New(UploadQueueCapacity),
		addrCh:   make(chan net.Addr, 1),
	}
}

// Run listens, accepts and serves clients until ctx is canceled, then drains
// workers and sessions. It returns nil on a clean shutdown and an error only
// for startup failure.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	s.startUploadWorkers()

	// Closing the listener unblocks Accept on shutdown; closing the
	// in-flight handshake socket, if any, unblocks its read the same way.
	go func() {
		<-ctx.Done()
		s.stopping.Store(true)
		ln.Close()
		s.hsMu.Lock()
		if s.hsSock != nil {
			s.hsSock.Close()
		}
		s.hsMu.Unlock()
	}()

	s.sink.Writef("[SERVER-INFO] Server listening on %s", ln.Addr())
	slog.Info("listening", "addr", ln.Addr().String())
	s.addrCh <- ln.Addr()

	for {
		sock, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() {
				break
			}
			// Transient accept failure: log and retry.
			s.sink.Write("[WARN] accept failed: client connection could not be established. Will retry.")
			slog.Warn("accept", "err", err)
			continue
		}

		s.sink.Writef("[SERVER-INFO] A client is connected from %s", sock.RemoteAddr())

		s.beginHandshake(sock)
		conn, reader, ok := s.handshake(sock)
		s.endHandshake()
		if !ok {
			continue
		}

		// Wait for the session's local init so its first log lines
		// carry the session ID before the next handshake proceeds.
		started := make(chan struct{})
		s.sessions.Add(1)
		go s.runSession(conn, reader, started)
		<-started

		s.sink.Writef("[SERVER-INFO] Messaging session (SID: %s) is created for %s.",
			conn.SID, conn.Handle)
	}

	s.shutdown()
	return nil
}

// beginHandshake publishes the socket the handshake is about to block on.
// The stopping re-check covers a cancellation that fired between Accept
// returning and the socket becoming visible here.
func (s *Server) beginHandshake(sock net.Conn) {
	s.hsMu.Lock()
	s.hsSock = sock
	s.hsMu.Unlock()
	if s.stopping.Load() {
		sock.Close()
	}
}

func (s *Server) endHandshake() {
	s.hsMu.Lock()
	s.hsSock = nil
	s.hsMu.Unlock()
}

// handshake reads proposed handles off the fresh socket until one validates
// and reserves a registry slot, re-prompting on the same socket after each
// rejection. The bufio reader is handed to the session so buffered bytes are
// not lost.
func (s *Server) handshake(sock net.Conn) (*core.Conn, *bufio.Reader, bool) {
	reader := bufio.NewReaderSize(sock, MaxLineLen)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if s.stopping.Load() {
				s.sink.Write("[SERVER-INFO] Handshake aborted by server shutdown.")
			} else {
				s.sink.Write("[SERVER-INFO] Client closed the connection during handshake.")
			}
			sock.Close()
			return nil, nil, false
		}
		handle := strings.TrimRight(line, "\r\n")

		if !validHandle(handle) {
			sock.Write([]byte(replyBadUsername))
			s.sink.Writef("[SERVER-INFO] %s sent an invalid username", sock.RemoteAddr())
			continue
		}

		conn := core.NewConn(handle, uuid.NewString()[:8], sock, NotifyBufFrames)
		switch err := s.registry.Reserve(conn); {
		case errors.Is(err, core.ErrHandleTaken):
			sock.Write([]byte(replyUsernameTaken))
			s.sink.Writef("[SERVER-INFO] %s sent an already taken username", sock.RemoteAddr())
			continue
		case errors.Is(err, core.ErrServerFull):
			sock.Write([]byte(replyServerFull))
			s.sink.Write("[SERVER-INFO] A client tried to connect when server is full.")
			continue
		}

		sock.Write([]byte(replyUsernameAccepted))
		s.sink.Writef("[OK] Username: %s accepted.", handle)
		return conn, reader, true
	}
}

// shutdown drains the process: sentinels stop the workers, every live client
// gets a goodbye before its endpoints close, then workers and sessions are
// joined.
func (s *Server) shutdown() {
	// One sentinel per worker; each worker exits on the first one it
	// dequeues.
	for i := 0; i < NumUploadWorkers; i++ {
		s.queue.Enqueue(fileq.Item{Sentinel: true})
	}

	for _, c := range s.registry.Snapshot() {
		// Direct socket write: the session's writer is about to be
		// torn down and must not be raced for ordering here.
		c.Sock.Write([]byte(replyGoodbye))
		c.Notify.Close()
		c.Sock.Close()
	}

	s.workers.Wait()

	// Destroying the queue before joining sessions unblocks any session
	// still parked in a blocking enqueue now that no worker will drain it.
	dropped := s.queue.Destroy()

	s.sessions.Wait()

	if dropped > 0 {
		s.sink.Writef("[FILE-QUEUE] %d pending upload(s) dropped at shutdown", dropped)
	}
	s.sink.Write("[SHUTDOWN] Server exiting gracefully.")
}
