// Package httpapi serves the optional admin surface: a health probe and a
// read-only snapshot of live server state. It is entirely separate from the
// chat wire protocol and is only started when an API address is configured.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"banter/server/internal/core"
	"banter/server/internal/fileq"
)

// RelayCounters exposes the upload pool's accumulated counters.
type RelayCounters interface {
	FilesRelayed() uint64
	FilesDropped() uint64
	BytesRelayed() uint64
}

// Server is the Echo application.
type Server struct {
	echo     *echo.Echo
	registry *core.Registry
	rooms    *core.Rooms
	queue    *fileq.Queue
	relay    RelayCounters
}

// New constructs the Echo app with the status routes registered.
func New(registry *core.Registry, rooms *core.Rooms, queue *fileq.Queue, relay RelayCounters) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, registry: registry, rooms: rooms, queue: queue, relay: relay}
	s.registerRoutes()
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/state", s.handleState)
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Clients: s.registry.Count(),
	})
}

type clientInfo struct {
	Handle      string    `json:"handle"`
	Room        string    `json:"room,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
}

type queueInfo struct {
	Depth    int `json:"depth"`
	Capacity int `json:"capacity"`
}

type relayInfo struct {
	FilesRelayed uint64 `json:"files_relayed"`
	FilesDropped uint64 `json:"files_dropped"`
	BytesRelayed uint64 `json:"bytes_relayed"`
	BytesHuman   string `json:"bytes_human"`
}

type stateResponse struct {
	Clients []clientInfo    `json:"clients"`
	Rooms   []core.RoomInfo `json:"rooms"`
	Queue   queueInfo       `json:"upload_queue"`
	Relay   relayInfo       `json:"relay"`
}

func (s *Server) handleState(c echo.Context) error {
	conns := s.registry.Snapshot()
	clients := make([]clientInfo, 0, len(conns))
	for _, conn := range conns {
		info := clientInfo{Handle: conn.Handle, ConnectedAt: conn.JoinedAt}
		if room := conn.Room(); room != nil {
			info.Room = room.Name()
		}
		clients = append(clients, info)
	}

	return c.JSON(http.StatusOK, stateResponse{
		Clients: clients,
		Rooms:   s.rooms.Snapshot(),
		Queue:   queueInfo{Depth: s.queue.Len(), Capacity: s.queue.Cap()},
		Relay: relayInfo{
			FilesRelayed: s.relay.FilesRelayed(),
			FilesDropped: s.relay.FilesDropped(),
			BytesRelayed: s.relay.BytesRelayed(),
			BytesHuman:   humanize.IBytes(s.relay.BytesRelayed()),
		},
	})
}
