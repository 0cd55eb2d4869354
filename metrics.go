package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

// RunStats logs server-wide gauges and relay counters every interval until
// ctx is canceled. A non-positive interval disables it.
func (s *Server) RunStats(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Info("stats",
				"clients", s.registry.Count(),
				"rooms", s.rooms.Count(),
				"queue", s.queue.Len(),
				"files_relayed", s.stats.FilesRelayed(),
				"files_dropped", s.stats.FilesDropped(),
				"bytes_relayed", humanize.IBytes(s.stats.BytesRelayed()),
			)
		}
	}
}
