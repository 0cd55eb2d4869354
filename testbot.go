package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"
)

// RunTestBot connects a virtual client to addr, joins a room and broadcasts a
// counter message on a ticker until ctx is canceled. It exists for soak
// testing a running server without a real client attached.
func RunTestBot(ctx context.Context, addr, name string, interval time.Duration) {
	var conn net.Conn
	var err error
	for attempt := 0; attempt < 10; attempt++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
	if err != nil {
		slog.Warn("testbot dial failed", "addr", addr, "err", err)
		return
	}
	defer conn.Close()

	reader := bufio.NewReader(conn)
	if _, err := fmt.Fprintf(conn, "%s\n", name); err != nil {
		return
	}
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, "[OK]") {
		slog.Warn("testbot handshake rejected", "name", name, "reply", strings.TrimSpace(line))
		return
	}
	fmt.Fprintf(conn, "/join lobby\n")
	slog.Info("testbot connected", "name", name, "addr", addr)

	// Drain incoming traffic so the server's writer never backs up on us.
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			fmt.Fprintf(conn, "/exit\n")
			slog.Info("testbot disconnected", "name", name)
			return
		case <-ticker.C:
			if _, err := fmt.Fprintf(conn, "/broadcast beep %d\n", n); err != nil {
				return
			}
		}
	}
}
