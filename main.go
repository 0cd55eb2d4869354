package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"banter/server/internal/httpapi"
	"banter/server/internal/logfile"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("banter-server", flag.ContinueOnError)
	logsDir := fs.String("logs-dir", LogDirectory, "Directory for per-run event logs")
	apiAddr := fs.String("api", "", "Status API listen address (empty disables)")
	statsInterval := fs.Duration("stats-interval", 0, "Stats logging interval (0 disables)")
	botName := fs.String("testbot", "", "Run a chattering test bot under this handle")
	debug := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "[ERROR] Usage: %s [flags] <port>\n", os.Args[0])
		return 1
	}
	port, err := strconv.Atoi(fs.Arg(0))
	if err != nil || port < 0 || port > 65535 {
		fmt.Fprintf(os.Stderr, "[ERROR] invalid port %q\n", fs.Arg(0))
		return 1
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	sink, err := logfile.Open(*logsDir, true)
	if err != nil {
		slog.Error("open event log", "err", err)
		return 1
	}
	defer sink.Close()

	sink.Writef("[SERVER-START] Server started with pid: %d", os.Getpid())
	slog.Info("starting server", "version", Version, "port", port, "log", sink.Path())

	srv := NewServer(net.JoinHostPort("", strconv.Itoa(port)), sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("received interrupt, shutting down")
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })
	if *apiAddr != "" {
		api := httpapi.New(srv.registry, srv.rooms, srv.queue, &srv.stats)
		g.Go(func() error { return api.Run(ctx, *apiAddr) })
	}
	if *statsInterval > 0 {
		g.Go(func() error { srv.RunStats(ctx, *statsInterval); return nil })
	}
	if *botName != "" {
		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
		g.Go(func() error { RunTestBot(ctx, addr, *botName, 2*time.Second); return nil })
	}

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("server stopped")
	return 0
}
