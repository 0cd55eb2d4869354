// Package logfile implements the per-run event log: an append-only text file
// of timestamped lines, mirrored to standard output. One file is created per
// server run, named after the start time.
//
// The sink is intentionally not a slog handler: the on-disk line format
// ("YYYY-MM-DD HH:MM:SS - <message>") is a compatibility contract consumed by
// existing log tooling, and every line must hit the file before Write
// returns.
package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	filenameLayout  = "20060102_150405"
)

// Sink is a thread-safe append-only line log. The zero value is unusable;
// call Open.
type Sink struct {
	mu sync.Mutex
	f  *os.File

	// printMu serialises the console mirror independently of the file
	// lock, so stdout writers outside the sink can share it.
	printMu sync.Mutex
	console bool
}

// Open creates dir (mode 0755) if absent and opens a log file inside it named
// after the current time. When console is true every line is also mirrored to
// stdout.
func Open(dir string, console bool) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := filepath.Join(dir, time.Now().Format(filenameLayout)+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Sink{f: f, console: console}, nil
}

// Path returns the path of the open log file, or "" after Close.
func (s *Sink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ""
	}
	return s.f.Name()
}

// Write appends one timestamped line to the file and mirrors it to stdout.
// The write is line-atomic: concurrent callers never interleave within a
// line. Each line reaches the file before Write returns; os.File writes are
// unbuffered so there is nothing further to flush.
func (s *Sink) Write(msg string) {
	line := time.Now().Format(timestampLayout) + " - " + msg + "\n"

	s.mu.Lock()
	if s.f != nil {
		s.f.WriteString(line)
	}
	s.mu.Unlock()

	if s.console {
		s.printMu.Lock()
		os.Stdout.WriteString(msg + "\n")
		s.printMu.Unlock()
	}
}

// Writef formats and appends one line. See Write.
func (s *Sink) Writef(format string, args ...any) {
	s.Write(fmt.Sprintf(format, args...))
}

// Close closes the underlying file. Safe to call more than once; writes after
// Close only reach the console mirror.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
