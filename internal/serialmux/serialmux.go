// Package serialmux fans lines read from one serial device out to any number
// of subscribers and serialises commands written back to it.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrWriteFailed reports a short write to the device.
var ErrWriteFailed = errors.New("failed to write to serial port")

// SubscriberBuffer is the per-subscriber line backlog. Lines arriving while
// a subscriber's backlog is full are dropped for that subscriber only.
const SubscriberBuffer = 256

// maxLineSize bounds a single line. A 128-subcarrier CSI line with
// three-digit signed values runs to roughly 700 bytes.
const maxLineSize = 64 * 1024

// Port is what the mux needs from a device: go.bug.st/serial.Port satisfies
// it, as do the mock and fake ports in this package.
type Port interface {
	io.ReadWriteCloser
}

// SerialMuxInterface is the surface used by the monitor and its HTTP routes.
type SerialMuxInterface interface {
	// Subscribe returns an ID and a buffered channel of lines. The channel
	// is closed by Unsubscribe or Close.
	Subscribe() (string, chan string)
	Unsubscribe(string)
	// SendCommand writes one newline-terminated command to the device.
	SendCommand(string) error
	// Monitor reads until EOF, a read error or ctx is done.
	Monitor(context.Context) error
	Stats() MuxStats
	Close() error

	// AttachAdminRoutes mounts the device console under /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// MuxStats counts lines seen by Monitor.
type MuxStats struct {
	Lines       uint64 `json:"lines"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

type subscriber struct {
	ch      chan string
	dropped uint64
}

// SerialMux owns a Port. T is kept generic so callers holding a concrete
// port type (for example the mock) can still reach it.
type SerialMux[T Port] struct {
	port T

	mu     sync.Mutex
	subs   map[string]*subscriber
	closed bool

	writeMu sync.Mutex

	lines   atomic.Uint64
	dropped atomic.Uint64
}

// NewSerialMux wraps port. The port is closed by Close.
func NewSerialMux[T Port](port T) *SerialMux[T] {
	return &SerialMux[T]{port: port, subs: map[string]*subscriber{}}
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, SubscriberBuffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return id, ch
	}
	s.subs[id] = &subscriber{ch: ch}
	return id, ch
}

func (s *SerialMux[T]) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		close(sub.ch)
		delete(s.subs, id)
	}
}

// Dropped is the total number of deliveries skipped across all subscribers.
func (s *SerialMux[T]) Dropped() uint64 { return s.dropped.Load() }

func (s *SerialMux[T]) Stats() MuxStats {
	s.mu.Lock()
	n := len(s.subs)
	s.mu.Unlock()
	return MuxStats{Lines: s.lines.Load(), Dropped: s.dropped.Load(), Subscribers: n}
}

func (s *SerialMux[T]) SendCommand(command string) error {
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := io.WriteString(s.port, command)
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// broadcast hands line to every subscriber without blocking. It reports
// false once the mux is closed.
func (s *SerialMux[T]) broadcast(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.lines.Add(1)
	for _, sub := range s.subs {
		select {
		case sub.ch <- line:
		default:
			sub.dropped++
			s.dropped.Add(1)
		}
	}
	return true
}

// readLines scans the port on its own goroutine, since a blocked Read
// cannot observe ctx. Invalid UTF-8 is stripped from each line. The
// returned error channel yields exactly one value once the scan stops.
func (s *SerialMux[T]) readLines(ctx context.Context) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		scan := bufio.NewScanner(s.port)
		scan.Buffer(make([]byte, 4096), maxLineSize)
		for scan.Scan() {
			select {
			case out <- string(bytes.ToValidUTF8(scan.Bytes(), nil)):
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		errc <- scan.Err()
	}()
	return out, errc
}

// Monitor fans lines out until the port reports EOF (nil), a read error,
// ctx cancellation or Close.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines, errc := s.readLines(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return <-errc
			}
			if !s.broadcast(line) {
				return nil
			}
		}
	}
}

// Close closes every subscriber channel and then the port. Later
// subscriptions receive an already-closed channel.
func (s *SerialMux[T]) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, sub := range s.subs {
		close(sub.ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	return s.port.Close()
}
