package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/csi.monitor/internal/timeutil"
)

// errPortClosed is what a closed fake or mock port returns.
var errPortClosed = errors.New("serial port closed")

// MockSerialPort stands in for a CSI node: it replays a fixed script of
// lines, one per clock tick, and records whatever is written to it.
type MockSerialPort struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer

	stop     chan struct{}
	stopOnce sync.Once
}

func (m *MockSerialPort) Read(p []byte) (int, error) { return m.pr.Read(p) }

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.Write(p)
}

// Written returns everything written to the port so far.
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written.String()
}

func (m *MockSerialPort) Close() error {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.pw.Close()
	})
	return nil
}

func (m *MockSerialPort) play(clock timeutil.Clock, script []string, interval time.Duration) {
	defer m.pw.Close()
	if len(script) == 0 {
		<-m.stop
		return
	}
	t := clock.NewTicker(interval)
	defer t.Stop()
	for i := 0; ; i = (i + 1) % len(script) {
		select {
		case <-m.stop:
			return
		case <-t.C():
		}
		if _, err := io.WriteString(m.pw, script[i]+"\n"); err != nil {
			return
		}
	}
}

// NewMockSerialMux loops over script on the real clock until the mux is
// closed. A non-positive interval means 100ms.
func NewMockSerialMux(script []string, interval time.Duration) *SerialMux[*MockSerialPort] {
	return NewMockSerialMuxClock(timeutil.RealClock{}, script, interval)
}

// NewMockSerialMuxClock is NewMockSerialMux driven by clock.
func NewMockSerialMuxClock(clock timeutil.Clock, script []string, interval time.Duration) *SerialMux[*MockSerialPort] {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	pr, pw := io.Pipe()
	port := &MockSerialPort{pr: pr, pw: pw, stop: make(chan struct{})}
	go port.play(clock, script, interval)
	return NewSerialMux(port)
}

// FakePort is a scriptable Port for unit tests. Reads drain the fed bytes
// and then return io.EOF, or block until more arrive when Hold is set.
type FakePort struct {
	mu   sync.Mutex
	cond *sync.Cond

	in  bytes.Buffer
	out bytes.Buffer

	readErr  error
	writeErr error
	short    bool
	hold     bool
	closed   bool
}

// NewFakePort returns an empty, open FakePort.
func NewFakePort() *FakePort {
	f := &FakePort{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Feed queues data for Read.
func (f *FakePort) Feed(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in.WriteString(data)
	f.cond.Broadcast()
}

// Hold makes Read block on an empty buffer instead of returning io.EOF.
func (f *FakePort) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hold = true
}

// FailNextRead makes the next Read return err.
func (f *FakePort) FailNextRead(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

// FailNextWrite makes the next Write return err.
func (f *FakePort) FailNextWrite(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// ShortWrites makes every Write report one byte fewer than it took.
func (f *FakePort) ShortWrites() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.short = true
}

// Written returns everything written so far.
func (f *FakePort) Written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.String()
}

// Closed reports whether Close has been called.
func (f *FakePort) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.readErr; err != nil {
		f.readErr = nil
		return 0, err
	}
	for f.hold && !f.closed && f.in.Len() == 0 {
		f.cond.Wait()
	}
	if f.closed {
		return 0, errPortClosed
	}
	return f.in.Read(p)
}

func (f *FakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errPortClosed
	}
	if err := f.writeErr; err != nil {
		f.writeErr = nil
		return 0, err
	}
	n, _ := f.out.Write(p)
	if f.short && n > 0 {
		n--
	}
	return n, nil
}

func (f *FakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
	return nil
}
