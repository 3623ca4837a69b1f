// Package timeutil abstracts the wall clock so that frame timestamps and
// periodic stats logging can be driven by hand in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source used by the pipeline and its stats logger.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Epoch counts microseconds from a fixed start, like the free-running
// timer a CSI node stamps its packets with.
type Epoch struct {
	clock Clock
	start time.Time
}

// NewEpoch starts counting from clock's current time.
func NewEpoch(clock Clock) Epoch {
	return Epoch{clock: clock, start: clock.Now()}
}

// Micros returns whole microseconds elapsed since the epoch started. A
// clock that has gone backwards reads as zero.
func (e Epoch) Micros() uint64 {
	d := e.clock.Now().Sub(e.start)
	if d < 0 {
		return 0
	}
	return uint64(d / time.Microsecond)
}

// FakeClock only moves when Advance is called. Tickers created from it fire
// during Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Each live ticker whose deadline has
// passed receives at most one tick, carrying the new time; ticks a slow
// reader has not consumed are dropped, as with time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	live := c.tickers[:0]
	var due []*fakeTicker
	for _, t := range c.tickers {
		if t.stopped() {
			continue
		}
		live = append(live, t)
		if !now.Before(t.next) {
			due = append(due, t)
			for !now.Before(t.next) {
				t.next = t.next.Add(t.every)
			}
		}
	}
	c.tickers = live
	c.mu.Unlock()

	for _, t := range due {
		select {
		case t.ch <- now:
		default:
		}
	}
}

// Tickers reports how many tickers are live. Tests use it to wait until a
// goroutine under test has created its ticker before advancing.
func (c *FakeClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped() {
			n++
		}
	}
	return n
}

func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{ch: make(chan time.Time, 1), every: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, t)
	return t
}

type fakeTicker struct {
	ch    chan time.Time
	every time.Duration
	next  time.Time // guarded by the owning FakeClock

	mu   sync.Mutex
	done bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
}

func (t *fakeTicker) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
