package timeutil

import (
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	if now := clock.Now(); now.Before(before) {
		t.Errorf("Now() = %v, before %v", now, before)
	}

	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestEpoch_Micros(t *testing.T) {
	clock := NewFakeClock(time.Unix(100, 0))
	e := NewEpoch(clock)
	if got := e.Micros(); got != 0 {
		t.Errorf("Micros() at start = %d, want 0", got)
	}

	clock.Advance(2500 * time.Microsecond)
	if got := e.Micros(); got != 2500 {
		t.Errorf("Micros() = %d, want 2500", got)
	}

	clock.Advance(999 * time.Nanosecond)
	if got := e.Micros(); got != 2500 {
		t.Errorf("Micros() truncates sub-microsecond time, got %d", got)
	}
}

func TestEpoch_ClockBackwards(t *testing.T) {
	clock := NewFakeClock(time.Unix(100, 0))
	e := NewEpoch(clock)
	clock.Advance(-time.Second)
	if got := e.Micros(); got != 0 {
		t.Errorf("Micros() = %d, want 0 after the clock went backwards", got)
	}
}

func TestFakeClock_TickerFiresOnDeadline(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewFakeClock(start)
	ticker := clock.NewTicker(time.Minute)

	clock.Advance(59 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	clock.Advance(time.Second)
	select {
	case got := <-ticker.C():
		if want := start.Add(time.Minute); !got.Equal(want) {
			t.Errorf("tick = %v, want %v", got, want)
		}
	default:
		t.Fatal("ticker did not fire at its deadline")
	}
}

func TestFakeClock_LongAdvanceDeliversOneTick(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Second)

	clock.Advance(10 * time.Second)
	<-ticker.C()
	select {
	case <-ticker.C():
		t.Fatal("expected a single buffered tick")
	default:
	}

	// the next deadline is realigned past the jump
	clock.Advance(500 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its realigned deadline")
	default:
	}
	clock.Advance(500 * time.Millisecond)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire at its realigned deadline")
	}
}

func TestFakeClock_StopAndTickers(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	a := clock.NewTicker(time.Second)
	clock.NewTicker(time.Second)
	if n := clock.Tickers(); n != 2 {
		t.Fatalf("Tickers() = %d, want 2", n)
	}

	a.Stop()
	if n := clock.Tickers(); n != 1 {
		t.Errorf("Tickers() after Stop = %d, want 1", n)
	}
	clock.Advance(time.Second)
	select {
	case <-a.C():
		t.Error("stopped ticker fired")
	default:
	}
}

func TestFakeClock_NewTickerRejectsZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero interval")
		}
	}()
	NewFakeClock(time.Time{}).NewTicker(0)
}
