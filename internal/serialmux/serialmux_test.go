package serialmux

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/csi.monitor/internal/timeutil"
)

func TestSerialMux_SubscribeUnsubscribe(t *testing.T) {
	mux := NewSerialMux(NewFakePort())

	id1, ch1 := mux.Subscribe()
	id2, _ := mux.Subscribe()
	if id1 == "" || id1 == id2 {
		t.Fatalf("Subscribe IDs %q and %q should be distinct and non-empty", id1, id2)
	}
	if cap(ch1) != SubscriberBuffer {
		t.Errorf("subscriber channel capacity = %d, want %d", cap(ch1), SubscriberBuffer)
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	// unknown and repeated IDs are ignored
	mux.Unsubscribe(id1)
	mux.Unsubscribe("nope")

	if got := mux.Stats().Subscribers; got != 1 {
		t.Errorf("Subscribers = %d, want 1", got)
	}
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewFakePort()
	mux := NewSerialMux(port)

	if err := mux.SendCommand("csi on"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if err := mux.SendCommand("restart\n"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if got := port.Written(); got != "csi on\nrestart\n" {
		t.Errorf("written = %q", got)
	}
}

func TestSerialMux_SendCommand_Errors(t *testing.T) {
	port := NewFakePort()
	mux := NewSerialMux(port)

	port.FailNextWrite(errors.New("unplugged"))
	if err := mux.SendCommand("x"); err == nil || !strings.Contains(err.Error(), "unplugged") {
		t.Errorf("expected write error, got %v", err)
	}

	port.ShortWrites()
	if err := mux.SendCommand("x"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("expected ErrWriteFailed, got %v", err)
	}
}

func TestSerialMux_Monitor_FansOutLines(t *testing.T) {
	port := NewFakePort()
	port.Feed("1:10:1,2,3\n1:11:4,5,6\n")
	mux := NewSerialMux(port)

	_, a := mux.Subscribe()
	_, b := mux.Subscribe()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor: %v", err)
	}

	for _, ch := range []chan string{a, b} {
		if got := <-ch; got != "1:10:1,2,3" {
			t.Errorf("first line = %q", got)
		}
		if got := <-ch; got != "1:11:4,5,6" {
			t.Errorf("second line = %q", got)
		}
	}
	if got := mux.Stats(); got.Lines != 2 || got.Dropped != 0 {
		t.Errorf("Stats() = %+v", got)
	}
}

func TestSerialMux_Monitor_DropsInvalidUTF8(t *testing.T) {
	port := NewFakePort()
	port.Feed("1:\xff10:1,\xfe2\n")
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	if got := <-ch; got != "1:10:1,2" {
		t.Errorf("line = %q, want invalid bytes removed", got)
	}
}

func TestSerialMux_Monitor_SlowSubscriberDrops(t *testing.T) {
	port := NewFakePort()
	port.Feed(strings.Repeat("0:1:1\n", SubscriberBuffer+10))
	mux := NewSerialMux(port)
	mux.Subscribe()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Fatalf("Monitor: %v", err)
	}
	if got := mux.Dropped(); got != 10 {
		t.Errorf("Dropped() = %d, want 10", got)
	}
	if got := mux.Stats().Lines; got != SubscriberBuffer+10 {
		t.Errorf("Lines = %d", got)
	}
}

func TestSerialMux_Monitor_ReadError(t *testing.T) {
	port := NewFakePort()
	port.FailNextRead(errors.New("device reset"))
	mux := NewSerialMux(port)

	err := mux.Monitor(context.Background())
	if err == nil || !strings.Contains(err.Error(), "device reset") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestSerialMux_Monitor_ContextCancel(t *testing.T) {
	port := NewFakePort()
	port.Hold()
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- mux.Monitor(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Monitor did not stop after cancel")
	}
	mux.Close()
}

func TestSerialMux_Close(t *testing.T) {
	port := NewFakePort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	if err := mux.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}
	if !port.Closed() {
		t.Error("port should be closed")
	}

	_, late := mux.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribing after Close should yield a closed channel")
	}
}

func TestMockSerialMux_FollowsClock(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(0, 0))
	mux := NewMockSerialMuxClock(clock, []string{"1:1:1,2", "1:2:3,4"}, time.Second)
	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		mux.Monitor(ctx)
	}()

	deadline := time.Now().Add(time.Second)
	for clock.Tickers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("mock port never started its ticker")
		}
		time.Sleep(time.Millisecond)
	}

	want := []string{"1:1:1,2", "1:2:3,4", "1:1:1,2"}
	for i, w := range want {
		clock.Advance(time.Second)
		select {
		case got := <-ch:
			if got != w {
				t.Errorf("line %d = %q, want %q", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("line %d not delivered", i)
		}
	}

	if err := mux.SendCommand("csi off"); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if got := mux.port.Written(); got != "csi off\n" {
		t.Errorf("written = %q", got)
	}

	mux.Close()
	wg.Wait()
}

func TestMockSerialMux_RealClock(t *testing.T) {
	mux := NewMockSerialMux([]string{"0:5:9"}, time.Millisecond)
	defer mux.Close()
	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	select {
	case got := <-ch:
		if got != "0:5:9" {
			t.Errorf("line = %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no line from mock port")
	}
}
