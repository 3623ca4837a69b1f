package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/csi.monitor/internal/monitoring"
	"github.com/banshee-data/csi.monitor/internal/timeutil"
)

func TestStats_SummaryResetsInterval(t *testing.T) {
	s := NewStats("udp", nil, nil)
	s.AddPacket(1500)
	s.AddPacket(1500)
	s.AddAccepted(1)
	s.AddDiscard("frame_too_short")
	s.AddDiscard("colon_count")

	out := s.Summary(time.Now())
	assert.Contains(t, out, "[udp] 2 packets")
	assert.Contains(t, out, "3.0 kB")
	assert.Contains(t, out, "1 accepted")
	assert.Contains(t, out, "colon_count=1 frame_too_short=1")

	out = s.Summary(time.Now())
	assert.Contains(t, out, "0 packets")
	assert.Contains(t, out, "discards: none")

	// totals survive the reset
	assert.Equal(t, uint64(2), s.Totals().Packets)
	assert.Equal(t, uint64(3000), s.Totals().Bytes)
}

func TestStats_RunStatsLogger(t *testing.T) {
	rec, restore := monitoring.Record()
	defer restore()

	clock := timeutil.NewFakeClock(time.Unix(0, 0))
	s := NewStats("serial", nil, clock)
	s.AddPacket(10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunStatsLogger(ctx, clock, time.Minute)
		close(done)
	}()

	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)
	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool { return len(rec.Lines()) > 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	lines := rec.Lines()
	assert.True(t, strings.HasPrefix(lines[0], "[serial] 1 packets"), lines[0])
}

func TestStats_RateUsesInjectedClock(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Unix(1700000000, 0))
	s := NewStats("udp", nil, clock)
	for i := 0; i < 4; i++ {
		s.AddPacket(100)
	}

	clock.Advance(2 * time.Second)
	assert.Contains(t, s.Summary(clock.Now()), "2.0 pkt/s")

	s.AddPacket(100)
	clock.Advance(time.Second)
	assert.Contains(t, s.Summary(clock.Now()), "1.0 pkt/s", "second interval starts at the previous summary")
}
