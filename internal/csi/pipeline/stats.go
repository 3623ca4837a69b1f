package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/csi.monitor/internal/monitoring"
	"github.com/banshee-data/csi.monitor/internal/timeutil"
)

// Stats accumulates ingest counters for one transport. Counters are reset
// each time LogStats reports them; Totals keeps the running values.
type Stats struct {
	transport string
	metrics   *monitoring.IngestMetrics

	mu       sync.Mutex
	interval statsCounters
	total    statsCounters
	since    time.Time
}

type statsCounters struct {
	packets       uint64
	bytes         uint64
	accepted      uint64
	filtered      uint64
	persistErrors uint64
	discards      map[string]uint64
}

func (c *statsCounters) addDiscard(reason string) {
	if c.discards == nil {
		c.discards = make(map[string]uint64)
	}
	c.discards[reason]++
}

// StatsSnapshot is a point-in-time copy of the running totals.
type StatsSnapshot struct {
	Transport     string            `json:"transport"`
	Packets       uint64            `json:"packets"`
	Bytes         uint64            `json:"bytes"`
	Accepted      uint64            `json:"accepted"`
	Filtered      uint64            `json:"filtered"`
	PersistErrors uint64            `json:"persist_errors"`
	Discards      map[string]uint64 `json:"discards"`
}

// NewStats creates a Stats for transport whose first interval starts at
// clock's current time. metrics may be nil; a nil clock is the real one.
func NewStats(transport string, metrics *monitoring.IngestMetrics, clock timeutil.Clock) *Stats {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Stats{transport: transport, metrics: metrics, since: clock.Now()}
}

func (s *Stats) AddPacket(n int) {
	s.mu.Lock()
	s.interval.packets++
	s.interval.bytes += uint64(n)
	s.total.packets++
	s.total.bytes += uint64(n)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.Packets.WithLabelValues(s.transport).Inc()
		s.metrics.Bytes.WithLabelValues(s.transport).Add(float64(n))
	}
}

func (s *Stats) AddAccepted(bufferLen int) {
	s.mu.Lock()
	s.interval.accepted++
	s.total.accepted++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.Accepted.WithLabelValues(s.transport).Inc()
		s.metrics.BufferLen.WithLabelValues(s.transport).Set(float64(bufferLen))
	}
}

func (s *Stats) AddFiltered() {
	s.mu.Lock()
	s.interval.filtered++
	s.total.filtered++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.Filtered.WithLabelValues(s.transport).Inc()
	}
}

func (s *Stats) AddDiscard(reason string) {
	s.mu.Lock()
	s.interval.addDiscard(reason)
	s.total.addDiscard(reason)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.Discarded.WithLabelValues(s.transport, reason).Inc()
	}
}

func (s *Stats) AddPersistError() {
	s.mu.Lock()
	s.interval.persistErrors++
	s.total.persistErrors++
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.PersistErrors.WithLabelValues(s.transport).Inc()
	}
}

// Totals returns the running counters since creation.
func (s *Stats) Totals() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	discards := make(map[string]uint64, len(s.total.discards))
	for k, v := range s.total.discards {
		discards[k] = v
	}
	return StatsSnapshot{
		Transport:     s.transport,
		Packets:       s.total.packets,
		Bytes:         s.total.bytes,
		Accepted:      s.total.accepted,
		Filtered:      s.total.filtered,
		PersistErrors: s.total.persistErrors,
		Discards:      discards,
	}
}

// Summary formats the counters gathered since the last call and resets them.
func (s *Stats) Summary(now time.Time) string {
	s.mu.Lock()
	c := s.interval
	elapsed := now.Sub(s.since)
	s.interval = statsCounters{}
	s.since = now
	s.mu.Unlock()

	rate := 0.0
	if elapsed > 0 {
		rate = float64(c.packets) / elapsed.Seconds()
	}
	return fmt.Sprintf("[%s] %d packets (%s, %.1f pkt/s), %d accepted, %d filtered, discards: %s, persist errors: %d",
		s.transport, c.packets, humanize.Bytes(c.bytes), rate, c.accepted, c.filtered,
		formatDiscards(c.discards), c.persistErrors)
}

// LogStats writes Summary through the monitoring logger.
func (s *Stats) LogStats(now time.Time) {
	monitoring.Logf("%s", s.Summary(now))
}

// RunStatsLogger logs a summary every interval until ctx is done.
func (s *Stats) RunStatsLogger(ctx context.Context, clock timeutil.Clock, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			s.LogStats(now)
		}
	}
}

func formatDiscards(d map[string]uint64) string {
	if len(d) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, d[k])
	}
	return strings.Join(parts, " ")
}
