package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// IngestMetrics contains the Prometheus collectors for CSI ingest. Every
// series is labelled with the transport ("serial" or "udp").
type IngestMetrics struct {
	Packets       *prometheus.CounterVec
	Bytes         *prometheus.CounterVec
	Accepted      *prometheus.CounterVec
	Filtered      *prometheus.CounterVec
	Discarded     *prometheus.CounterVec // labelled additionally by reason
	PersistErrors *prometheus.CounterVec
	BufferLen     *prometheus.GaugeVec
}

// NewIngestMetrics registers the ingest collectors on reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	f := promauto.With(reg)
	return &IngestMetrics{
		Packets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csi",
			Name:      "packets_total",
			Help:      "Raw chunks or datagrams received.",
		}, []string{"transport"}),
		Bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csi",
			Name:      "bytes_total",
			Help:      "Raw bytes received.",
		}, []string{"transport"}),
		Accepted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csi",
			Name:      "records_accepted_total",
			Help:      "Records matching the target tag and pushed to the buffer.",
		}, []string{"transport"}),
		Filtered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csi",
			Name:      "records_filtered_total",
			Help:      "Valid records dropped because their tag did not match.",
		}, []string{"transport"}),
		Discarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csi",
			Name:      "packets_discarded_total",
			Help:      "Malformed packets skipped, by reason.",
		}, []string{"transport", "reason"}),
		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csi",
			Name:      "persist_errors_total",
			Help:      "Records the persistence sink failed to store.",
		}, []string{"transport"}),
		BufferLen: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "csi",
			Name:      "buffer_records",
			Help:      "Records currently held in the bounded buffer.",
		}, []string{"transport"}),
	}
}

// RegisterSerialCounters exposes the serial mux's own line counters, read
// from stats at scrape time.
func RegisterSerialCounters(reg prometheus.Registerer, stats func() (lines, dropped uint64)) {
	f := promauto.With(reg)
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "csi",
		Subsystem: "serial",
		Name:      "lines_total",
		Help:      "Lines read from the serial device.",
	}, func() float64 {
		lines, _ := stats()
		return float64(lines)
	})
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: "csi",
		Subsystem: "serial",
		Name:      "deliveries_dropped_total",
		Help:      "Line deliveries skipped because a subscriber's backlog was full.",
	}, func() float64 {
		_, dropped := stats()
		return float64(dropped)
	})
}
