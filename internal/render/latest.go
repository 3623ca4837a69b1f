package render

import (
	"sync"
	"time"

	"github.com/banshee-data/csi.monitor/internal/csi"
)

// Latest keeps the most recent snapshot handed over by a pipeline. It
// satisfies pipeline.Renderer.
type Latest struct {
	now func() time.Time

	mu       sync.RWMutex
	snapshot []csi.Record
	updated  time.Time
	renders  uint64
}

// NewLatest creates an empty Latest.
func NewLatest() *Latest {
	return &Latest{now: time.Now}
}

// Render stores snapshot. The pipeline hands over ownership, so no copy is
// made here.
func (l *Latest) Render(snapshot []csi.Record) {
	l.mu.Lock()
	l.snapshot = snapshot
	l.updated = l.now()
	l.renders++
	l.mu.Unlock()
}

// Snapshot returns the last stored snapshot and when it arrived. The slice
// must not be modified.
func (l *Latest) Snapshot() ([]csi.Record, time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot, l.updated
}

// Renders returns how many snapshots have been stored.
func (l *Latest) Renders() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.renders
}
