// Package buffer holds the bounded, insertion-ordered window of CSI records
// that rendering and analysis consumers read from.
package buffer

import (
	"sync"

	"github.com/banshee-data/csi.monitor/internal/csi"
)

// DefaultMaxFrames is the window size used when none is configured.
const DefaultMaxFrames = 100

// RecordBuffer is a fixed-capacity ring of records. Once full, each Push
// evicts the oldest record. Push and Snapshot are safe for concurrent use.
type RecordBuffer struct {
	mu      sync.Mutex
	records []csi.Record
	head    int // index of the oldest record
	size    int
	evicted uint64
}

// New creates a RecordBuffer holding at most maxFrames records. Values below
// one fall back to DefaultMaxFrames.
func New(maxFrames int) *RecordBuffer {
	if maxFrames < 1 {
		maxFrames = DefaultMaxFrames
	}
	return &RecordBuffer{records: make([]csi.Record, maxFrames)}
}

// Push appends rec, dropping the oldest record if the buffer is full.
func (b *RecordBuffer) Push(rec csi.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.records)
	if b.size < capacity {
		b.records[(b.head+b.size)%capacity] = rec
		b.size++
		return
	}
	b.records[b.head] = rec
	b.head = (b.head + 1) % capacity
	b.evicted++
}

// Snapshot returns the buffered records, oldest first. The result is a deep
// copy; callers may keep or modify it freely.
func (b *RecordBuffer) Snapshot() []csi.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]csi.Record, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.records[(b.head+i)%len(b.records)].Clone()
	}
	return out
}

// Len returns the number of buffered records.
func (b *RecordBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the configured maximum number of records.
func (b *RecordBuffer) Cap() int {
	return len(b.records)
}

// Evicted returns how many records have been dropped to make room.
func (b *RecordBuffer) Evicted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}
