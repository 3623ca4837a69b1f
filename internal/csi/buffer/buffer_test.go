package buffer

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/csi.monitor/internal/csi"
)

func rec(ts uint64) csi.Record {
	return csi.Record{Tag: 1, Timestamp: ts, Amplitudes: []int{int(ts)}}
}

func timestamps(recs []csi.Record) []uint64 {
	out := make([]uint64, len(recs))
	for i, r := range recs {
		out[i] = r.Timestamp
	}
	return out
}

func TestNew_Defaults(t *testing.T) {
	assert.Equal(t, DefaultMaxFrames, New(0).Cap())
	assert.Equal(t, DefaultMaxFrames, New(-3).Cap())
	assert.Equal(t, 7, New(7).Cap())
	assert.Empty(t, New(7).Snapshot())
}

func TestRecordBuffer_BelowCapacity(t *testing.T) {
	b := New(5)
	for i := uint64(1); i <= 3; i++ {
		b.Push(rec(i))
	}
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []uint64{1, 2, 3}, timestamps(b.Snapshot()))
	assert.Zero(t, b.Evicted())
}

func TestRecordBuffer_KeepsLastM(t *testing.T) {
	const m = 4
	for k := 0; k <= 10; k++ {
		b := New(m)
		var pushed []uint64
		for i := uint64(0); i < uint64(m+k); i++ {
			b.Push(rec(i))
			pushed = append(pushed, i)
			require.LessOrEqual(t, b.Len(), m)
		}
		want := pushed[len(pushed)-m:]
		if diff := cmp.Diff(want, timestamps(b.Snapshot())); diff != "" {
			t.Errorf("k=%d snapshot mismatch (-want +got):\n%s", k, diff)
		}
		assert.Equal(t, uint64(k), b.Evicted())
	}
}

func TestRecordBuffer_CapacityOne(t *testing.T) {
	b := New(1)
	b.Push(rec(1))
	b.Push(rec(2))
	assert.Equal(t, []uint64{2}, timestamps(b.Snapshot()))
}

func TestRecordBuffer_SnapshotIsIndependent(t *testing.T) {
	b := New(3)
	b.Push(rec(1))

	snap := b.Snapshot()
	snap[0].Amplitudes[0] = 99
	snap[0].Timestamp = 99

	again := b.Snapshot()
	assert.Equal(t, uint64(1), again[0].Timestamp)
	assert.Equal(t, 1, again[0].Amplitudes[0])

	b.Push(rec(2))
	assert.Len(t, snap, 1, "earlier snapshot must not grow")
}

func TestRecordBuffer_ConcurrentPush(t *testing.T) {
	b := New(50)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b.Push(rec(uint64(i)))
				_ = b.Snapshot()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, b.Len())
	assert.Equal(t, uint64(750), b.Evicted())
}
