package parse

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/csi.monitor/internal/csi"
)

func TestFrameLine_WellFormed(t *testing.T) {
	results := FrameLine("3:1700:1,2,3", 5)
	require.Len(t, results, 1)
	require.True(t, results[0].OK(), "unexpected discard: %v", results[0].Err)

	want := csi.Record{Tag: 3, Timestamp: 1700, Amplitudes: []int{1, 2, 3, 0, 0}}
	if diff := cmp.Diff(want, results[0].Record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestFrameLine_MatchesNormalize(t *testing.T) {
	for _, amps := range []string{"1,2,3", "-5,6", "1,2,3,4,5,6,7,8"} {
		recs := Records(FrameLine("1:2:"+amps, 4))
		require.Len(t, recs, 1)
		want, err := Normalize(amps, 4)
		require.NoError(t, err)
		assert.Equal(t, want, recs[0].Amplitudes)
	}
}

func TestFrameLine_Empty(t *testing.T) {
	assert.Empty(t, FrameLine("", 64))
	assert.Empty(t, FrameLine("   \r\n", 64))
	assert.Empty(t, FrameLine("\n\n", 64))
}

func TestFrameLine_ColonCount(t *testing.T) {
	tests := []string{
		"1:2",
		"1:2:3:4",
		"Received data from 192.168.4.2: 1:2:3",
		"no colons at all",
	}
	for _, in := range tests {
		results := FrameLine(in, 4)
		require.Len(t, results, 1, in)
		assert.Equal(t, ReasonColonCount, results[0].Reason, in)
		assert.Equal(t, in, results[0].Raw)
		assert.Error(t, results[0].Err)
	}
}

func TestFrameLine_BadColonCountDoesNotAffectSiblings(t *testing.T) {
	results := FrameLine("1:2:3:4\n5:6:7\n8:9", 1)
	require.Len(t, results, 3)
	assert.Equal(t, ReasonColonCount, results[0].Reason)
	assert.True(t, results[1].OK())
	assert.Equal(t, ReasonColonCount, results[2].Reason)

	recs := Records(results)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(5), recs[0].Tag)
	assert.Equal(t, uint64(6), recs[0].Timestamp)
	assert.Equal(t, []int{7}, recs[0].Amplitudes)
}

func TestFrameLine_TagAndTimestampValidation(t *testing.T) {
	tests := []struct {
		in     string
		reason DiscardReason
	}{
		{"a:1:1", ReasonBadTag},
		{"-1:1:1", ReasonBadTag},
		{"+1:1:1", ReasonBadTag},
		{":1:1", ReasonBadTag},
		{"1 :1:1", ReasonBadTag},
		{"99999999999999999999999:1:1", ReasonBadTag},
		{"1:abc:1", ReasonBadTimestamp},
		{"1::1", ReasonBadTimestamp},
		{"1:1.5:1", ReasonBadTimestamp},
		{"1: 2:1", ReasonBadTimestamp},
		{"1:2:1,x", ReasonBadAmplitudes},
		{"1:2:", ReasonBadAmplitudes},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			results := FrameLine(tt.in, 4)
			require.Len(t, results, 1)
			assert.Equal(t, tt.reason, results[0].Reason)
			assert.False(t, results[0].OK())
			assert.Error(t, results[0].Err)
		})
	}
}

func TestFrameLine_ConcatenatedPackets(t *testing.T) {
	recs := Records(FrameLine("1:10:1,2\n1:11:3,4", 2))
	want := []csi.Record{
		{Tag: 1, Timestamp: 10, Amplitudes: []int{1, 2}},
		{Tag: 1, Timestamp: 11, Amplitudes: []int{3, 4}},
	}
	if diff := cmp.Diff(want, recs); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestFrameLine_MixedValidity(t *testing.T) {
	results := FrameLine("1:10:1,x,3\n2:abc:5,6\n1:12:7,8", 2)
	require.Len(t, results, 3)
	assert.Equal(t, ReasonBadAmplitudes, results[0].Reason)
	assert.Equal(t, ReasonBadTimestamp, results[1].Reason)
	assert.True(t, results[2].OK())

	recs := Records(results)
	require.Len(t, recs, 1)
	assert.Equal(t, csi.Record{Tag: 1, Timestamp: 12, Amplitudes: []int{7, 8}}, recs[0])
}

func TestFrameLine_CRLFAndWhitespace(t *testing.T) {
	recs := Records(FrameLine("  0:5: 1, 2 ,3\r\n0:6:4\r\n", 3))
	require.Len(t, recs, 2)
	assert.Equal(t, []int{1, 2, 3}, recs[0].Amplitudes)
	assert.Equal(t, []int{4, 0, 0}, recs[1].Amplitudes)
}

func TestFrameLine_WhitespaceAroundAmplitudes(t *testing.T) {
	for _, line := range []string{"1:10:1,\t2,3", "1:10:1,2 \t,3", "1:10:\t1,\v2,3\t"} {
		results := FrameLine(line, 3)
		require.Len(t, results, 1, line)
		require.True(t, results[0].OK(), "%q discarded: %v", line, results[0].Err)
		assert.Equal(t, []int{1, 2, 3}, results[0].Record.Amplitudes, line)
	}

	results := FrameLine("1:10:1\t2,3", 3)
	require.Len(t, results, 1)
	assert.Equal(t, ReasonBadAmplitudes, results[0].Reason, "whitespace inside a token is still invalid")
}

func TestDiscardReason_String(t *testing.T) {
	assert.Equal(t, "colon_count", ReasonColonCount.String())
	assert.Equal(t, "bad_tag", ReasonBadTag.String())
	assert.Equal(t, "bad_timestamp", ReasonBadTimestamp.String())
	assert.Equal(t, "bad_amplitudes", ReasonBadAmplitudes.String())
	assert.Equal(t, "none", ReasonNone.String())
	assert.Equal(t, "reason(42)", DiscardReason(42).String())
}
