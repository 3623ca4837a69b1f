// Package testutil provides shared test helpers and CSI fixtures.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/banshee-data/csi.monitor/internal/csi"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// TextPacket formats one record in the node's "tag:timestamp:csi" text form.
func TextPacket(rec csi.Record) string {
	amps := make([]string, len(rec.Amplitudes))
	for i, a := range rec.Amplitudes {
		amps[i] = strconv.Itoa(a)
	}
	return strconv.FormatUint(rec.Tag, 10) + ":" +
		strconv.FormatUint(rec.Timestamp, 10) + ":" +
		strings.Join(amps, ",")
}

// SyntheticRecords returns n records for tag with consecutive timestamps
// starting at 1 and amplitudes forming a ramp that shifts each frame.
func SyntheticRecords(tag uint64, n, expectedLength int) []csi.Record {
	recs := make([]csi.Record, n)
	for i := range recs {
		amps := make([]int, expectedLength)
		for j := range amps {
			amps[j] = (i + j) % 32
		}
		recs[i] = csi.Record{Tag: tag, Timestamp: uint64(i + 1), Amplitudes: amps}
	}
	return recs
}
