package parse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/csi.monitor/internal/csi"
)

// DiscardReason explains why a text sub-packet produced no record.
type DiscardReason int

const (
	ReasonNone DiscardReason = iota
	ReasonColonCount
	ReasonBadTag
	ReasonBadTimestamp
	ReasonBadAmplitudes
)

func (r DiscardReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonColonCount:
		return "colon_count"
	case ReasonBadTag:
		return "bad_tag"
	case ReasonBadTimestamp:
		return "bad_timestamp"
	case ReasonBadAmplitudes:
		return "bad_amplitudes"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Result is the outcome of framing one sub-packet: either an accepted Record
// (Reason == ReasonNone) or a discard with the raw text and cause.
type Result struct {
	Record csi.Record
	Reason DiscardReason
	Raw    string
	Err    error
}

// OK reports whether the sub-packet produced a record.
func (r Result) OK() bool { return r.Reason == ReasonNone }

// FrameLine splits a raw text chunk into sub-packets and parses each one.
// A chunk may hold several newline-joined packets when the transport
// delivers more than one per read. Results are returned in input order;
// blank sub-packets are skipped without a result.
func FrameLine(line string, expectedLength int) []Result {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	var results []Result
	for _, packet := range strings.Split(line, "\n") {
		packet = strings.TrimSpace(packet)
		if packet == "" {
			continue
		}
		results = append(results, framePacket(packet, expectedLength))
	}
	return results
}

func framePacket(packet string, expectedLength int) Result {
	res := Result{Raw: packet}

	if n := strings.Count(packet, ":"); n != 2 {
		res.Reason = ReasonColonCount
		res.Err = fmt.Errorf("expected 2 colons, found %d", n)
		return res
	}
	fields := strings.SplitN(packet, ":", 3)
	tagStr, tsStr, csiStr := fields[0], fields[1], fields[2]

	tag, err := parseCounter(tagStr)
	if err != nil {
		res.Reason = ReasonBadTag
		res.Err = fmt.Errorf("tag: %w", err)
		return res
	}
	ts, err := parseCounter(tsStr)
	if err != nil {
		res.Reason = ReasonBadTimestamp
		res.Err = fmt.Errorf("timestamp: %w", err)
		return res
	}

	amps, err := Normalize(csiStr, expectedLength)
	if err != nil {
		res.Reason = ReasonBadAmplitudes
		res.Err = err
		return res
	}

	res.Record = csi.Record{Tag: tag, Timestamp: ts, Amplitudes: amps}
	return res
}

// parseCounter parses a field made only of decimal digits. Signs and
// surrounding whitespace are rejected.
func parseCounter(s string) (uint64, error) {
	if !isDigits(s) {
		return 0, fmt.Errorf("%q is not a decimal number", s)
	}
	return strconv.ParseUint(s, 10, 64)
}

// Records returns the accepted records from results, preserving order.
func Records(results []Result) []csi.Record {
	var out []csi.Record
	for _, r := range results {
		if r.OK() {
			out = append(out, r.Record)
		}
	}
	return out
}
