package csi

import (
	"net"
	"strconv"
	"strings"
)

// SourceAddress is the 6-byte hardware address a binary frame was sent from.
type SourceAddress [6]byte

// String renders the address as lowercase colon-separated hex pairs.
func (a SourceAddress) String() string {
	return net.HardwareAddr(a[:]).String()
}

// IsZero reports whether the address is unset. Serial records carry no
// source address.
func (a SourceAddress) IsZero() bool {
	return a == SourceAddress{}
}

// ParseSourceAddress parses an "xx:xx:xx:xx:xx:xx" string.
func ParseSourceAddress(s string) (SourceAddress, error) {
	var a SourceAddress
	hw, err := net.ParseMAC(strings.TrimSpace(s))
	if err != nil {
		return a, err
	}
	if len(hw) != len(a) {
		return a, &net.AddrError{Err: "expected 6-byte hardware address", Addr: s}
	}
	copy(a[:], hw)
	return a, nil
}

// Record is one normalized unit of CSI telemetry. Records are treated as
// immutable once built; Amplitudes always has the configured expected
// length.
type Record struct {
	Tag        uint64        `json:"tag"`
	Timestamp  uint64        `json:"timestamp"`
	Amplitudes []int         `json:"amplitudes"`
	Source     SourceAddress `json:"-"`
}

// Clone returns a copy of r that shares no memory with it.
func (r Record) Clone() Record {
	c := r
	c.Amplitudes = append([]int(nil), r.Amplitudes...)
	return c
}

// CSVFields renders the record as tag,timestamp,amp0,...,ampN fields.
func (r Record) CSVFields() []string {
	fields := make([]string, 0, len(r.Amplitudes)+2)
	fields = append(fields,
		strconv.FormatUint(r.Tag, 10),
		strconv.FormatUint(r.Timestamp, 10),
	)
	for _, a := range r.Amplitudes {
		fields = append(fields, strconv.Itoa(a))
	}
	return fields
}
