package csi

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSourceAddress_String(t *testing.T) {
	tests := []struct {
		name string
		addr SourceAddress
		want string
	}{
		{"all ones", SourceAddress{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, "ff:ff:ff:ff:ff:ff"},
		{"zero", SourceAddress{}, "00:00:00:00:00:00"},
		{"node", SourceAddress{0x1a, 0x00, 0x00, 0x00, 0x00, 0x02}, "1a:00:00:00:00:02"},
		{"mixed case source", SourceAddress{0xAB, 0xCD, 0xEF, 0x01, 0x23, 0x45}, "ab:cd:ef:01:23:45"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.addr.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSourceAddress(t *testing.T) {
	a, err := ParseSourceAddress("1A:00:00:00:00:01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != (SourceAddress{0x1a, 0, 0, 0, 0, 1}) {
		t.Errorf("got %v", a)
	}

	if _, err := ParseSourceAddress("not-a-mac"); err == nil {
		t.Error("expected error for invalid address")
	}
	// EUI-64 parses as a MAC but is the wrong width.
	if _, err := ParseSourceAddress("02:00:5e:10:00:00:00:01"); err == nil {
		t.Error("expected error for 8-byte address")
	}
}

func TestRecord_Clone(t *testing.T) {
	r := Record{Tag: 1, Timestamp: 2, Amplitudes: []int{1, 2, 3}}
	c := r.Clone()
	c.Amplitudes[0] = 99
	if r.Amplitudes[0] != 1 {
		t.Error("Clone shares amplitude storage with original")
	}
}

func TestRecord_CSVFields(t *testing.T) {
	r := Record{Tag: 3, Timestamp: 1234, Amplitudes: []int{-1, 0, 7}}
	want := []string{"3", "1234", "-1", "0", "7"}
	if diff := cmp.Diff(want, r.CSVFields()); diff != "" {
		t.Errorf("CSVFields() mismatch (-want +got):\n%s", diff)
	}
}
