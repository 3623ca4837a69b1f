package parse

import (
	"errors"
	"fmt"

	"github.com/banshee-data/csi.monitor/internal/csi"
)

/*
Binary CSI frame, as sent by a node over UDP:

	offset 0   .. 127  128 x int8 amplitudes, two's complement, wire order
	offset 128 .. 133  6-byte source hardware address
	offset 134 ..      ignored (room for future fields)

Single-byte units, so there is no endianness to decode. The amplitude count
is fixed by the protocol; Frame.Record reconciles it with the configured
working length.
*/
const (
	FrameAmplitudes = 128
	AddressSize     = 6
	FrameSize       = FrameAmplitudes + AddressSize // 134
)

// ErrFrameTooShort is matched by every FrameTooShortError.
var ErrFrameTooShort = errors.New("binary frame too short")

// FrameTooShortError is returned by DecodeFrame for frames under FrameSize.
type FrameTooShortError struct {
	Got int
}

func (e *FrameTooShortError) Error() string {
	return fmt.Sprintf("binary frame too short: expected at least %d bytes, got %d", FrameSize, e.Got)
}

func (e *FrameTooShortError) Is(target error) bool {
	return target == ErrFrameTooShort
}

// Frame is a decoded binary CSI frame.
type Frame struct {
	Amplitudes [FrameAmplitudes]int8
	Source     csi.SourceAddress
}

// DecodeFrame decodes a binary CSI frame. Bytes past FrameSize are ignored.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if len(b) < FrameSize {
		return f, &FrameTooShortError{Got: len(b)}
	}
	for i := 0; i < FrameAmplitudes; i++ {
		f.Amplitudes[i] = int8(b[i])
	}
	copy(f.Source[:], b[FrameAmplitudes:FrameSize])
	return f, nil
}

// Record converts the frame to a Record whose amplitudes are fitted to
// expectedLength. expectedLength <= 0 keeps all 128 values.
func (f Frame) Record(tag, timestamp uint64, expectedLength int) csi.Record {
	amps := make([]int, FrameAmplitudes)
	for i, a := range f.Amplitudes {
		amps[i] = int(a)
	}
	if expectedLength > 0 {
		amps = FitLength(amps, expectedLength)
	}
	return csi.Record{
		Tag:        tag,
		Timestamp:  timestamp,
		Amplitudes: amps,
		Source:     f.Source,
	}
}
