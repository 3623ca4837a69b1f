package network

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// ReplayStats summarises a capture replay.
type ReplayStats struct {
	Packets  int // all packets in the capture
	Matched  int // UDP packets to udpPort with a payload
	Errors   int // payloads the handler rejected
	Duration time.Duration
}

// ReadPCAPFile replays the UDP payloads sent to udpPort in a pcap or pcapng
// capture through h. A udpPort of 0 matches every UDP packet.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, format Format, h Handler) (ReplayStats, error) {
	var stats ReplayStats

	f, err := os.Open(pcapFile)
	if err != nil {
		return stats, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer f.Close()

	src, err := openCapture(bufio.NewReader(f))
	if err != nil {
		return stats, fmt.Errorf("failed to read PCAP file %s: %w", pcapFile, err)
	}

	packetSource := gopacket.NewPacketSource(src, src.LinkType())
	packetSource.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			log.Printf("PCAP reader stopping due to context cancellation (processed %d packets)", stats.Packets)
			return stats, ctx.Err()
		case packet, ok := <-packetSource.Packets():
			if !ok || packet == nil {
				stats.Duration = time.Since(startTime)
				log.Printf("PCAP file reading complete: %d packets, %d CSI payloads in %v", stats.Packets, stats.Matched, stats.Duration)
				return stats, nil
			}
			stats.Packets++

			udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
			if !ok {
				continue
			}
			if udpPort != 0 && int(udp.DstPort) != udpPort {
				continue
			}
			if len(udp.Payload) == 0 {
				continue
			}
			stats.Matched++

			if err := dispatch(ctx, format, h, udp.Payload); err != nil {
				stats.Errors++
				log.Printf("Error handling PCAP packet %d: %v", stats.Packets, err)
			}

			if stats.Packets%10000 == 0 {
				elapsed := time.Since(startTime)
				log.Printf("PCAP progress: %d packets processed in %v (%.0f pkt/s)",
					stats.Packets, elapsed, float64(stats.Packets)/elapsed.Seconds())
			}
		}
	}
}

type captureSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// openCapture sniffs the magic number to pick the classic pcap or pcapng
// reader.
func openCapture(r *bufio.Reader) (captureSource, error) {
	magic, err := r.Peek(4)
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty capture: %w", io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	// pcapng section header block type
	if magic[0] == 0x0a && magic[1] == 0x0d && magic[2] == 0x0d && magic[3] == 0x0a {
		return pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(r)
}
