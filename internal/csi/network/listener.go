// Package network receives CSI packets over UDP, either live from a socket
// or replayed from a capture file.
package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/csi.monitor/internal/csi/parse"
)

// Format selects how a datagram payload is interpreted.
type Format string

const (
	// FormatBinary is the fixed 134-byte amplitude+address frame.
	FormatBinary Format = "binary"
	// FormatText is one or more "tag:timestamp:amplitudes" lines.
	FormatText Format = "text"
)

// ParseFormat validates s as a Format. The empty string means binary.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatBinary:
		return FormatBinary, nil
	case FormatText:
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown UDP payload format %q (want %q or %q)", s, FormatBinary, FormatText)
}

// Handler consumes datagram payloads. *pipeline.Pipeline satisfies it.
type Handler interface {
	HandleDatagram(ctx context.Context, b []byte) error
	HandleLine(ctx context.Context, line string) []parse.Result
}

// maxDatagram covers the largest UDP payload; text datagrams from mesh
// nodes can run well past a binary frame.
const maxDatagram = 64 * 1024

// UDPListener reads datagrams from a socket and hands each to a Handler.
type UDPListener struct {
	address string
	rcvBuf  int
	format  Format
	handler Handler

	mu   sync.Mutex
	conn *net.UDPConn
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address string
	RcvBuf  int
	Format  Format
	Handler Handler
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	format := config.Format
	if format == "" {
		format = FormatBinary
	}
	return &UDPListener{
		address: config.Address,
		rcvBuf:  config.RcvBuf,
		format:  format,
		handler: config.Handler,
	}
}

// Start binds the socket and processes datagrams until ctx is cancelled.
func (l *UDPListener) Start(ctx context.Context) error {
	if l.handler == nil {
		return errors.New("UDP listener has no handler")
	}
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	log.Printf("UDP listener started on %s (%s payloads)", conn.LocalAddr(), l.format)

	buffer := make([]byte, maxDatagram)
	for {
		select {
		case <-ctx.Done():
			log.Print("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Set read deadline to allow checking context cancellation
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, from, err := conn.ReadFromUDP(buffer)
			if err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				log.Printf("UDP read error: %v", err)
				continue
			}

			if err := dispatch(ctx, l.format, l.handler, buffer[:n]); err != nil {
				log.Printf("Error handling datagram from %v: %v", from, err)
			}
		}
	}
}

// LocalAddr returns the bound address, or nil before Start has bound.
func (l *UDPListener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close closes the UDP listener and releases resources.
func (l *UDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

// dispatch routes a payload by format. The handler may retain nothing from
// b; the read buffer is reused.
func dispatch(ctx context.Context, format Format, h Handler, b []byte) error {
	if format == FormatText {
		h.HandleLine(ctx, string(b))
		return nil
	}
	return h.HandleDatagram(ctx, b)
}
