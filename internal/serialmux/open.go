package serialmux

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// AutoPort asks NewRealSerialMux to pick the only attached device.
const AutoPort = "auto"

// ErrNoPort is returned when auto-detection finds nothing usable.
var ErrNoPort = errors.New("no serial port found")

// listPorts is swapped out in tests.
var listPorts = serial.GetPortsList

// ListPorts returns the serial ports visible to the host.
func ListPorts() ([]string, error) {
	return listPorts()
}

// ResolvePort maps AutoPort to the single USB serial device on the host.
// Any other path is returned unchanged.
func ResolvePort(path string) (string, error) {
	if path != AutoPort {
		return path, nil
	}
	ports, err := listPorts()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}
	var usb []string
	for _, p := range ports {
		if strings.Contains(p, "USB") || strings.Contains(p, "ACM") || strings.Contains(p, "usbserial") {
			usb = append(usb, p)
		}
	}
	switch len(usb) {
	case 0:
		return "", ErrNoPort
	case 1:
		return usb[0], nil
	default:
		return "", fmt.Errorf("several serial ports found, pick one of %s", strings.Join(usb, ", "))
	}
}

// NewRealSerialMux opens path (or AutoPort) with opts.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	path, err = ResolvePort(path)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return NewSerialMux[serial.Port](port), nil
}
