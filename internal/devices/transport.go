// Package devices implements the physical links to receipt/label printers.
package devices

import (
	"fmt"
	"strings"

	"github.com/NowakAdmin/PosPrintAgent/internal/printer"
)

// NewTransport picks the printer link named by cfg.Transport.
func NewTransport(cfg PrinterConfig) (printer.Transport, error) {
	transport := strings.ToLower(strings.TrimSpace(cfg.Transport))

	if transport == "" {
		transport = "serial"
	}

	switch transport {
	case "serial", "bluetooth", "rfcomm", "com":
		return NewSerialTransport(cfg), nil
	case "raw_tcp", "tcp", "network", "jetdirect":
		return NewTCPTransport(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported printer transport: %s", transport)
	}
}
