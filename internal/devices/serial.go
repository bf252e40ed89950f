package devices

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/NowakAdmin/PosPrintAgent/internal/printer"
)

// SerialTransport talks to printers exposed as serial ports: Bluetooth SPP
// (RFCOMM, virtual COM) and USB-serial adapters.
type SerialTransport struct {
	ports []string
	baud  int

	listPorts    func() ([]string, error)
	listDetailed func() ([]*enumerator.PortDetails, error)
	open         func(name string, mode *serial.Mode) (io.WriteCloser, error)
	stat         func(name string) error

	mu   sync.Mutex
	port io.WriteCloser
	addr string
}

func NewSerialTransport(cfg PrinterConfig) *SerialTransport {
	return &SerialTransport{
		ports:        cfg.SerialPorts,
		baud:         cfg.Baud(),
		listPorts:    serial.GetPortsList,
		listDetailed: enumerator.GetDetailedPortsList,
		open: func(name string, mode *serial.Mode) (io.WriteCloser, error) {
			return serial.Open(name, mode)
		},
		stat: func(name string) error {
			_, err := os.Stat(name)
			return err
		},
	}
}

// IsEnabled reports whether the host can enumerate serial ports at all.
func (t *SerialTransport) IsEnabled(_ context.Context) (bool, error) {
	if _, err := t.listPorts(); err != nil {
		return false, err
	}
	return true, nil
}

// ListPaired returns the configured ports that are present on the host.
func (t *SerialTransport) ListPaired(_ context.Context) ([]printer.Device, error) {
	present, err := t.listPorts()
	if err != nil {
		return nil, err
	}

	var out []printer.Device
	for _, name := range t.ports {
		name = strings.TrimSpace(name)
		if name == "" || !t.present(name, present) {
			continue
		}
		out = append(out, printer.Device{Address: name, Name: name, Paired: true})
	}
	return out, nil
}

// ListDiscovered returns every serial port the enumerator can see.
func (t *SerialTransport) ListDiscovered(_ context.Context) ([]printer.Device, error) {
	details, err := t.listDetailed()
	if err != nil {
		return nil, err
	}

	out := make([]printer.Device, 0, len(details))
	for _, d := range details {
		out = append(out, printer.Device{Address: d.Name, Name: describePort(d)})
	}
	return out, nil
}

func describePort(d *enumerator.PortDetails) string {
	switch {
	case d.Product != "":
		return d.Product
	case d.IsUSB:
		return fmt.Sprintf("USB %s:%s", d.VID, d.PID)
	default:
		return d.Name
	}
}

// Canonical returns the configured spelling of address, or the enumerated
// one, when they differ from address only in case.
func (t *SerialTransport) Canonical(address string) string {
	address = strings.TrimSpace(address)
	for _, p := range t.ports {
		if p = strings.TrimSpace(p); p != "" && strings.EqualFold(p, address) {
			return p
		}
	}

	if listed, err := t.listPorts(); err == nil {
		for _, p := range listed {
			if strings.EqualFold(p, address) {
				return p
			}
		}
	}
	return address
}

// present treats a configured port as available if the enumerator lists it
// or, off Windows, if its device node exists (bound rfcomm nodes are not
// always enumerated).
func (t *SerialTransport) present(name string, listed []string) bool {
	for _, p := range listed {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	if runtime.GOOS == "windows" {
		return false
	}
	return t.stat(name) == nil
}

func (t *SerialTransport) Connect(ctx context.Context, address string) error {
	address = t.Canonical(address)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil && t.addr == address {
		return printer.ErrAlreadyConnected
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	listed, err := t.listPorts()
	if err != nil {
		return err
	}
	if !t.present(address, listed) {
		return fmt.Errorf("%w: %s", printer.ErrDeviceNotFound, address)
	}

	t.closeLocked()

	mode := &serial.Mode{
		BaudRate: t.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := t.open(address, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", address, err)
	}

	t.port = port
	t.addr = address
	return nil
}

func (t *SerialTransport) Disconnect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *SerialTransport) closeLocked() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	t.addr = ""
	return err
}

// Write sends data and waits for the OS buffer to drain. Cancelling ctx
// closes the port, which unblocks a stuck write.
func (t *SerialTransport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port == nil {
		return errors.New("serial port is closed")
	}

	port := t.port
	done := make(chan error, 1)
	go func() {
		_, err := port.Write(data)
		if err == nil {
			if d, ok := port.(interface{ Drain() error }); ok {
				err = d.Drain()
			}
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = t.closeLocked()
		return ctx.Err()
	}
}
