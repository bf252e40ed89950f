package printer

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the manager reports. A kind is itself an
// error, so errors.Is(err, printer.NotConnected) works on wrapped errors.
type ErrorKind int

const (
	TransportDisabled ErrorKind = iota + 1
	PeripheralNotFound
	ConnectFailed
	NotConnected
	WriteFailed
)

func (k ErrorKind) String() string {
	switch k {
	case TransportDisabled:
		return "transport_disabled"
	case PeripheralNotFound:
		return "peripheral_not_found"
	case ConnectFailed:
		return "connect_failed"
	case NotConnected:
		return "not_connected"
	case WriteFailed:
		return "write_failed"
	default:
		return "unknown"
	}
}

func (k ErrorKind) Error() string {
	return "printer: " + k.String()
}

// Transport implementations return these so the manager can tell benign and
// healing cases apart from real failures.
var (
	ErrAlreadyConnected = errors.New("printer: already connected")
	ErrDeviceNotFound   = errors.New("printer: device not found")
)

// Error is a classified manager failure.
type Error struct {
	Kind    ErrorKind
	Op      string
	Address string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Address != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Op, e.Address, e.Kind.String())
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "printer: " + msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf extracts the ErrorKind carried by err, or 0 when there is none.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var k ErrorKind
	if errors.As(err, &k) {
		return k
	}
	return 0
}
