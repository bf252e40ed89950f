package printer

import "context"

// Phase is the manager's position in its state machine.
type Phase int

const (
	Disconnected Phase = iota
	Scanning
	Connecting
	Connected
)

func (p Phase) String() string {
	switch p {
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Device is one printer the transport can see.
type Device struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Paired  bool   `json:"paired"`
}

// Transport is the capability set the manager needs from a peripheral link.
// Connect returns ErrAlreadyConnected when a session to address is already
// open and ErrDeviceNotFound when address cannot be reached at all.
type Transport interface {
	IsEnabled(ctx context.Context) (bool, error)
	ListPaired(ctx context.Context) ([]Device, error)
	ListDiscovered(ctx context.Context) ([]Device, error)
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context) error
	Write(ctx context.Context, data []byte) error
}

// AddressCanonicalizer is implemented by transports that accept more than one
// spelling of the same printer ("10.0.0.7" and "10.0.0.7:9100", "com3" and
// "COM3"). Canonical returns the spelling the transport lists devices under.
type AddressCanonicalizer interface {
	Canonical(address string) string
}

// AddressStore persists the last connected printer address across restarts.
// Get returns ok=false when nothing is stored.
type AddressStore interface {
	Get() (address string, ok bool, err error)
	Set(address string) error
	Clear() error
}

// ConnectionState is a snapshot of the manager.
type ConnectionState struct {
	Phase         Phase     `json:"-"`
	PhaseName     string    `json:"phase"`
	PairedAddress string    `json:"paired_address,omitempty"`
	Connected     bool      `json:"connected"`
	LastError     ErrorKind `json:"-"`
	LastErrorName string    `json:"last_error,omitempty"`
}
