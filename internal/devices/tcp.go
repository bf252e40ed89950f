package devices

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/NowakAdmin/PosPrintAgent/internal/printer"
)

// TCPTransport talks to network printers on the raw (JetDirect) port.
type TCPTransport struct {
	hosts        []string
	port         string
	dialTimeout  time.Duration
	writeTimeout time.Duration
	dialer       net.Dialer

	mu   sync.Mutex
	conn net.Conn
	addr string
}

func NewTCPTransport(cfg PrinterConfig) *TCPTransport {
	t := &TCPTransport{
		port:         strconv.Itoa(cfg.RawPort()),
		dialTimeout:  cfg.DialTimeout(),
		writeTimeout: cfg.WriteTimeout(),
	}

	for _, h := range cfg.TCPHosts {
		if h = strings.TrimSpace(h); h != "" {
			t.hosts = append(t.hosts, t.Canonical(h))
		}
	}
	return t
}

// Canonical returns address as host:port with a lower-case host, adding the
// raw port when address has none.
func (t *TCPTransport) Canonical(address string) string {
	return normalizeHost(strings.ToLower(strings.TrimSpace(address)), t.port)
}

func normalizeHost(h, port string) string {
	if _, _, err := net.SplitHostPort(h); err == nil {
		return h
	}
	return net.JoinHostPort(strings.Trim(h, "[]"), port)
}

// IsEnabled is always true: there is no radio to switch off.
func (t *TCPTransport) IsEnabled(_ context.Context) (bool, error) {
	return true, nil
}

func (t *TCPTransport) ListPaired(_ context.Context) ([]printer.Device, error) {
	out := make([]printer.Device, 0, len(t.hosts))
	for _, h := range t.hosts {
		out = append(out, printer.Device{Address: h, Name: h, Paired: true})
	}
	return out, nil
}

// ListDiscovered probes the configured hosts in parallel and returns the ones
// accepting connections. The host with the open session is not probed again,
// many printers accept only one client.
func (t *TCPTransport) ListDiscovered(ctx context.Context) ([]printer.Device, error) {
	t.mu.Lock()
	current := t.addr
	t.mu.Unlock()

	reachable := make([]bool, len(t.hosts))
	var wg sync.WaitGroup
	for i, h := range t.hosts {
		if h == current {
			reachable[i] = true
			continue
		}

		wg.Add(1)
		go func(i int, h string) {
			defer wg.Done()
			reachable[i] = t.probe(ctx, h)
		}(i, h)
	}
	wg.Wait()

	var out []printer.Device
	for i, h := range t.hosts {
		if reachable[i] {
			out = append(out, printer.Device{Address: h, Name: "raw tcp " + h})
		}
	}
	return out, nil
}

func (t *TCPTransport) probe(ctx context.Context, addr string) bool {
	ctx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (t *TCPTransport) Connect(ctx context.Context, address string) error {
	address = t.Canonical(address)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil && t.addr == address {
		return printer.ErrAlreadyConnected
	}
	t.closeLocked()

	dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	conn, err := t.dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}

	t.conn = conn
	t.addr = address
	return nil
}

func (t *TCPTransport) Disconnect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *TCPTransport) closeLocked() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.addr = ""
	return err
}

// Write sends data with a deadline of writeTimeout or ctx's deadline,
// whichever is sooner. A failed write drops the socket.
func (t *TCPTransport) Write(ctx context.Context, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return errors.New("tcp printer session is closed")
	}

	deadline := time.Now().Add(t.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)

	if _, err := t.conn.Write(data); err != nil {
		_ = t.closeLocked()
		return err
	}
	return nil
}
