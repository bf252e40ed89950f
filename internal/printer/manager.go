// Package printer owns the single session to the receipt/label printer: it
// remembers the paired address, connects lazily and writes documents.
package printer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

type state struct {
	phase     Phase
	paired    string
	connected bool
	lastErr   ErrorKind
}

// Manager tracks one logical printer session. Connect, Disconnect, Transmit
// and ListDevices are serialised, so only one of them touches the transport
// at a time; State can be read while they run.
type Manager struct {
	transport Transport
	store     AddressStore
	logger    zerolog.Logger

	opMu sync.Mutex

	mu        sync.RWMutex
	st        state
	observers []func(ConnectionState)
}

func NewManager(transport Transport, store AddressStore, logger zerolog.Logger) *Manager {
	return &Manager{
		transport: transport,
		store:     store,
		logger:    logger,
	}
}

// OnChange registers fn to receive a snapshot after every state change.
// Observers run synchronously on the goroutine that changed the state and
// must not call back into the manager's blocking operations.
func (m *Manager) OnChange(fn func(ConnectionState)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

func (m *Manager) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() ConnectionState {
	cs := ConnectionState{
		Phase:         m.st.phase,
		PhaseName:     m.st.phase.String(),
		PairedAddress: m.st.paired,
		Connected:     m.st.connected,
		LastError:     m.st.lastErr,
	}
	if m.st.lastErr != 0 {
		cs.LastErrorName = m.st.lastErr.String()
	}
	return cs
}

func (m *Manager) update(fn func(s *state)) {
	m.mu.Lock()
	before := m.st
	fn(&m.st)
	after := m.st
	snap := m.snapshotLocked()
	observers := m.observers
	m.mu.Unlock()

	if before != after {
		m.logger.Debug().
			Str("phase", after.phase.String()).
			Str("address", after.paired).
			Bool("connected", after.connected).
			Msg("printer state changed")
		for _, fn := range observers {
			fn(snap)
		}
	}
}

// Canonical returns the form of address the manager stores and compares.
// Every address entering the manager goes through it.
func (m *Manager) Canonical(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	if c, ok := m.transport.(AddressCanonicalizer); ok {
		return c.Canonical(address)
	}
	return address
}

// LoadPersisted seeds the paired address from the store. It never opens a
// session: the printer is connected on first use.
func (m *Manager) LoadPersisted() error {
	stored, ok, err := m.store.Get()
	if err != nil {
		return fmt.Errorf("load paired printer: %w", err)
	}

	address := m.Canonical(stored)
	ok = ok && address != ""
	if ok && address != stored {
		if err = m.store.Set(address); err != nil {
			m.logger.Warn().Err(err).Str("address", address).Msg("rewriting persisted printer address failed")
		}
	}

	m.update(func(s *state) {
		s.phase = Disconnected
		s.connected = false
		if ok {
			s.paired = address
		}
	})

	if ok {
		m.logger.Info().Str("address", address).Msg("paired printer restored")
	}
	return nil
}

// ListDevices returns paired and discoverable printers, deduplicated by
// address with paired entries first.
func (m *Manager) ListDevices(ctx context.Context) ([]Device, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.ensureEnabled(ctx, "scan"); err != nil {
		return nil, err
	}

	m.update(func(s *state) { s.phase = Scanning })
	defer m.update(func(s *state) {
		if s.connected {
			s.phase = Connected
		} else {
			s.phase = Disconnected
		}
	})

	paired, pairedErr := m.transport.ListPaired(ctx)
	if pairedErr != nil {
		m.logger.Warn().Err(pairedErr).Msg("listing paired printers failed")
	}

	discovered, discErr := m.transport.ListDiscovered(ctx)
	if discErr != nil {
		m.logger.Warn().Err(discErr).Msg("printer discovery failed")
	}

	if pairedErr != nil && discErr != nil {
		return nil, fmt.Errorf("scan printers: %w", errors.Join(pairedErr, discErr))
	}

	return mergeDevices(paired, discovered), nil
}

func mergeDevices(paired, discovered []Device) []Device {
	seen := make(map[string]struct{}, len(paired)+len(discovered))
	out := make([]Device, 0, len(paired)+len(discovered))

	for _, d := range paired {
		if _, ok := seen[d.Address]; ok || d.Address == "" {
			continue
		}
		seen[d.Address] = struct{}{}
		d.Paired = true
		out = append(out, d)
	}
	for _, d := range discovered {
		if _, ok := seen[d.Address]; ok || d.Address == "" {
			continue
		}
		seen[d.Address] = struct{}{}
		out = append(out, d)
	}

	return out
}

// Connect opens a session to address, closing any previous one first, and
// persists address on success.
func (m *Manager) Connect(ctx context.Context, address string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	address = m.Canonical(address)
	if address == "" {
		return m.fail("connect", ConnectFailed, "", errors.New("empty address"))
	}

	m.update(func(s *state) { s.phase = Connecting })

	if err := m.transport.Disconnect(ctx); err != nil {
		m.logger.Debug().Err(err).Msg("closing previous printer session failed")
	}
	m.update(func(s *state) { s.connected = false })

	if err := m.transport.Connect(ctx, address); err != nil && !errors.Is(err, ErrAlreadyConnected) {
		return m.fail("connect", ConnectFailed, address, err)
	}

	m.update(func(s *state) {
		s.phase = Connected
		s.connected = true
		s.paired = address
		s.lastErr = 0
	})

	if err := m.store.Set(address); err != nil {
		m.logger.Warn().Err(err).Str("address", address).Msg("persisting printer address failed")
	}

	m.logger.Info().Str("address", address).Msg("printer connected")
	return nil
}

// Disconnect closes the session and forgets the paired address. Failures are
// logged, never returned.
func (m *Manager) Disconnect(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	address := m.State().PairedAddress
	m.forget(ctx)
	m.update(func(s *state) { s.lastErr = 0 })

	m.logger.Info().Str("address", address).Msg("printer disconnected")
}

func (m *Manager) forget(ctx context.Context) {
	if err := m.transport.Disconnect(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("closing printer session failed")
	}

	m.update(func(s *state) {
		s.phase = Disconnected
		s.connected = false
		s.paired = ""
	})

	if err := m.store.Clear(); err != nil {
		m.logger.Warn().Err(err).Msg("clearing persisted printer address failed")
	}
}

// Transmit writes data to the paired printer, connecting first if needed. A
// paired address that is no longer visible is forgotten so it cannot block
// printing for good.
func (m *Manager) Transmit(ctx context.Context, data []byte) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	cur := m.State()
	address := cur.PairedAddress
	if address == "" {
		return m.fail("transmit", NotConnected, "", nil)
	}

	if err := m.ensureEnabled(ctx, "transmit"); err != nil {
		if cur.Connected {
			if errClose := m.transport.Disconnect(ctx); errClose != nil {
				m.logger.Debug().Err(errClose).Msg("closing printer session failed")
			}
		}
		return err
	}

	if !cur.Connected {
		visible, err := m.isVisible(ctx, address)
		if err != nil {
			return m.fail("transmit", ConnectFailed, address, err)
		}
		if !visible {
			m.forget(ctx)
			return m.fail("transmit", PeripheralNotFound, address, nil)
		}
	}

	if err := m.transport.Connect(ctx, address); err != nil && !errors.Is(err, ErrAlreadyConnected) {
		if errors.Is(err, ErrDeviceNotFound) {
			m.forget(ctx)
			return m.fail("transmit", PeripheralNotFound, address, err)
		}
		return m.fail("transmit", ConnectFailed, address, err)
	}

	m.update(func(s *state) {
		s.phase = Connected
		s.connected = true
	})

	if err := m.transport.Write(ctx, data); err != nil {
		return m.fail("transmit", WriteFailed, address, err)
	}

	m.update(func(s *state) { s.lastErr = 0 })
	m.logger.Debug().Str("address", address).Int("bytes", len(data)).Msg("printer write done")
	return nil
}

func (m *Manager) isVisible(ctx context.Context, address string) (bool, error) {
	paired, pairedErr := m.transport.ListPaired(ctx)
	discovered, discErr := m.transport.ListDiscovered(ctx)
	if pairedErr != nil && discErr != nil {
		return false, errors.Join(pairedErr, discErr)
	}

	for _, d := range mergeDevices(paired, discovered) {
		if m.Canonical(d.Address) == address {
			return true, nil
		}
	}
	return false, nil
}

func (m *Manager) ensureEnabled(ctx context.Context, op string) error {
	enabled, err := m.transport.IsEnabled(ctx)
	if err != nil || !enabled {
		return m.fail(op, TransportDisabled, "", err)
	}
	return nil
}

// fail records kind as the last error, drops back to Disconnected and builds
// the returned error. The paired address is left alone.
func (m *Manager) fail(op string, kind ErrorKind, address string, cause error) error {
	m.update(func(s *state) {
		s.lastErr = kind
		s.phase = Disconnected
		s.connected = false
	})

	e := &Error{Kind: kind, Op: op, Address: address, Err: cause}
	m.logger.Warn().Err(e).Msg("printer operation failed")
	return e
}
