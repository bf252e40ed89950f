package printer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu         sync.Mutex
	enabled    bool
	paired     []Device
	discovered []Device
	open       string
	connectErr error
	writeErr   error
	written    [][]byte
	connects   int
}

func newFakeTransport(addrs ...string) *fakeTransport {
	ft := &fakeTransport{enabled: true}
	for _, a := range addrs {
		ft.paired = append(ft.paired, Device{Address: a, Name: "printer " + a})
	}
	return ft
}

func (f *fakeTransport) IsEnabled(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled, nil
}

func (f *fakeTransport) ListPaired(context.Context) ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Device(nil), f.paired...), nil
}

func (f *fakeTransport) ListDiscovered(context.Context) ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Device(nil), f.discovered...), nil
}

func (f *fakeTransport) known(address string) bool {
	for _, d := range append(append([]Device(nil), f.paired...), f.discovered...) {
		if d.Address == address {
			return true
		}
	}
	return false
}

func (f *fakeTransport) Connect(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	if !f.known(address) {
		return ErrDeviceNotFound
	}
	if f.open == address {
		return ErrAlreadyConnected
	}
	f.open = address
	return nil
}

func (f *fakeTransport) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = ""
	return nil
}

func (f *fakeTransport) Write(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

// upperTransport accepts any case of an address and lists it upper-cased.
type upperTransport struct {
	*fakeTransport
}

func (upperTransport) Canonical(address string) string {
	return strings.ToUpper(address)
}

type memStore struct {
	mu      sync.Mutex
	address string
	ok      bool
	setErr  error
}

func (s *memStore) Get() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address, s.ok, nil
}

func (s *memStore) Set(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.address, s.ok = address, true
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address, s.ok = "", false
	return nil
}

func TestLoadPersistedDoesNotConnect(t *testing.T) {
	ft := newFakeTransport("AA:01")
	store := &memStore{address: "AA:01", ok: true}
	m := NewManager(ft, store, zerolog.Nop())

	require.NoError(t, m.LoadPersisted())

	st := m.State()
	assert.Equal(t, "AA:01", st.PairedAddress)
	assert.False(t, st.Connected)
	assert.Equal(t, Disconnected, st.Phase)
	assert.Zero(t, ft.connects)
}

func TestConnectPersistsAddress(t *testing.T) {
	ft := newFakeTransport("AA:01", "AA:02")
	store := &memStore{}
	m := NewManager(ft, store, zerolog.Nop())

	var phases []Phase
	m.OnChange(func(cs ConnectionState) { phases = append(phases, cs.Phase) })

	require.NoError(t, m.Connect(context.Background(), "AA:01"))
	assert.Equal(t, "AA:01", store.address)
	assert.Contains(t, phases, Connecting)
	assert.Equal(t, Connected, phases[len(phases)-1])

	require.NoError(t, m.Connect(context.Background(), "AA:02"))
	assert.Equal(t, "AA:02", ft.open)
	assert.Equal(t, "AA:02", store.address)
	assert.True(t, m.State().Connected)
}

func TestConnectFailure(t *testing.T) {
	ft := newFakeTransport("AA:01")
	ft.connectErr = errors.New("rfcomm refused")
	store := &memStore{}
	m := NewManager(ft, store, zerolog.Nop())

	err := m.Connect(context.Background(), "AA:01")
	require.Error(t, err)
	assert.ErrorIs(t, err, ConnectFailed)
	assert.ErrorIs(t, err, ft.connectErr)
	assert.Equal(t, ConnectFailed, KindOf(err))

	st := m.State()
	assert.Equal(t, Disconnected, st.Phase)
	assert.False(t, st.Connected)
	assert.Equal(t, "connect_failed", st.LastErrorName)
	assert.False(t, store.ok)
}

func TestConnectSurvivesPersistFailure(t *testing.T) {
	ft := newFakeTransport("AA:01")
	m := NewManager(ft, &memStore{setErr: errors.New("disk full")}, zerolog.Nop())

	require.NoError(t, m.Connect(context.Background(), "AA:01"))
	assert.True(t, m.State().Connected)
}

func TestDisconnectClearsEverything(t *testing.T) {
	ft := newFakeTransport("AA:01")
	store := &memStore{}
	m := NewManager(ft, store, zerolog.Nop())
	require.NoError(t, m.Connect(context.Background(), "AA:01"))

	m.Disconnect(context.Background())

	st := m.State()
	assert.Empty(t, st.PairedAddress)
	assert.False(t, st.Connected)
	assert.Equal(t, Disconnected, st.Phase)
	assert.False(t, store.ok)
	assert.Empty(t, ft.open)
}

func TestTransmitRequiresPairing(t *testing.T) {
	m := NewManager(newFakeTransport(), &memStore{}, zerolog.Nop())

	err := m.Transmit(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, NotConnected)
}

func TestTransmitTransportDisabled(t *testing.T) {
	ft := newFakeTransport("AA:01")
	ft.enabled = false
	m := NewManager(ft, &memStore{address: "AA:01", ok: true}, zerolog.Nop())
	require.NoError(t, m.LoadPersisted())

	err := m.Transmit(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, TransportDisabled)
	assert.Equal(t, "AA:01", m.State().PairedAddress)
}

func TestTransmitConnectsLazily(t *testing.T) {
	ft := newFakeTransport("AA:01")
	m := NewManager(ft, &memStore{address: "AA:01", ok: true}, zerolog.Nop())
	require.NoError(t, m.LoadPersisted())

	require.NoError(t, m.Transmit(context.Background(), []byte{0x1B, 0x40}))
	require.NoError(t, m.Transmit(context.Background(), []byte("second")))

	assert.Equal(t, [][]byte{{0x1B, 0x40}, []byte("second")}, ft.written)
	assert.True(t, m.State().Connected)
	assert.Equal(t, Connected, m.State().Phase)
}

func TestTransmitHealsStaleAddress(t *testing.T) {
	ft := newFakeTransport("AA:02")
	store := &memStore{address: "AA:01", ok: true}
	m := NewManager(ft, store, zerolog.Nop())
	require.NoError(t, m.LoadPersisted())

	err := m.Transmit(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, PeripheralNotFound)
	assert.False(t, store.ok)
	assert.Empty(t, store.address)
	assert.Empty(t, m.State().PairedAddress)
	assert.Empty(t, ft.written)

	err = m.Transmit(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, NotConnected)
}

func TestTransmitHealsWhenConnectReportsNotFound(t *testing.T) {
	ft := newFakeTransport("AA:01")
	store := &memStore{}
	m := NewManager(ft, store, zerolog.Nop())
	require.NoError(t, m.Connect(context.Background(), "AA:01"))

	ft.mu.Lock()
	ft.paired = nil
	ft.open = ""
	ft.mu.Unlock()

	err := m.Transmit(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, PeripheralNotFound)
	assert.False(t, store.ok)
}

func TestTransmitWriteFailure(t *testing.T) {
	ft := newFakeTransport("AA:01")
	ft.writeErr = errors.New("broken pipe")
	store := &memStore{}
	m := NewManager(ft, store, zerolog.Nop())
	require.NoError(t, m.Connect(context.Background(), "AA:01"))

	err := m.Transmit(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, WriteFailed)

	st := m.State()
	assert.False(t, st.Connected)
	assert.Equal(t, "AA:01", st.PairedAddress, "a write failure keeps the pairing")
	assert.Equal(t, WriteFailed, st.LastError)

	ft.mu.Lock()
	ft.writeErr = nil
	ft.mu.Unlock()
	require.NoError(t, m.Transmit(context.Background(), []byte("retry")))
	assert.Zero(t, m.State().LastError)
}

func TestListDevicesDeduplicates(t *testing.T) {
	ft := newFakeTransport("AA:01", "AA:02")
	ft.discovered = []Device{
		{Address: "AA:02", Name: "dup"},
		{Address: "AA:03", Name: "new"},
		{Address: ""},
	}
	m := NewManager(ft, &memStore{}, zerolog.Nop())

	devices, err := m.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "AA:01", devices[0].Address)
	assert.True(t, devices[1].Paired)
	assert.Equal(t, "printer AA:02", devices[1].Name)
	assert.Equal(t, Device{Address: "AA:03", Name: "new"}, devices[2])
	assert.Equal(t, Disconnected, m.State().Phase)
}

func TestListDevicesKeepsLiveSession(t *testing.T) {
	ft := newFakeTransport("AA:01")
	m := NewManager(ft, &memStore{}, zerolog.Nop())
	require.NoError(t, m.Connect(context.Background(), "AA:01"))

	_, err := m.ListDevices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Connected, m.State().Phase)
}

func TestListDevicesFromIdleReturnsToDisconnected(t *testing.T) {
	ft := newFakeTransport("AA:01")
	m := NewManager(ft, &memStore{address: "AA:01", ok: true}, zerolog.Nop())
	require.NoError(t, m.LoadPersisted())

	var phases []Phase
	m.OnChange(func(cs ConnectionState) { phases = append(phases, cs.Phase) })

	_, err := m.ListDevices(context.Background())
	require.NoError(t, err)

	st := m.State()
	assert.Equal(t, []Phase{Scanning, Disconnected}, phases)
	assert.Equal(t, Disconnected, st.Phase)
	assert.False(t, st.Connected)
	assert.Equal(t, "AA:01", st.PairedAddress)
}

func TestListDevicesTransportDisabled(t *testing.T) {
	ft := newFakeTransport()
	ft.enabled = false
	m := NewManager(ft, &memStore{}, zerolog.Nop())

	_, err := m.ListDevices(context.Background())
	assert.ErrorIs(t, err, TransportDisabled)
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: WriteFailed, Op: "transmit", Address: "COM7", Err: errors.New("timeout")}
	assert.Equal(t, "printer: transmit COM7: write_failed: timeout", err.Error())
	assert.Equal(t, "printer: transmit: not_connected", (&Error{Kind: NotConnected, Op: "transmit"}).Error())
	assert.Equal(t, ErrorKind(0), KindOf(errors.New("plain")))
	assert.Equal(t, NotConnected, KindOf(NotConnected))
}

func TestOnChangeNotifiesEveryObserver(t *testing.T) {
	m := NewManager(newFakeTransport("AA:01"), &memStore{}, zerolog.Nop())

	var first, second []ConnectionState
	m.OnChange(func(cs ConnectionState) { first = append(first, cs) })
	m.OnChange(func(cs ConnectionState) { second = append(second, cs) })

	require.NoError(t, m.Connect(context.Background(), "AA:01"))

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
	assert.True(t, first[len(first)-1].Connected)
}

func TestConnectStoresCanonicalAddress(t *testing.T) {
	store := &memStore{}
	m := NewManager(upperTransport{newFakeTransport("COM3")}, store, zerolog.Nop())

	require.NoError(t, m.Connect(context.Background(), " com3 "))
	assert.Equal(t, "COM3", store.address)
	assert.Equal(t, "COM3", m.State().PairedAddress)
	assert.Equal(t, "COM3", m.Canonical("Com3"))
}

func TestOtherSpellingSurvivesRestart(t *testing.T) {
	store := &memStore{}
	first := NewManager(upperTransport{newFakeTransport("COM3")}, store, zerolog.Nop())
	require.NoError(t, first.Connect(context.Background(), "com3"))

	ft := newFakeTransport("COM3")
	second := NewManager(upperTransport{ft}, store, zerolog.Nop())
	require.NoError(t, second.LoadPersisted())

	require.NoError(t, second.Transmit(context.Background(), []byte("after restart")))
	assert.Equal(t, [][]byte{[]byte("after restart")}, ft.written)
	assert.True(t, store.ok)
	assert.Equal(t, "COM3", store.address)
}

func TestLoadPersistedRewritesOldSpelling(t *testing.T) {
	store := &memStore{address: "com3", ok: true}
	ft := newFakeTransport("COM3")
	m := NewManager(upperTransport{ft}, store, zerolog.Nop())

	require.NoError(t, m.LoadPersisted())
	assert.Equal(t, "COM3", m.State().PairedAddress)
	assert.Equal(t, "COM3", store.address)

	require.NoError(t, m.Transmit(context.Background(), []byte("x")))
}

func TestTransmitTransportDisabledDropsSession(t *testing.T) {
	ft := newFakeTransport("AA:01")
	m := NewManager(ft, &memStore{}, zerolog.Nop())
	require.NoError(t, m.Connect(context.Background(), "AA:01"))

	ft.mu.Lock()
	ft.enabled = false
	ft.mu.Unlock()

	err := m.Transmit(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, TransportDisabled)

	st := m.State()
	assert.Equal(t, Disconnected, st.Phase)
	assert.False(t, st.Connected)
	assert.Equal(t, TransportDisabled, st.LastError)
	assert.Equal(t, "AA:01", st.PairedAddress, "the pairing is kept")
	assert.Empty(t, ft.open)

	ft.mu.Lock()
	ft.enabled = true
	ft.mu.Unlock()

	require.NoError(t, m.Transmit(context.Background(), []byte("back")))
	assert.True(t, m.State().Connected)
}
