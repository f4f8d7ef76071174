//go:build test

package testutils

import (
	"context"
	"sync"

	"github.com/srg/penlink/internal/device"
	"github.com/srg/penlink/internal/input"
	"github.com/stretchr/testify/mock"
)

// MockRadio implements device.Radio for testing
type MockRadio struct {
	mock.Mock
}

func (m *MockRadio) AdapterPowered() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *MockRadio) SetAdapterPowered(on bool) error {
	args := m.Called(on)
	return args.Error(0)
}

func (m *MockRadio) IsConnected(address string) (bool, error) {
	args := m.Called(address)
	return args.Bool(0), args.Error(1)
}

func (m *MockRadio) Dial(ctx context.Context, address string) (device.Link, error) {
	args := m.Called(ctx, address)
	if l, ok := args.Get(0).(device.Link); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRadio) DisconnectProfiles(address string) error {
	args := m.Called(address)
	return args.Error(0)
}

// MockLink implements device.Link for testing. Drop simulates an unsolicited disconnect.
type MockLink struct {
	mock.Mock

	address  string
	lost     chan struct{}
	lostOnce sync.Once
}

func NewMockLink(address string) *MockLink {
	return &MockLink{address: address, lost: make(chan struct{})}
}

func (m *MockLink) Address() string {
	return m.address
}

func (m *MockLink) DiscoverService(ctx context.Context, uuid string) (device.Service, error) {
	args := m.Called(ctx, uuid)
	if s, ok := args.Get(0).(device.Service); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLink) Disconnected() <-chan struct{} {
	return m.lost
}

func (m *MockLink) Close() error {
	args := m.Called()
	m.Drop()
	return args.Error(0)
}

// Drop closes the Disconnected channel.
func (m *MockLink) Drop() {
	m.lostOnce.Do(func() { close(m.lost) })
}

// MockService implements device.Service for testing
type MockService struct {
	mock.Mock
	uuid string
}

func NewMockService(uuid string) *MockService {
	return &MockService{uuid: uuid}
}

func (m *MockService) UUID() string {
	return m.uuid
}

func (m *MockService) Characteristic(uuid string) (device.Characteristic, error) {
	args := m.Called(uuid)
	if c, ok := args.Get(0).(device.Characteristic); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockCharacteristic implements device.Characteristic for testing.
// The handler passed to Subscribe is kept so tests can push notifications with Notify.
type MockCharacteristic struct {
	mock.Mock
	uuid string

	mu      sync.Mutex
	handler device.NotificationHandler
}

func NewMockCharacteristic(uuid string) *MockCharacteristic {
	return &MockCharacteristic{uuid: uuid}
}

func (m *MockCharacteristic) UUID() string {
	return m.uuid
}

func (m *MockCharacteristic) Subscribe(handler device.NotificationHandler) error {
	args := m.Called()
	if args.Error(0) == nil {
		m.mu.Lock()
		m.handler = handler
		m.mu.Unlock()
	}
	return args.Error(0)
}

// Notify delivers data to the subscribed handler. It reports false when nothing is subscribed.
func (m *MockCharacteristic) Notify(data []byte) bool {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// MockHAL implements hal.Capability for testing
type MockHAL struct {
	mock.Mock
}

func (m *MockHAL) Address() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *MockHAL) IsCharging() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *MockHAL) SetCharging(on bool) error {
	args := m.Called(on)
	return args.Error(0)
}

// StaticSettings implements the settings source with fixed values.
type StaticSettings struct {
	mu      sync.Mutex
	enabled bool
	mode    string
}

func NewStaticSettings(enabled bool, mode string) *StaticSettings {
	return &StaticSettings{enabled: enabled, mode: mode}
}

func (s *StaticSettings) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *StaticSettings) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// RecordingSink implements input.Sink and keeps every injected event.
type RecordingSink struct {
	mu     sync.Mutex
	events []input.KeyEvent
	err    error
}

func (r *RecordingSink) Inject(ev input.KeyEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *RecordingSink) Close() error {
	return nil
}

// FailWith makes every following Inject return err after recording the event.
func (r *RecordingSink) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *RecordingSink) Events() []input.KeyEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]input.KeyEvent(nil), r.events...)
}
