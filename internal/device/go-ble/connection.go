package goble

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/device"
	"github.com/srg/penlink/internal/groutine"
)

// ----------------------------
// Device Factory
// ----------------------------

// DeviceFactory opens the HCI device with the given index (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newHCIDevice

// ParseAdapter turns an adapter name ("hci0") or a bare index ("0") into an HCI device index.
func ParseAdapter(name string) (int, error) {
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "hci")
	if s == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid adapter %q", name)
	}
	return id, nil
}

// ----------------------------
// Radio
// ----------------------------

// Radio drives the pen over a raw HCI socket. It is used when no Bluetooth daemon owns the
// adapter, so there is no adapter power control and no host profile state to clear.
type Radio struct {
	adapterID int
	logger    *logrus.Logger

	mu    sync.Mutex
	dev   ble.Device
	links map[string]*Link
}

// NewRadio creates a radio for the adapter. The HCI device is opened on first use.
func NewRadio(adapter string, logger *logrus.Logger) (*Radio, error) {
	id, err := ParseAdapter(adapter)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Radio{
		adapterID: id,
		logger:    logger,
		links:     make(map[string]*Link),
	}, nil
}

func (r *Radio) device() (ble.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dev != nil {
		return r.dev, nil
	}
	dev, err := DeviceFactory(r.adapterID)
	if err != nil {
		r.logger.WithError(err).WithField("adapter", r.adapterID).Error("Failed to open HCI device")
		return nil, NormalizeError(err)
	}
	r.dev = dev
	return dev, nil
}

// AdapterPowered reports whether the HCI device can be opened.
func (r *Radio) AdapterPowered() (bool, error) {
	if _, err := r.device(); err != nil {
		return false, err
	}
	return true, nil
}

// SetAdapterPowered opens the HCI device when on is set. Powering down is not supported.
func (r *Radio) SetAdapterPowered(on bool) error {
	if !on {
		return device.ErrUnsupported
	}
	_, err := r.device()
	return err
}

func (r *Radio) IsConnected(address string) (bool, error) {
	r.mu.Lock()
	l, ok := r.links[device.NormalizeAddress(address)]
	r.mu.Unlock()
	return ok && l.alive(), nil
}

// Dial connects to the peripheral. It blocks until the link is up or ctx is done.
func (r *Radio) Dial(ctx context.Context, address string) (device.Link, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	dev, err := r.device()
	if err != nil {
		return nil, err
	}

	r.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	l := newLink(address, client, r.logger)
	key := device.NormalizeAddress(address)
	r.mu.Lock()
	r.links[key] = l
	r.mu.Unlock()

	groutine.Go(context.Background(), "goble-link-reaper", func(context.Context) {
		<-l.Disconnected()
		r.mu.Lock()
		if r.links[key] == l {
			delete(r.links, key)
		}
		r.mu.Unlock()
	})

	r.logger.WithField("address", address).Info("BLE device connected successfully")
	return l, nil
}

// DisconnectProfiles closes any link the radio still holds for the peripheral.
func (r *Radio) DisconnectProfiles(address string) error {
	r.mu.Lock()
	l, ok := r.links[device.NormalizeAddress(address)]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return l.Close()
}

// ----------------------------
// Link
// ----------------------------

// Link is a live GATT client connection.
type Link struct {
	address string
	client  ble.Client
	logger  *logrus.Logger

	closeOnce sync.Once
	closeErr  error
}

func newLink(address string, client ble.Client, logger *logrus.Logger) *Link {
	return &Link{address: address, client: client, logger: logger}
}

func (l *Link) Address() string {
	return l.address
}

// DiscoverService discovers the full profile and returns the requested service.
func (l *Link) DiscoverService(ctx context.Context, uuid string) (device.Service, error) {
	type result struct {
		profile *ble.Profile
		err     error
	}
	done := make(chan result, 1)
	groutine.Go(ctx, "goble-discover", func(context.Context) {
		p, err := l.client.DiscoverProfile(true)
		done <- result{p, err}
	})

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		l.logger.WithFields(logrus.Fields{
			"address": l.address,
			"error":   res.err,
		}).Error("Failed to discover profile")
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(res.err))
	}

	l.logger.WithFields(logrus.Fields{
		"address":  l.address,
		"services": len(res.profile.Services),
	}).Debug("Profile discovered successfully")

	for _, svc := range res.profile.Services {
		if device.EqualUUID(svc.UUID.String(), uuid) {
			return newService(svc, l.client, l.logger), nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

func (l *Link) Disconnected() <-chan struct{} {
	return l.client.Disconnected()
}

// Close cancels the connection. Subsequent calls return the first result.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = NormalizeError(l.client.CancelConnection())
		if l.closeErr != nil {
			l.logger.WithField("error", l.closeErr).Warn("BLE device disconnected with errors")
		} else {
			l.logger.WithField("address", l.address).Info("BLE device disconnected successfully")
		}
	})
	return l.closeErr
}

func (l *Link) alive() bool {
	select {
	case <-l.client.Disconnected():
		return false
	default:
		return true
	}
}
