package devicefactory

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/device"
	"github.com/srg/penlink/internal/device/bluez"
	goble "github.com/srg/penlink/internal/device/go-ble"
)

const (
	BackendBlueZ = "bluez"
	BackendHCI   = "hci"
)

// Options selects and configures a radio backend.
type Options struct {
	Backend string
	Adapter string
}

// Backend is an opened radio together with the host integration it supports.
// The HCI backend has no pairing agent and no adapter power events.
type Backend struct {
	device.Radio

	watchPower    func(func(bool))
	registerAgent func(context.Context, bluez.PairingConfirmer) error
	close         func() error
}

// WatchAdapterPower forwards adapter power changes to fn when the backend reports them.
func (b *Backend) WatchAdapterPower(fn func(on bool)) {
	if b.watchPower != nil {
		b.watchPower(fn)
	}
}

// RegisterAgent installs a pairing agent that consults confirm.
func (b *Backend) RegisterAgent(ctx context.Context, confirm bluez.PairingConfirmer) error {
	if b.registerAgent == nil {
		return nil
	}
	return b.registerAgent(ctx, confirm)
}

func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// BusFactory opens the D-Bus connection for the BlueZ backend (can be overridden in tests)
var BusFactory = bluez.ConnectSystemBus

// DeviceFactory opens the backend named in opts. Background work stops when ctx is done.
// This is a variable so that it can be overridden in tests.
var DeviceFactory = func(ctx context.Context, opts Options, logger *logrus.Logger) (*Backend, error) {
	switch opts.Backend {
	case BackendBlueZ, "":
		return openBlueZ(ctx, opts, logger)
	case BackendHCI:
		radio, err := goble.NewRadio(opts.Adapter, logger)
		if err != nil {
			return nil, err
		}
		return &Backend{Radio: radio}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}

// NewBackend wraps a radio with no host integration, e.g. a test double.
func NewBackend(radio device.Radio) *Backend {
	return &Backend{Radio: radio}
}

func openBlueZ(ctx context.Context, opts Options, logger *logrus.Logger) (*Backend, error) {
	bus, err := BusFactory()
	if err != nil {
		return nil, err
	}
	radio, err := bluez.NewRadio(ctx, bus, opts.Adapter, logger)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}

	var agent *bluez.Agent
	return &Backend{
		Radio:      radio,
		watchPower: radio.WatchAdapterPower,
		registerAgent: func(ctx context.Context, confirm bluez.PairingConfirmer) error {
			agent = bluez.NewAgent(confirm, logger)
			return agent.Register(ctx, bus)
		},
		close: func() error {
			var errs []error
			if agent != nil {
				errs = append(errs, agent.Unregister(context.Background(), bus))
			}
			errs = append(errs, bus.Close())
			return errors.Join(errs...)
		},
	}, nil
}
