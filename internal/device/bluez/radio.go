package bluez

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/device"
)

const (
	// ServicesResolveTimeout bounds the wait for BlueZ to finish GATT discovery after connect.
	ServicesResolveTimeout = 15 * time.Second

	resolvePollInterval = 200 * time.Millisecond
)

// Radio controls a BlueZ adapter and the pen's device object.
type Radio struct {
	bus     Bus
	adapter string
	path    dbus.ObjectPath
	router  *signalRouter
	logger  *logrus.Logger

	// linkSeq numbers dial attempts; a later attempt owns the device's signal routes.
	linkSeq atomic.Uint64

	resolveTimeout time.Duration
	pollInterval   time.Duration
}

// NewRadio creates a radio for the adapter ("hci0") and starts routing BlueZ property signals
// until ctx is done.
func NewRadio(ctx context.Context, bus Bus, adapter string, logger *logrus.Logger) (*Radio, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if adapter == "" {
		adapter = "hci0"
	}
	r := &Radio{
		bus:            bus,
		adapter:        adapter,
		path:           AdapterPath(adapter),
		router:         newSignalRouter(logger),
		logger:         logger,
		resolveTimeout: ServicesResolveTimeout,
		pollInterval:   resolvePollInterval,
	}
	if err := r.router.start(ctx, bus); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Radio) AdapterPowered() (bool, error) {
	powered, err := getBool(context.Background(), r.bus, r.path, adapterIface, "Powered")
	if err != nil {
		return false, normalize(err)
	}
	return powered, nil
}

func (r *Radio) SetAdapterPowered(on bool) error {
	r.logger.WithFields(logrus.Fields{
		"adapter": r.adapter,
		"powered": on,
	}).Debug("Setting adapter power")
	return normalize(setProp(context.Background(), r.bus, r.path, adapterIface, "Powered", on))
}

// WatchAdapterPower calls fn whenever the adapter's Powered property changes.
// Only one watcher is kept; a later call replaces the earlier one.
func (r *Radio) WatchAdapterPower(fn func(on bool)) {
	r.router.register(r.path, adapterIface, 0, func(changed map[string]dbus.Variant) {
		if v, ok := changed["Powered"]; ok {
			if on, ok := v.Value().(bool); ok {
				fn(on)
			}
		}
	})
}

// IsConnected reports the Device1.Connected property. An unknown device is not connected.
func (r *Radio) IsConnected(address string) (bool, error) {
	connected, err := getBool(context.Background(), r.bus, DevicePath(r.adapter, address), deviceIface, "Connected")
	if err != nil {
		if errorName(err) == errUnknownObject || errorName(err) == errUnknownMethod {
			return false, nil
		}
		return false, normalize(err)
	}
	return connected, nil
}

// Dial connects the device and waits until BlueZ has resolved its GATT services.
func (r *Radio) Dial(ctx context.Context, address string) (device.Link, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	seq := r.linkSeq.Add(1)
	path := DevicePath(r.adapter, address)
	log := r.logger.WithFields(logrus.Fields{"address": address, "attempt": seq})

	log.Debug("Connecting BlueZ device...")
	if err := r.connectDevice(ctx, path, address); err != nil {
		log.WithError(err).Error("Failed to connect BlueZ device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, err)
	}

	l := newLink(r, address, path, seq)
	if !r.router.register(path, deviceIface, seq, l.onDeviceChanged) {
		log.Debug("Dial superseded by a newer attempt")
		l.markLost()
		return nil, fmt.Errorf("dial to %q superseded by a newer connection attempt", address)
	}

	if err := r.waitServicesResolved(ctx, path); err != nil {
		log.WithError(err).Error("BlueZ service discovery did not complete")
		_ = l.Close()
		return nil, err
	}

	// The link may have dropped before the watcher was registered.
	if connected, err := r.IsConnected(address); err == nil && !connected {
		l.markLost()
	}

	log.Info("BlueZ device connected successfully")
	return l, nil
}

func (r *Radio) connectDevice(ctx context.Context, path dbus.ObjectPath, address string) error {
	err := r.bus.Call(ctx, path, deviceIface+".Connect").Err
	switch errorName(err) {
	case "":
		if err != nil {
			return normalize(err)
		}
		return nil
	case errAlreadyConnected:
		return nil
	case errUnknownObject, errUnknownMethod:
		// Not in the BlueZ cache yet; ask the adapter to create and connect it.
		args := map[string]dbus.Variant{
			"Address":     dbus.MakeVariant(strings.ToUpper(address)),
			"AddressType": dbus.MakeVariant("public"),
		}
		if err := r.bus.Call(ctx, r.path, adapterIface+".ConnectDevice", args).Err; err != nil {
			return normalize(err)
		}
		return nil
	default:
		return normalize(err)
	}
}

func (r *Radio) waitServicesResolved(ctx context.Context, path dbus.ObjectPath) error {
	deadline := time.NewTimer(r.resolveTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		resolved, err := getBool(ctx, r.bus, path, deviceIface, "ServicesResolved")
		if err == nil && resolved {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("service discovery timed out after %s", r.resolveTimeout)
		case <-ticker.C:
		}
	}
}

// DisconnectProfiles drops every profile BlueZ holds for the device. A device that is not
// connected, or unknown to BlueZ, is not an error.
func (r *Radio) DisconnectProfiles(address string) error {
	err := r.bus.Call(context.Background(), DevicePath(r.adapter, address), deviceIface+".Disconnect").Err
	switch errorName(err) {
	case errNotConnected, errUnknownObject, errUnknownMethod:
		return nil
	}
	return normalize(err)
}

func normalize(err error) error {
	return device.NormalizeError(err)
}
