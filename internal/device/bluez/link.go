package bluez

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/device"
)

// Link is a connected BlueZ device object.
type Link struct {
	radio   *Radio
	address string
	path    dbus.ObjectPath
	seq     uint64

	lost     chan struct{}
	lostOnce sync.Once

	mu        sync.Mutex
	notifying []dbus.ObjectPath

	closeOnce sync.Once
	closeErr  error
}

func newLink(r *Radio, address string, path dbus.ObjectPath, seq uint64) *Link {
	return &Link{
		radio:   r,
		address: address,
		path:    path,
		seq:     seq,
		lost:    make(chan struct{}),
	}
}

func (l *Link) Address() string {
	return l.address
}

func (l *Link) Disconnected() <-chan struct{} {
	return l.lost
}

func (l *Link) markLost() {
	l.lostOnce.Do(func() { close(l.lost) })
}

func (l *Link) onDeviceChanged(changed map[string]dbus.Variant) {
	if v, ok := changed["Connected"]; ok {
		if connected, ok := v.Value().(bool); ok && !connected {
			l.radio.logger.WithField("address", l.address).Debug("BlueZ reports device disconnected")
			l.markLost()
		}
	}
}

// DiscoverService looks the service up among the objects BlueZ resolved for the device.
func (l *Link) DiscoverService(ctx context.Context, uuid string) (device.Service, error) {
	objects, err := getManagedObjects(ctx, l.radio.bus)
	if err != nil {
		return nil, normalize(err)
	}
	for path, ifaces := range objects {
		props, ok := ifaces[gattServiceIface]
		if !ok || !isUnder(path, l.path) {
			continue
		}
		if device.EqualUUID(stringProp(props, "UUID"), uuid) {
			l.radio.logger.WithFields(logrus.Fields{
				"address": l.address,
				"service": path,
			}).Debug("Found GATT service")
			return &Service{link: l, path: path, uuid: device.NormalizeUUID(uuid), objects: objects}, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

func (l *Link) trackNotify(path dbus.ObjectPath) {
	l.mu.Lock()
	l.notifying = append(l.notifying, path)
	l.mu.Unlock()
}

// Close stops notifications, disconnects the device and marks the link lost.
// A link superseded by a newer dial to the same device only marks itself lost: the device,
// its notifications and its signal routes belong to the newer link.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		r := l.radio
		l.mu.Lock()
		paths := l.notifying
		l.notifying = nil
		l.mu.Unlock()

		for _, p := range paths {
			if r.router.unregister(p, gattCharIface, l.seq) {
				_ = r.bus.Call(context.Background(), p, gattCharIface+".StopNotify").Err
			}
		}
		owned := r.router.unregister(l.path, deviceIface, l.seq)
		if owned {
			l.closeErr = r.DisconnectProfiles(l.address)
		}
		l.markLost()

		log := r.logger.WithFields(logrus.Fields{"address": l.address, "attempt": l.seq})
		switch {
		case !owned:
			log.Debug("Superseded BlueZ link closed, device left to the newer link")
		case l.closeErr != nil:
			log.WithError(l.closeErr).Warn("BlueZ device disconnected with errors")
		default:
			log.Info("BlueZ device disconnected successfully")
		}
	})
	return l.closeErr
}

// Service is a resolved GATT service object.
type Service struct {
	link    *Link
	path    dbus.ObjectPath
	uuid    string
	objects managedObjects
}

func (s *Service) UUID() string {
	return s.uuid
}

func (s *Service) Characteristic(uuid string) (device.Characteristic, error) {
	for path, ifaces := range s.objects {
		props, ok := ifaces[gattCharIface]
		if !ok || pathProp(props, "Service") != s.path {
			continue
		}
		if device.EqualUUID(stringProp(props, "UUID"), uuid) {
			return &Characteristic{link: s.link, path: path, uuid: device.NormalizeUUID(uuid)}, nil
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{s.uuid, uuid}}
}

// Characteristic is a GATT characteristic object.
type Characteristic struct {
	link *Link
	path dbus.ObjectPath
	uuid string
}

func (c *Characteristic) UUID() string {
	return c.uuid
}

// Subscribe routes Value changes to handler and calls StartNotify. BlueZ replies to StartNotify
// once the peripheral acknowledged the descriptor write.
func (c *Characteristic) Subscribe(handler device.NotificationHandler) error {
	r := c.link.radio
	registered := r.router.register(c.path, gattCharIface, c.link.seq, func(changed map[string]dbus.Variant) {
		if v, ok := changed["Value"]; ok {
			if data, ok := v.Value().([]byte); ok {
				handler(data)
			}
		}
	})
	if !registered {
		return &device.ConnectionError{State: device.NotConnected, Msg: "link superseded by a newer connection"}
	}

	if err := r.bus.Call(context.Background(), c.path, gattCharIface+".StartNotify").Err; err != nil {
		r.router.unregister(c.path, gattCharIface, c.link.seq)
		r.logger.WithFields(logrus.Fields{
			"char_uuid": c.uuid,
			"error":     err,
		}).Error("StartNotify failed")
		return normalize(err)
	}
	c.link.trackNotify(c.path)
	return nil
}
