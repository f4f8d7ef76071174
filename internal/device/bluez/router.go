package bluez

import (
	"context"
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/groutine"
)

// propertyHandler receives the changed properties of one interface on one object.
type propertyHandler func(changed map[string]dbus.Variant)

// route is a handler together with the link sequence number that installed it.
// Owner 0 is the radio itself.
type route struct {
	owner   uint64
	handler propertyHandler
}

// signalRouter fans PropertiesChanged signals out to handlers keyed by object path and interface.
// Each route belongs to one owner; an older owner can neither replace nor remove a newer one.
type signalRouter struct {
	mu       sync.Mutex // serializes writers; dispatch reads lock-free
	handlers *hashmap.Map[string, route]
	signals  chan *dbus.Signal
	logger   *logrus.Logger
}

func newSignalRouter(logger *logrus.Logger) *signalRouter {
	return &signalRouter{
		handlers: hashmap.New[string, route](),
		signals:  make(chan *dbus.Signal, 64),
		logger:   logger,
	}
}

func routeKey(path dbus.ObjectPath, iface string) string {
	return string(path) + "|" + iface
}

// register installs h for owner. It reports false, leaving the route untouched, when a newer
// owner already holds it.
func (r *signalRouter) register(path dbus.ObjectPath, iface string, owner uint64, h propertyHandler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := routeKey(path, iface)
	if cur, ok := r.handlers.Get(key); ok && cur.owner > owner {
		return false
	}
	r.handlers.Set(key, route{owner: owner, handler: h})
	return true
}

// unregister removes the route if owner still holds it and reports whether it did.
func (r *signalRouter) unregister(path dbus.ObjectPath, iface string, owner uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := routeKey(path, iface)
	cur, ok := r.handlers.Get(key)
	if !ok || cur.owner != owner {
		return false
	}
	r.handlers.Del(key)
	return true
}

// start subscribes to BlueZ property changes and dispatches them until ctx is done.
func (r *signalRouter) start(ctx context.Context, bus Bus) error {
	rule := fmt.Sprintf("type='signal',sender='%s',interface='%s',member='PropertiesChanged',path_namespace='/org/bluez'",
		busName, propsIface)
	if err := bus.AddMatch(rule); err != nil {
		return fmt.Errorf("failed to add signal match: %w", err)
	}
	bus.Signal(r.signals)

	groutine.GoSafe(ctx, "bluez-signals", r.logger, func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-r.signals:
				if !ok {
					return
				}
				r.dispatch(sig)
			}
		}
	}, nil)
	return nil
}

func (r *signalRouter) dispatch(sig *dbus.Signal) {
	if sig == nil || sig.Name != propsChanged || len(sig.Body) < 2 {
		return
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}
	if rt, ok := r.handlers.Get(routeKey(sig.Path, iface)); ok {
		rt.handler(changed)
	}
}
