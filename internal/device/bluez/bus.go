// Package bluez drives the pen through the BlueZ daemon over the system D-Bus.
package bluez

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	busName          = "org.bluez"
	adapterIface     = "org.bluez.Adapter1"
	deviceIface      = "org.bluez.Device1"
	gattServiceIface = "org.bluez.GattService1"
	gattCharIface    = "org.bluez.GattCharacteristic1"
	agentIface       = "org.bluez.Agent1"
	agentManager     = "org.bluez.AgentManager1"
	propsIface       = "org.freedesktop.DBus.Properties"
	objectManager    = "org.freedesktop.DBus.ObjectManager"
	propsChanged     = propsIface + ".PropertiesChanged"

	errUnknownObject    = "org.freedesktop.DBus.Error.UnknownObject"
	errUnknownMethod    = "org.freedesktop.DBus.Error.UnknownMethod"
	errAlreadyConnected = "org.bluez.Error.AlreadyConnected"
	errNotConnected     = "org.bluez.Error.NotConnected"
	errRejected         = "org.bluez.Error.Rejected"
)

// Bus is the subset of a D-Bus connection the backend needs. Calls target the BlueZ service.
type Bus interface {
	Call(ctx context.Context, path dbus.ObjectPath, method string, args ...any) *dbus.Call
	AddMatch(rule string) error
	Signal(ch chan<- *dbus.Signal)
	Export(v any, path dbus.ObjectPath, iface string) error
	Close() error
}

type systemBus struct {
	conn *dbus.Conn
}

// ConnectSystemBus opens a private system bus connection and checks that BlueZ is running.
func ConnectSystemBus() (Bus, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	if !slices.Contains(names, busName) {
		conn.Close()
		return nil, fmt.Errorf("%s not found on system bus, is bluetooth.service running?", busName)
	}
	return &systemBus{conn: conn}, nil
}

func (b *systemBus) Call(ctx context.Context, path dbus.ObjectPath, method string, args ...any) *dbus.Call {
	return b.conn.Object(busName, path).CallWithContext(ctx, method, 0, args...)
}

func (b *systemBus) AddMatch(rule string) error {
	return b.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, rule).Err
}

func (b *systemBus) Signal(ch chan<- *dbus.Signal) {
	b.conn.Signal(ch)
}

func (b *systemBus) Export(v any, path dbus.ObjectPath, iface string) error {
	return b.conn.Export(v, path, iface)
}

func (b *systemBus) Close() error {
	return b.conn.Close()
}

// --- paths ---

// AdapterPath returns the object path of the adapter, e.g. "/org/bluez/hci0".
func AdapterPath(adapter string) dbus.ObjectPath {
	if adapter == "" {
		adapter = "hci0"
	}
	return dbus.ObjectPath("/org/bluez/" + adapter)
}

// DevicePath converts "AA:BB:CC:DD:EE:FF" to "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func DevicePath(adapter, address string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(address)), ":", "_")
	return AdapterPath(adapter) + "/dev_" + dbus.ObjectPath(escaped)
}

// AddressFromPath extracts the MAC address from a device object path or any path below it.
// Returns "" for paths that do not name a device.
func AddressFromPath(path dbus.ObjectPath) string {
	for _, part := range strings.Split(string(path), "/") {
		if rest, ok := strings.CutPrefix(part, "dev_"); ok {
			return strings.ReplaceAll(rest, "_", ":")
		}
	}
	return ""
}

func isUnder(path, parent dbus.ObjectPath) bool {
	return strings.HasPrefix(string(path), string(parent)+"/")
}

// --- property helpers ---

func getProp(ctx context.Context, bus Bus, path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant
	err := bus.Call(ctx, path, propsIface+".Get", iface, prop).Store(&v)
	return v, err
}

func setProp(ctx context.Context, bus Bus, path dbus.ObjectPath, iface, prop string, val any) error {
	return bus.Call(ctx, path, propsIface+".Set", iface, prop, dbus.MakeVariant(val)).Err
}

func getBool(ctx context.Context, bus Bus, path dbus.ObjectPath, iface, prop string) (bool, error) {
	v, err := getProp(ctx, bus, path, iface, prop)
	if err != nil {
		return false, err
	}
	val, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("property %s is not bool", prop)
	}
	return val, nil
}

type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

func getManagedObjects(ctx context.Context, bus Bus) (managedObjects, error) {
	var objects managedObjects
	if err := bus.Call(ctx, "/", objectManager+".GetManagedObjects").Store(&objects); err != nil {
		return nil, fmt.Errorf("GetManagedObjects failed: %w", err)
	}
	return objects, nil
}

func stringProp(props map[string]dbus.Variant, name string) string {
	if v, ok := props[name]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func pathProp(props map[string]dbus.Variant, name string) dbus.ObjectPath {
	if v, ok := props[name]; ok {
		if p, ok := v.Value().(dbus.ObjectPath); ok {
			return p
		}
	}
	return ""
}

// errorName returns the D-Bus error name carried by err, or "".
func errorName(err error) string {
	var derr dbus.Error
	if errors.As(err, &derr) {
		return derr.Name
	}
	var pderr *dbus.Error
	if errors.As(err, &pderr) && pderr != nil {
		return pderr.Name
	}
	return ""
}
