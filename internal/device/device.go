package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a GATT resource is not found on the peripheral
type NotFoundError struct {
	Resource string   // "service", "characteristic", "descriptor"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	// For GATT hierarchy: characteristic is in service, descriptor is in characteristic
	parentResource := "service"
	if e.Resource == "descriptor" {
		parentResource = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parentResource, e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

// ErrUnsupported is returned by backends for operations they cannot perform.
var ErrUnsupported = errors.New("unsupported")

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// NormalizeError maps well-known backend error strings to structured ConnectionError types.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return err
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "org.bluez.Error.NotReady"),
		containsIgnoreCase(msg, "resource not ready"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "org.bluez.Error.NotConnected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"),
		containsIgnoreCase(msg, "org.bluez.Error.AlreadyConnected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// NotificationHandler receives raw characteristic values pushed by the peripheral.
// The slice is only valid for the duration of the call.
type NotificationHandler func(data []byte)

// Radio controls the local Bluetooth adapter and opens GATT links to peripherals.
type Radio interface {
	AdapterPowered() (bool, error)
	SetAdapterPowered(on bool) error

	// IsConnected reports the per-peripheral connection state as seen by the adapter.
	IsConnected(address string) (bool, error)

	// Dial opens a GATT link. It blocks until the link is up or ctx is done.
	Dial(ctx context.Context, address string) (Link, error)

	// DisconnectProfiles drops every profile association the host holds for the peripheral.
	DisconnectProfiles(address string) error
}

// Link is a live GATT connection to one peripheral.
type Link interface {
	Address() string

	// DiscoverService resolves the service and its characteristics.
	// Returns a *NotFoundError if the peripheral does not expose it.
	DiscoverService(ctx context.Context, uuid string) (Service, error)

	// Disconnected is closed when the peripheral layer reports the link as gone.
	Disconnected() <-chan struct{}

	// Close tears down the link and releases its resources. Safe to call more than once.
	Close() error
}

// Service represents a discovered GATT service
type Service interface {
	UUID() string
	Characteristic(uuid string) (Characteristic, error)
}

// Characteristic represents a discovered GATT characteristic
type Characteristic interface {
	UUID() string

	// Subscribe enables notifications and writes the client characteristic configuration
	// descriptor. A nil return confirms the descriptor write completed.
	Subscribe(handler NotificationHandler) error
}

// NormalizeAddress returns the address in upper-case colon form ("AA:BB:CC:DD:EE:FF").
// Dashes and underscores are accepted as separators.
func NormalizeAddress(address string) string {
	r := strings.NewReplacer("-", ":", "_", ":")
	return strings.ToUpper(r.Replace(strings.TrimSpace(address)))
}
