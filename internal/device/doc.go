// Package device defines the radio collaborators the stylus link is built on.
//
// The package holds only abstractions and the shared error taxonomy:
//   - Radio: adapter power, per-peripheral connection state, GATT dialing, profile cleanup
//   - Link, Service, Characteristic: a live GATT connection and notification subscription
//   - NotFoundError / ConnectionError for protocol-structure and connection failures
//
// Concrete backends live in the bluez (D-Bus) and go-ble (raw HCI) sub-packages.
package device
