package goble

import (
	"fmt"
	"strings"

	"github.com/srg/penlink/internal/device"
)

// NormalizeError maps known go-ble error strings to structured ConnectionError types.
// HCI socket failures surface as errno text, so those are mapped here before falling back
// to the shared mapping.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "can't init hci"),
		strings.Contains(msg, "network is down"),
		strings.Contains(msg, "no such device"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	default:
		return device.NormalizeError(err)
	}
}
