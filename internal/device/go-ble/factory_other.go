//go:build !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/penlink/internal/device"
)

func newHCIDevice(int) (ble.Device, error) {
	return nil, fmt.Errorf("hci backend on %s: %w", runtime.GOOS, device.ErrUnsupported)
}
