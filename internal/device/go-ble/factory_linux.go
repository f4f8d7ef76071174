//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
)

func newHCIDevice(id int) (ble.Device, error) {
	return linux.NewDevice(ble.OptDeviceID(id))
}
