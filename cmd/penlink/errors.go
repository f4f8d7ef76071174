package main

import (
	"errors"
	"fmt"

	"github.com/srg/penlink/internal/device"
	"github.com/srg/penlink/internal/hal"
)

// FormatUserError renders err for the terminal. Known failure kinds get a plain explanation;
// everything else is printed as is.
func FormatUserError(err error) string {
	var remote *hal.RemoteError
	var notFound *device.NotFoundError
	switch {
	case errors.As(err, &remote):
		return fmt.Sprintf("pen hardware capability unavailable (%s): %v", remote.Op, remote.Err)
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off or the adapter is not available"
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("operation not supported by this backend: %v", err)
	case errors.As(err, &notFound):
		return fmt.Sprintf("pen does not expose the expected GATT layout: %v", notFound)
	default:
		return err.Error()
	}
}
