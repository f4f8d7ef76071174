//go:build linux

package input

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/gesture"
	"golang.org/x/sys/unix"
)

// DefaultUInputPath is the uinput control node.
const DefaultUInputPath = "/dev/uinput"

// Event types and codes from linux/input-event-codes.h.
const (
	evSyn      = 0x00
	evKey      = 0x01
	synReport  = 0x00
	busVirtual = 0x06
)

// uinput ioctls (linux/uinput.h): _IO('U', 1), _IO('U', 2), _IOW('U', 100, int), _IOW('U', 101, int).
const (
	uiDevCreate  uint = 0x5501
	uiDevDestroy uint = 0x5502
	uiSetEvBit   uint = 0x40045564
	uiSetKeyBit  uint = 0x40045565
)

const (
	maxNameSize = 80
	absCnt      = 64
)

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// userDev is struct uinput_user_dev, written once before UI_DEV_CREATE.
type userDev struct {
	Name       [maxNameSize]byte
	ID         inputID
	EffectsMax uint32
	Absmax     [absCnt]int32
	Absmin     [absCnt]int32
	Absfuzz    [absCnt]int32
	Absflat    [absCnt]int32
}

// inputEvent is struct input_event.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// UInput is a virtual keyboard backed by /dev/uinput.
type UInput struct {
	mu     sync.Mutex
	f      *os.File
	name   string
	logger *logrus.Logger
}

// OpenUInput creates a virtual keyboard able to emit the given keys.
func OpenUInput(path, name string, keys []gesture.KeyCode, logger *logrus.Logger) (*UInput, error) {
	if path == "" {
		path = DefaultUInputPath
	}
	if logger == nil {
		logger = logrus.New()
	}
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	fd := int(f.Fd())

	if err := unix.IoctlSetInt(fd, uiSetEvBit, evKey); err != nil {
		f.Close()
		return nil, fmt.Errorf("UI_SET_EVBIT failed: %w", err)
	}
	for _, k := range keys {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, int(k)); err != nil {
			f.Close()
			return nil, fmt.Errorf("UI_SET_KEYBIT %s failed: %w", k, err)
		}
	}

	dev := userDev{ID: inputID{Bustype: busVirtual, Vendor: 0x04e8, Product: 0x0001, Version: 1}}
	copy(dev.Name[:maxNameSize-1], name)
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, &dev); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to encode device setup: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write device setup: %w", err)
	}
	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("UI_DEV_CREATE failed: %w", err)
	}

	logger.WithFields(logrus.Fields{"path": path, "name": name, "keys": len(keys)}).Info("Virtual keyboard created")
	return &UInput{f: f, name: name, logger: logger}, nil
}

// Inject writes the key transition followed by a sync report.
func (u *UInput) Inject(ev KeyEvent) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.f == nil {
		return errors.New("uinput device closed")
	}

	value := int32(0)
	if ev.Phase == Down {
		value = 1
	}
	tv := unix.NsecToTimeval(ev.EventTime.UnixNano())

	var buf bytes.Buffer
	for _, e := range []inputEvent{
		{Time: tv, Type: evKey, Code: uint16(ev.Code), Value: value},
		{Time: tv, Type: evSyn, Code: synReport},
	} {
		if err := binary.Write(&buf, binary.NativeEndian, &e); err != nil {
			return err
		}
	}
	if _, err := u.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s %s: %w", ev.Code, ev.Phase, err)
	}
	return nil
}

// Close destroys the virtual device.
func (u *UInput) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.f == nil {
		return nil
	}
	err := unix.IoctlSetInt(int(u.f.Fd()), uiDevDestroy, 0)
	if cerr := u.f.Close(); err == nil {
		err = cerr
	}
	u.f = nil
	u.logger.WithField("name", u.name).Debug("Virtual keyboard destroyed")
	return err
}
