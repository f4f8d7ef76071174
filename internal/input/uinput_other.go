//go:build !linux

package input

import (
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/gesture"
)

const DefaultUInputPath = "/dev/uinput"

// UInput is only available on Linux.
type UInput struct{}

func OpenUInput(path, name string, keys []gesture.KeyCode, logger *logrus.Logger) (*UInput, error) {
	return nil, errors.New("uinput is only supported on linux")
}

func (u *UInput) Inject(ev KeyEvent) error { return errors.New("uinput is only supported on linux") }

func (u *UInput) Close() error { return nil }
