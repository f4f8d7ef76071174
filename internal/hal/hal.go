// Package hal talks to the pen's hardware abstraction: the provisioned BLE
// address and the charging mode that powers the pen's radio.
package hal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// UnprovisionedAddress is reported when no pen address has been written yet.
const UnprovisionedAddress = "00:00:00:00:00:00"

const (
	DefaultAddressPath  = "/efs/spen/blespen_addr"
	DefaultChargingPath = "/sys/class/sec/sec_epen/epen_ble_charging_mode"
)

// chargingState is the value the charging mode node reports while the pen is powered.
const chargingState = "CHARGE"

// Capability is the remote hardware abstraction the link supervisor depends on.
// Every error it returns is a *RemoteError.
type Capability interface {
	Address() (string, error)
	IsCharging() (bool, error)
	SetCharging(on bool) error
}

// RemoteError reports that the hardware abstraction could not be reached or refused a request.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("hal %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemoteError reports whether err came from the hardware abstraction.
func IsRemoteError(err error) bool {
	var rerr *RemoteError
	return errors.As(err, &rerr)
}

// Sysfs reads and writes the vendor sysfs nodes directly.
// Reads fall back to the vendor defaults when a node is missing; writes fail with a RemoteError.
type Sysfs struct {
	AddressPath  string
	ChargingPath string
	logger       *logrus.Logger
}

// NewSysfs returns a Sysfs capability. Empty paths select the vendor defaults.
func NewSysfs(addressPath, chargingPath string, logger *logrus.Logger) *Sysfs {
	if addressPath == "" {
		addressPath = DefaultAddressPath
	}
	if chargingPath == "" {
		chargingPath = DefaultChargingPath
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Sysfs{
		AddressPath:  addressPath,
		ChargingPath: chargingPath,
		logger:       logger,
	}
}

// Address returns the provisioned pen address. A missing node reads as unprovisioned.
func (s *Sysfs) Address() (string, error) {
	return s.readToken("read address", s.AddressPath, UnprovisionedAddress)
}

// IsCharging reports whether the pen's radio is powered. A missing node reads as not charging.
func (s *Sysfs) IsCharging() (bool, error) {
	token, err := s.readToken("read charging mode", s.ChargingPath, "NG")
	if err != nil {
		return false, err
	}
	return token == chargingState, nil
}

func (s *Sysfs) SetCharging(on bool) error {
	value := "0\n"
	if on {
		value = "1\n"
	}
	// sysfs nodes must be written in place, never created or truncated by rename.
	f, err := os.OpenFile(s.ChargingPath, os.O_WRONLY, 0)
	if err != nil {
		return &RemoteError{Op: "set charging", Err: err}
	}
	defer f.Close()

	if _, err := f.WriteString(value); err != nil {
		return &RemoteError{Op: "set charging", Err: err}
	}
	s.logger.WithField("charging", on).Debug("Charging mode written")
	return nil
}

// readToken returns the first whitespace separated token of the file, or def when the
// node does not exist or is empty. Any other read failure is a RemoteError.
func (s *Sysfs) readToken(op, path, def string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.WithError(err).WithField("path", path).Debug("HAL node missing, using default")
		return def, nil
	}
	if err != nil {
		return "", &RemoteError{Op: op, Err: err}
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return def, nil
	}
	return fields[0], nil
}
