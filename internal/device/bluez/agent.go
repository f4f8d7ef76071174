package bluez

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"
)

const (
	// AgentPath is where the pairing agent is exported.
	AgentPath dbus.ObjectPath = "/org/penlink/agent"

	// AgentCapability lets BlueZ ask for a yes/no confirmation on numeric comparison.
	AgentCapability = "DisplayYesNo"

	agentDecisionTimeout = 5 * time.Second
)

// PairingConfirmer decides whether a pairing request from address is accepted.
type PairingConfirmer func(ctx context.Context, address string) bool

// Agent is a BlueZ pairing agent that only accepts the configured pen.
// Methods are invoked by godbus on its own goroutine.
type Agent struct {
	confirm PairingConfirmer
	logger  *logrus.Logger
	timeout time.Duration
}

func NewAgent(confirm PairingConfirmer, logger *logrus.Logger) *Agent {
	if logger == nil {
		logger = logrus.New()
	}
	return &Agent{confirm: confirm, logger: logger, timeout: agentDecisionTimeout}
}

// Register exports the agent and makes it the default agent.
func (a *Agent) Register(ctx context.Context, bus Bus) error {
	if err := bus.Export(a, AgentPath, agentIface); err != nil {
		return fmt.Errorf("failed to export BlueZ agent: %w", err)
	}
	if err := bus.Call(ctx, "/org/bluez", agentManager+".RegisterAgent", AgentPath, AgentCapability).Err; err != nil {
		return fmt.Errorf("failed to register BlueZ agent: %w", err)
	}
	if err := bus.Call(ctx, "/org/bluez", agentManager+".RequestDefaultAgent", AgentPath).Err; err != nil {
		return fmt.Errorf("failed to set default BlueZ agent: %w", err)
	}
	a.logger.Debug("BlueZ agent registered")
	return nil
}

// Unregister removes the agent from BlueZ.
func (a *Agent) Unregister(ctx context.Context, bus Bus) error {
	return bus.Call(ctx, "/org/bluez", agentManager+".UnregisterAgent", AgentPath).Err
}

func (a *Agent) decide(method string, dev dbus.ObjectPath) *dbus.Error {
	address := AddressFromPath(dev)
	log := a.logger.WithFields(logrus.Fields{
		"request": method,
		"address": address,
	})
	if address == "" || a.confirm == nil {
		log.Warn("Pairing request rejected")
		return rejected()
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if !a.confirm(ctx, address) {
		log.Info("Pairing request rejected")
		return rejected()
	}
	log.Debug("Pairing request accepted")
	return nil
}

func rejected() *dbus.Error {
	return dbus.NewError(errRejected, []any{"Rejected"})
}

func (a *Agent) Release() *dbus.Error {
	a.logger.Debug("BlueZ agent released")
	return nil
}

func (a *Agent) RequestPinCode(dbus.ObjectPath) (string, *dbus.Error) {
	return "", rejected()
}

func (a *Agent) DisplayPinCode(dbus.ObjectPath, string) *dbus.Error {
	return nil
}

func (a *Agent) RequestPasskey(dbus.ObjectPath) (uint32, *dbus.Error) {
	return 0, rejected()
}

func (a *Agent) DisplayPasskey(dbus.ObjectPath, uint32, uint16) *dbus.Error {
	return nil
}

func (a *Agent) RequestConfirmation(dev dbus.ObjectPath, _ uint32) *dbus.Error {
	return a.decide("confirmation", dev)
}

func (a *Agent) RequestAuthorization(dev dbus.ObjectPath) *dbus.Error {
	return a.decide("authorization", dev)
}

func (a *Agent) AuthorizeService(dev dbus.ObjectPath, _ string) *dbus.Error {
	return a.decide("service", dev)
}

func (a *Agent) Cancel() *dbus.Error {
	a.logger.Debug("Pairing request cancelled")
	return nil
}
