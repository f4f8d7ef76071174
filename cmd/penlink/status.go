package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/penlink/internal/device"
	"github.com/srg/penlink/internal/devicefactory"
	"github.com/srg/penlink/internal/hal"
	"github.com/srg/penlink/pkg/config"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the provisioned pen and its link state",
	Long: `Reads the provisioned pen address and charging mode through the platform
files and queries the radio backend for adapter power and the pen's connection state.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	w := cmd.OutOrStdout()
	h := cfg.NewHAL(logger)

	address, addrErr := h.Address()
	printField(w, "Pen address", address, addrErr)

	charging, chErr := h.IsCharging()
	printField(w, "Charging mode", onOff(charging), chErr)

	printField(w, "Enabled", onOff(cfg.Enabled), nil)
	printField(w, "Mode", cfg.Mode, nil)
	printField(w, "Service", device.FormatUUID(cfg.ServiceUUID), nil)
	printField(w, "Backend", fmt.Sprintf("%s (%s)", cfg.Backend, cfg.Adapter), nil)

	backend, err := devicefactory.DeviceFactory(cmd.Context(), devicefactory.Options{Backend: cfg.Backend, Adapter: cfg.Adapter}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	powered, err := backend.AdapterPowered()
	printField(w, "Adapter", onOff(powered), err)

	if addrErr != nil || address == "" || address == hal.UnprovisionedAddress {
		printField(w, "Pen link", "not provisioned", nil)
		return nil
	}
	connected, err := backend.IsConnected(address)
	state := "disconnected"
	if connected {
		state = "connected"
	}
	printField(w, "Pen link", state, err)
	return nil
}

func printField(w io.Writer, label, value string, err error) {
	fmt.Fprintf(w, "%-15s ", label+":")
	if err != nil {
		color.New(color.FgRed).Fprintf(w, "error: %s\n", FormatUserError(err))
		return
	}
	if value == "" {
		value = "-"
	}
	fmt.Fprintln(w, value)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
