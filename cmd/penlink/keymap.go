package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/penlink/internal/gesture"
)

// keymapCmd represents the keymap command
var keymapCmd = &cobra.Command{
	Use:   "keymap",
	Short: "Print the key each pen action produces per mode",
	Args:  cobra.NoArgs,
	RunE:  runKeymap,
}

var keymapMode string

func init() {
	keymapCmd.Flags().StringVar(&keymapMode, "mode", "", "Only print this mode (index or name)")
}

var keymapActions = []struct {
	label  string
	action gesture.Action
}{
	{"click", gesture.Action{Kind: gesture.Click}},
	{"swipe +X", gesture.Action{Kind: gesture.Swipe, Direction: gesture.PositiveX}},
	{"swipe -X", gesture.Action{Kind: gesture.Swipe, Direction: gesture.NegativeX}},
	{"swipe +Y", gesture.Action{Kind: gesture.Swipe, Direction: gesture.PositiveY}},
	{"swipe -Y", gesture.Action{Kind: gesture.Swipe, Direction: gesture.NegativeY}},
}

func runKeymap(cmd *cobra.Command, _ []string) error {
	modes := gesture.Modes()
	if keymapMode != "" {
		m, err := gesture.ParseMode(keymapMode)
		if err != nil {
			return err
		}
		modes = []gesture.Mode{m}
	}
	cmd.SilenceUsage = true

	w := cmd.OutOrStdout()
	header := color.New(color.FgYellow, color.Bold)
	for i, m := range modes {
		if i > 0 {
			fmt.Fprintln(w)
		}
		header.Fprintf(w, "%d %s\n", int(m), m)
		for _, a := range keymapActions {
			code := gesture.KeyFor(m, a.action)
			fmt.Fprintf(w, "  %-10s %-18s %d\n", a.label, code, uint16(code))
		}
	}
	return nil
}
