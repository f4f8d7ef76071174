package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/penlink/internal/actions"
	"github.com/srg/penlink/internal/gesture"
	"github.com/srg/penlink/internal/input"
	"github.com/srg/penlink/internal/stylus"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode <characteristic> <hex-payload>...",
	Short: "Decode pen notification payloads offline",
	Long: `Decodes a sequence of notification payloads as if the pen had sent them, and
shows the decoded events and the key events the gesture classifier produces.

The characteristic is a name (battery, button, ...) or a UUID. Payloads are hex,
optionally separated by spaces or colons, and are spaced --interval apart.

Example:
  penlink decode button 00 0f0004_0000 01
  penlink decode button 00 "0f 00 fc 00 00" 01 --mode media --json`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDecode,
}

const defaultDecodeInterval = 50 * time.Millisecond

var (
	decodeMode     string
	decodeInterval time.Duration
	decodeJSON     bool
)

func init() {
	decodeCmd.Flags().StringVar(&decodeMode, "mode", "0", "Action mode (0/navigation, 1/camera, 2/media)")
	decodeCmd.Flags().DurationVar(&decodeInterval, "interval", defaultDecodeInterval, "Time between consecutive payloads")
	decodeCmd.Flags().BoolVar(&decodeJSON, "json", false, "Output as JSON")
}

type staticMode string

func (m staticMode) Mode() string { return string(m) }

type decodedKey struct {
	Key   string `json:"key"`
	Code  uint16 `json:"code"`
	Phase string `json:"phase"`
}

type decodedStep struct {
	Index    int          `json:"index"`
	OffsetMS int64        `json:"offset_ms"`
	Payload  string       `json:"payload"`
	Event    string       `json:"event,omitempty"`
	Keys     []decodedKey `json:"keys,omitempty"`
}

func runDecode(cmd *cobra.Command, args []string) error {
	id, err := stylus.ParseCharacteristic(args[0])
	if err != nil {
		return err
	}
	if _, err := gesture.ParseMode(decodeMode); err != nil {
		return err
	}
	payloads := make([][]byte, 0, len(args)-1)
	for _, arg := range args[1:] {
		p, err := parseHex(arg)
		if err != nil {
			return err
		}
		payloads = append(payloads, p)
	}

	logger, err := configureLogger(cmd, "")
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	steps := decodeSequence(actions.New(staticMode(decodeMode), input.NewLogSink(logger), 0, logger), id, payloads, decodeInterval)

	out := cmd.OutOrStdout()
	if decodeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(steps)
	}
	printSteps(out, steps)
	return nil
}

func decodeSequence(p *actions.Pipeline, id stylus.CharacteristicID, payloads [][]byte, interval time.Duration) []decodedStep {
	start := time.Unix(0, 0)
	steps := make([]decodedStep, 0, len(payloads))
	for i, payload := range payloads {
		offset := time.Duration(i) * interval
		step := decodedStep{
			Index:    i + 1,
			OffsetMS: offset.Milliseconds(),
			Payload:  hex.EncodeToString(payload),
		}
		if ev, ok := stylus.Decode(id, payload); ok {
			step.Event = ev.String()
		}
		events := p.Process(stylus.RawNotification{Characteristic: id, Payload: payload, ReceivedAt: start.Add(offset)})
		for _, ev := range events {
			step.Keys = append(step.Keys, decodedKey{Key: ev.Code.String(), Code: uint16(ev.Code), Phase: ev.Phase.String()})
		}
		steps = append(steps, step)
	}
	return steps
}

func printSteps(w io.Writer, steps []decodedStep) {
	dim := color.New(color.Faint)
	event := color.New(color.FgCyan)
	key := color.New(color.FgGreen, color.Bold)
	bad := color.New(color.FgRed)

	for _, s := range steps {
		dim.Fprintf(w, "#%-3d +%-6s ", s.Index, fmt.Sprintf("%dms", s.OffsetMS))
		fmt.Fprintf(w, "%-12s ", s.Payload)
		if s.Event == "" {
			bad.Fprint(w, "undecodable")
		} else {
			event.Fprint(w, s.Event)
		}
		for _, k := range s.Keys {
			fmt.Fprint(w, "  ")
			key.Fprintf(w, "%s %s", k.Key, k.Phase)
		}
		fmt.Fprintln(w)
	}
}

func parseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "", "_", "", "-", "").Replace(strings.TrimPrefix(strings.ToLower(s), "0x"))
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload %q: %w", s, err)
	}
	return b, nil
}
