package testutils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/mcuadros/go-defaults"
)

// TestingT is the subset of testing.T the output asserter needs.
type TestingT interface {
	Helper()
	Errorf(format string, args ...interface{})
}

// OutputOptions controls how command output is normalized before comparison.
type OutputOptions struct {
	StripANSI          bool `default:"true"`
	TrimTrailingSpaces bool `default:"true"`
	SkipEmptyLines     bool `default:"false"`
	TrimSpace          bool `default:"true"`
	ColorDiff          bool `default:"false"`
}

// OutputOption adjusts OutputOptions.
type OutputOption func(*OutputOptions)

func WithStripANSI(on bool) OutputOption {
	return func(o *OutputOptions) { o.StripANSI = on }
}

func WithTrimTrailingSpaces(on bool) OutputOption {
	return func(o *OutputOptions) { o.TrimTrailingSpaces = on }
}

func WithSkipEmptyLines(on bool) OutputOption {
	return func(o *OutputOptions) { o.SkipEmptyLines = on }
}

func WithTrimSpace(on bool) OutputOption {
	return func(o *OutputOptions) { o.TrimSpace = on }
}

// WithColorDiff colors the unified diff printed on mismatch.
func WithColorDiff(on bool) OutputOption {
	return func(o *OutputOptions) { o.ColorDiff = on }
}

// OutputAsserter compares CLI output against an expected transcript and reports
// mismatches as a unified diff.
type OutputAsserter struct {
	t    TestingT
	opts OutputOptions
}

func NewOutputAsserter(t TestingT, opts ...OutputOption) *OutputAsserter {
	o := OutputOptions{}
	defaults.SetDefaults(&o)
	for _, opt := range opts {
		opt(&o)
	}
	return &OutputAsserter{t: t, opts: o}
}

func (a *OutputAsserter) Options() OutputOptions {
	return a.opts
}

// Equal fails the test when actual and expected differ after normalization.
func (a *OutputAsserter) Equal(actual, expected string) bool {
	a.t.Helper()
	if d := a.Diff(actual, expected); d != "" {
		a.t.Errorf("output mismatch:\n%s", d)
		return false
	}
	return true
}

// Diff returns the unified diff between the normalized texts, or "" when they match.
func (a *OutputAsserter) Diff(actual, expected string) string {
	want := a.Normalize(expected)
	got := a.Normalize(actual)
	if want == got {
		return ""
	}
	edits := myers.ComputeEdits("", want+"\n", got+"\n")
	unified := fmt.Sprint(gotextdiff.ToUnified("expected", "actual", want+"\n", edits))
	if a.opts.ColorDiff {
		return colorize(unified)
	}
	return unified
}

var ansiSequence = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// Normalize applies the configured options to text.
func (a *OutputAsserter) Normalize(text string) string {
	if a.opts.StripANSI {
		text = ansiSequence.ReplaceAllString(text, "")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if a.opts.TrimSpace {
		text = strings.TrimSpace(text)
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if a.opts.TrimTrailingSpaces {
			line = strings.TrimRight(line, " \t")
		}
		if a.opts.SkipEmptyLines && line == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func colorize(diff string) string {
	header := color.New(color.FgYellow)
	hunk := color.New(color.FgCyan)
	removed := color.New(color.FgRed)
	added := color.New(color.FgGreen)
	for _, c := range []*color.Color{header, hunk, removed, added} {
		c.EnableColor()
	}

	lines := strings.Split(diff, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			lines[i] = header.Sprint(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = hunk.Sprint(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removed.Sprint(visibleSpaces(line))
		case strings.HasPrefix(line, "+"):
			lines[i] = added.Sprint(visibleSpaces(line))
		}
	}
	return strings.Join(lines, "\n")
}

func visibleSpaces(line string) string {
	return strings.NewReplacer(" ", "·", "\t", "→").Replace(line)
}
