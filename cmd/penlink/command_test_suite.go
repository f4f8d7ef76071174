//go:build test

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/penlink/internal/devicefactory"
	"github.com/srg/penlink/internal/testutils"
	"github.com/srg/penlink/pkg/config"
	"github.com/stretchr/testify/suite"
)

const (
	testPenAddress  = "AA:BB:CC:DD:EE:FF"
	testServiceUUID = "39b6e8dc-4a3f-4ce4-a2d3-4c0a8e0e3c5a"
)

// CommandTestSuite provides command execution helpers and a mocked radio backend.
// All cmd/penlink test suites should embed it.
type CommandTestSuite struct {
	suite.Suite

	Logger *logrus.Logger
	Hook   *test.Hook
	Radio  *testutils.MockRadio
	Dir    string

	origFactory func(context.Context, devicefactory.Options, *logrus.Logger) (*devicefactory.Backend, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.Logger, s.Hook = testutils.NewTestLogger()
	s.Radio = &testutils.MockRadio{}
	s.Dir = s.T().TempDir()

	s.origFactory = devicefactory.DeviceFactory
	devicefactory.DeviceFactory = func(context.Context, devicefactory.Options, *logrus.Logger) (*devicefactory.Backend, error) {
		return devicefactory.NewBackend(s.Radio), nil
	}
	s.resetFlags()
}

func (s *CommandTestSuite) TearDownTest() {
	devicefactory.DeviceFactory = s.origFactory
	s.resetFlags()
}

// resetFlags restores flag values, which cobra keeps between executions.
func (s *CommandTestSuite) resetFlags() {
	decodeMode = "0"
	decodeInterval = defaultDecodeInterval
	decodeJSON = false
	keymapMode = ""
	runDryRun = false
	runWatchInterval = config.DefaultWatchInterval
	s.Require().NoError(rootCmd.PersistentFlags().Set("log-level", ""))
	s.Require().NoError(rootCmd.PersistentFlags().Set("config", config.DefaultPath))
}

// WriteConfig writes a configuration whose HAL nodes live in the test directory.
// The pen address node holds address; extra is appended verbatim.
func (s *CommandTestSuite) WriteConfig(address, charging, extra string) string {
	addrPath := testutils.WriteFile(s.T(), s.Dir, "blespen_addr", address+"\n")
	chargingPath := testutils.WriteFile(s.T(), s.Dir, "charging_mode", charging+"\n")
	return testutils.WriteFile(s.T(), s.Dir, "config.yaml",
		"service_uuid: "+testServiceUUID+"\n"+
			"hal:\n"+
			"  address_path: "+addrPath+"\n"+
			"  charging_path: "+chargingPath+"\n"+
			extra)
}

func (s *CommandTestSuite) ReadFile(name string) string {
	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	s.Require().NoError(err, "reading %s MUST succeed", name)
	return string(data)
}

// CaptureStdout executes fn while capturing stdout, returns captured output.
// Stdout is restored even if fn panics.
func (s *CommandTestSuite) CaptureStdout(fn func()) string {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	s.Require().NoError(err, "pipe creation MUST succeed")
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	fn()

	w.Close()
	out, _ := io.ReadAll(r)
	return string(out)
}

// ExecuteCommand runs the root command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	return s.ExecuteCommandContext(context.Background(), args...)
}

// ExecuteCommandContext runs the root command with args under ctx.
func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()
	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}
