package main

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggingCmd(t *testing.T, flag string) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	if flag != "" {
		require.NoError(t, cmd.Flags().Set("log-level", flag))
	}
	buf := new(bytes.Buffer)
	cmd.SetErr(buf)
	return cmd, buf
}

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		fallback string
		want     logrus.Level
	}{
		{"silent by default", "", "", logrus.PanicLevel},
		{"fallback", "", "info", logrus.InfoLevel},
		{"flag wins", "debug", "error", logrus.DebugLevel},
		{"warning alias", "warning", "", logrus.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _ := newLoggingCmd(t, tt.flag)

			logger, err := configureLogger(cmd, tt.fallback)
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())
		})
	}
}

func TestConfigureLogger_WritesToCommandErr(t *testing.T) {
	cmd, buf := newLoggingCmd(t, "info")

	logger, err := configureLogger(cmd, "")
	require.NoError(t, err)
	logger.Info("hello")

	assert.Contains(t, buf.String(), "msg=hello", "log output MUST go to the command's stderr")
}

func TestConfigureLogger_Invalid(t *testing.T) {
	cmd, _ := newLoggingCmd(t, "")

	_, err := configureLogger(cmd, "loud")
	assert.ErrorContains(t, err, "invalid log level: loud")
}
