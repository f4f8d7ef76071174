package hal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNode(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSysfs_Address(t *testing.T) {
	dir := t.TempDir()
	path := writeNode(t, dir, "blespen_addr", "AA:BB:CC:DD:EE:FF\n")

	addr, err := NewSysfs(path, "", nil).Address()
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", addr)
}

func TestSysfs_AddressMissingFallsBack(t *testing.T) {
	addr, err := NewSysfs(filepath.Join(t.TempDir(), "absent"), "", nil).Address()
	require.NoError(t, err)
	assert.Equal(t, UnprovisionedAddress, addr, "missing node MUST report the unprovisioned address")
}

func TestSysfs_UnreadableNodeIsRemoteError(t *testing.T) {
	// GOAL: Verify a node that exists but cannot be read is reported, not defaulted
	//
	// TEST SCENARIO: both nodes point at directories -> reads fail -> RemoteError naming the operation

	dir := t.TempDir()
	s := NewSysfs(dir, dir, nil)

	_, err := s.Address()
	var rerr *RemoteError
	require.ErrorAs(t, err, &rerr, "unreadable address node MUST be a RemoteError")
	assert.Equal(t, "read address", rerr.Op)

	charging, err := s.IsCharging()
	require.ErrorAs(t, err, &rerr, "unreadable charging node MUST be a RemoteError")
	assert.Equal(t, "read charging mode", rerr.Op)
	assert.False(t, charging)
}

func TestSysfs_IsCharging(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected bool
	}{
		{name: "charging", content: "CHARGE\n", expected: true},
		{name: "not charging", content: "NG\n", expected: false},
		{name: "empty", content: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeNode(t, t.TempDir(), "charging_mode", tt.content)
			charging, err := NewSysfs("", path, nil).IsCharging()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, charging)
		})
	}
}

func TestSysfs_SetCharging(t *testing.T) {
	path := writeNode(t, t.TempDir(), "charging_mode", "")
	s := NewSysfs("", path, nil)

	require.NoError(t, s.SetCharging(true))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "1\n", string(data))

	require.NoError(t, s.SetCharging(false))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0\n", string(data))
}

func TestSysfs_SetChargingMissingNode(t *testing.T) {
	err := NewSysfs("", filepath.Join(t.TempDir(), "absent"), nil).SetCharging(true)

	require.Error(t, err)
	assert.True(t, IsRemoteError(err), "write failure MUST surface as a RemoteError")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "hal set charging")
}
