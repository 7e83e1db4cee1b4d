package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
[bus]
interface = "vcan0"
baud_rate = 500000

[general]
speed_factor = 2.5

[[node]]
node_id = 1
eds_file = "axis1.eds"

[[node]]
node_id = 2
eds_file = "axis2.eds"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "vcan0", cfg.Bus.Interface)
	assert.Equal(t, 500000, cfg.Bus.BaudRate)
	assert.Equal(t, 2.5, cfg.General.SpeedFactor)
	require.Len(t, cfg.Node, 2)
	assert.Equal(t, uint8(1), cfg.Node[0].NodeID)
	assert.Equal(t, "axis2.eds", cfg.Node[1].EDSFile)
}

func TestLoadDefaultsSpeedFactorToOne(t *testing.T) {
	path := writeConfig(t, `
[bus]
interface = "vcan0"

[[node]]
node_id = 1
eds_file = "axis.eds"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1.0, cfg.General.SpeedFactor)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestLoadMissingBusInterfaceFails(t *testing.T) {
	path := writeConfig(t, `
[[node]]
node_id = 1
eds_file = "axis.eds"
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "bus.interface")
}

func TestLoadNoNodesFails(t *testing.T) {
	path := writeConfig(t, `
[bus]
interface = "vcan0"
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "at least one")
}

func TestLoadNodeIDOutOfRangeFails(t *testing.T) {
	path := writeConfig(t, `
[bus]
interface = "vcan0"

[[node]]
node_id = 128
eds_file = "axis.eds"
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "out of range")
}

func TestLoadNodeMissingEDSFileFails(t *testing.T) {
	path := writeConfig(t, `
[bus]
interface = "vcan0"

[[node]]
node_id = 1
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "eds_file")
}

func TestLoadNegativeSpeedFactorFails(t *testing.T) {
	path := writeConfig(t, `
[bus]
interface = "vcan0"

[general]
speed_factor = -1

[[node]]
node_id = 1
eds_file = "axis.eds"
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "speed_factor")
}
