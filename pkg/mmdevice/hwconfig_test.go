package mmdevice

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
devices:
  - label: Shutter
    type: AndorAMH
    preinit:
      Port: /dev/ttyUSB0
    properties:
      Intensity: "80"
      Delay: "20"
  - label: Spare
    type: AndorAMH
`

func TestParseHardwareConfig(t *testing.T) {
	cfg, err := ParseHardwareConfig([]byte(sampleConfig))
	require.NoError(t, err)
	require.Len(t, cfg.Devices, 2)

	dev := cfg.Devices[0]
	assert.Equal(t, "Shutter", dev.Label)
	assert.Equal(t, "AndorAMH", dev.Type)
	assert.Equal(t, map[string]string{"Port": "/dev/ttyUSB0"}, dev.PreInit)
	assert.Equal(t, []string{"Delay", "Intensity"}, sortedKeys(dev.Properties))
	assert.Empty(t, cfg.Devices[1].Properties)
}

func TestParseHardwareConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "devices: ["},
		{"missing label", "devices:\n  - type: AndorAMH\n"},
		{"missing type", "devices:\n  - label: A\n"},
		{"duplicate label", "devices:\n  - {label: A, type: X}\n  - {label: A, type: Y}\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseHardwareConfig([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadHardwareConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hardware.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0600))

	cfg, err := LoadHardwareConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Devices, 2)

	_, err = LoadHardwareConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
