package mmdevice

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// HardwareConfig lists the devices the host loads at startup.
//
//	devices:
//	  - label: Shutter
//	    type: AndorAMH
//	    preinit:
//	      Port: /dev/ttyUSB0
//	    properties:
//	      Delay: "20"
//	      Intensity: "80"
type HardwareConfig struct {
	Devices []DeviceConfig `yaml:"devices"`
}

type DeviceConfig struct {
	Label      string            `yaml:"label"`
	Type       string            `yaml:"type"`
	PreInit    map[string]string `yaml:"preinit"`
	Properties map[string]string `yaml:"properties"`
}

func LoadHardwareConfig(path string) (*HardwareConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hardware config: %v", err)
	}
	return ParseHardwareConfig(data)
}

func ParseHardwareConfig(data []byte) (*HardwareConfig, error) {
	var cfg HardwareConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse hardware config: %v", err)
	}

	seen := make(map[string]bool)
	for i, dev := range cfg.Devices {
		if dev.Label == "" {
			return nil, fmt.Errorf("device %d: missing label", i)
		}
		if dev.Type == "" {
			return nil, fmt.Errorf("device %s: missing type", dev.Label)
		}
		if seen[dev.Label] {
			return nil, fmt.Errorf("device %s: duplicate label", dev.Label)
		}
		seen[dev.Label] = true
	}
	return &cfg, nil
}

// sortedKeys gives a stable order to property maps.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
