// Package config loads the process's static configuration: the CAN bus
// interface, an optional cyclic speed factor, and the list of axis
// nodes to emulate.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// ErrConfig is the sentinel wrapping every configuration read, parse,
// or validation failure.
var ErrConfig = errors.New("config: invalid configuration")

// Node describes one emulated axis.
type Node struct {
	NodeID  uint8  `mapstructure:"node_id"`
	EDSFile string `mapstructure:"eds_file"`
}

// Bus describes the shared CAN transport.
type Bus struct {
	Interface string `mapstructure:"interface"`
	BaudRate  int    `mapstructure:"baud_rate"`
}

// General holds process-wide tuning knobs.
type General struct {
	SpeedFactor float64 `mapstructure:"speed_factor"`
}

// Config is the process's static configuration, read once at startup.
type Config struct {
	Bus     Bus    `mapstructure:"bus"`
	General General `mapstructure:"general"`
	Node    []Node `mapstructure:"node"`
}

// Load reads and validates the configuration file at path. Any read,
// parse, or validation error wraps ErrConfig: the caller should treat
// it as a startup failure.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrConfig, path, err)
	}

	cfg := &Config{General: General{SpeedFactor: 1}}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrConfig, path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Bus.Interface == "" {
		return fmt.Errorf("%w: bus.interface is required", ErrConfig)
	}
	if c.General.SpeedFactor <= 0 {
		return fmt.Errorf("%w: general.speed_factor must be > 0", ErrConfig)
	}
	if len(c.Node) == 0 {
		return fmt.Errorf("%w: at least one [[node]] is required", ErrConfig)
	}
	for _, n := range c.Node {
		if n.NodeID == 0 || n.NodeID > 127 {
			return fmt.Errorf("%w: node_id %d out of range 1..127", ErrConfig, n.NodeID)
		}
		if n.EDSFile == "" {
			return fmt.Errorf("%w: node %d missing eds_file", ErrConfig, n.NodeID)
		}
	}
	return nil
}
