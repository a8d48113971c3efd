package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vk7xyz/ax25d/dlsm"
)

// PortConfig describes one physical serial link the node owns: a device
// node (or, for development, a pty path produced by --dev-pty) and the
// baud rate to configure it for.
type PortConfig struct {
	Device string     `yaml:"device"`
	Baud   int        `yaml:"baud"`
	PTT    *PTTConfig `yaml:"ptt,omitempty"`
}

// PTTConfig selects how ax25d keys the transmitter for a port's duration of
// transmission. GPIOChip/GPIOLine key a GPIO output line directly;
// HamlibModel/HamlibDevice key a rig over CAT control instead. Leaving both
// unset means the TNC or radio keys itself (VOX or DCD-derived PTT).
type PTTConfig struct {
	GPIOChip string `yaml:"gpio_chip,omitempty"`
	GPIOLine int    `yaml:"gpio_line,omitempty"`

	HamlibModel  int    `yaml:"hamlib_model,omitempty"`
	HamlibDevice string `yaml:"hamlib_device,omitempty"`
}

// Config is the shape of the YAML file cmd/ax25d loads at startup. Zero
// values mean "use the built-in default" and are filled in by applyDefaults.
type Config struct {
	Callsign string `yaml:"callsign"`

	Ports []PortConfig `yaml:"ports"`

	MaxConnections int `yaml:"max_connections"`
	MaxSockets     int `yaml:"max_sockets"`
	MaxPackets     int `yaml:"max_packets"`
	MaxBuffers     int `yaml:"max_buffers"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// defaultBaud is used for any port entry that doesn't specify one; it
// matches the rate direwolf and most TNCs default their KISS port to.
const defaultBaud = 9600

// loadConfig reads and parses path, or returns an all-defaults Config when
// path is empty (no --config given).
func loadConfig(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	def := dlsm.DefaultConfig()
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.MaxSockets == 0 {
		cfg.MaxSockets = def.MaxSockets
	}
	if cfg.MaxPackets == 0 {
		cfg.MaxPackets = def.MaxPackets
	}
	if cfg.MaxBuffers == 0 {
		cfg.MaxBuffers = def.MaxBuffers
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	for i := range cfg.Ports {
		if cfg.Ports[i].Baud == 0 {
			cfg.Ports[i].Baud = defaultBaud
		}
	}
}

// dlsmConfig projects the pool-sizing fields onto dlsm.Config.
func (cfg Config) dlsmConfig() dlsm.Config {
	return dlsm.Config{
		MaxConnections: cfg.MaxConnections,
		MaxSockets:     cfg.MaxSockets,
		MaxPackets:     cfg.MaxPackets,
		MaxBuffers:     cfg.MaxBuffers,
	}
}
