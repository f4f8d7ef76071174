package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/penlink/internal/device"
	"github.com/srg/penlink/internal/hal"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the daemon looks for its configuration file.
const DefaultPath = "/etc/penlink/config.yaml"

const (
	BackendBlueZ = "bluez"
	BackendHCI   = "hci"
)

// HALConfig locates the vendor capability nodes.
type HALConfig struct {
	AddressPath  string `yaml:"address_path" default:"/efs/spen/blespen_addr"`
	ChargingPath string `yaml:"charging_path" default:"/sys/class/sec/sec_epen/epen_ble_charging_mode"`
}

// InputConfig describes the virtual keyboard key events are injected into.
type InputConfig struct {
	Path string `yaml:"path" default:"/dev/uinput"`
	Name string `yaml:"name" default:"penlink"`
}

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	// Enabled is the user's "pen actions on" preference.
	Enabled bool `yaml:"enabled" default:"false"`
	// Mode is the action mode preference: an index ("0".."2") or a mode name.
	Mode string `yaml:"mode" default:"0"`

	ServiceUUID string `yaml:"service_uuid"`
	Backend     string `yaml:"backend" default:"bluez"`
	Adapter     string `yaml:"adapter" default:"hci0"`

	HAL   HALConfig   `yaml:"hal"`
	Input InputConfig `yaml:"input"`

	// DryRun logs key events instead of injecting them.
	DryRun bool `yaml:"dry_run" default:"false"`

	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"0s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"0s"`
	EventQueue     int           `yaml:"event_queue" default:"64"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields the daemon cannot run without. The mode is not checked here;
// an unknown mode falls back to navigation at use.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServiceUUID) == "" {
		return fmt.Errorf("service_uuid is required")
	}
	if _, err := device.ValidateUUID(c.ServiceUUID); err != nil {
		return fmt.Errorf("service_uuid: %w", err)
	}
	switch c.Backend {
	case BackendBlueZ, BackendHCI:
	default:
		return fmt.Errorf("unknown backend %q (expected %s or %s)", c.Backend, BackendBlueZ, BackendHCI)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.ReconnectDelay < 0 || c.ConnectTimeout < 0 {
		return fmt.Errorf("reconnect_delay and connect_timeout must not be negative")
	}
	if c.EventQueue <= 0 {
		return fmt.Errorf("event_queue must be positive, got %d", c.EventQueue)
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// NewHAL builds the sysfs capability from the configured paths.
func (c *Config) NewHAL(logger *logrus.Logger) *hal.Sysfs {
	return hal.NewSysfs(c.HAL.AddressPath, c.HAL.ChargingPath, logger)
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
