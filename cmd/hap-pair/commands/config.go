package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/backkem/hap/pkg/crypto/srp"
	"github.com/pion/logging"
	"gopkg.in/yaml.v3"
)

// Config is the hap-pair configuration file.
type Config struct {
	// DeviceID pins the controller identifier. When empty the identifier
	// stored in Store is used, or a new one is created.
	DeviceID string `yaml:"device_id"`

	// Store is the path of the pairing store.
	Store string `yaml:"store"`

	// Timeout bounds each request/response exchange.
	Timeout time.Duration `yaml:"timeout"`

	// LogLevel is one of disabled, error, warn, info, debug, trace.
	LogLevel string `yaml:"log_level"`

	// SRPGroup is the pair-setup group size, 3072 or 2048.
	SRPGroup int `yaml:"srp_group"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	store := "hap-pairings.yaml"
	if dir, err := os.UserConfigDir(); err == nil {
		store = filepath.Join(dir, "hap", "pairings.yaml")
	}
	return &Config{
		Store:    store,
		Timeout:  30 * time.Second,
		LogLevel: "warn",
		SRPGroup: 3072,
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.Store == "" {
		return errors.New("store is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := c.Group(); err != nil {
		return err
	}
	return nil
}

// Group returns the configured SRP group.
func (c *Config) Group() (*srp.Group, error) {
	switch c.SRPGroup {
	case 0, 3072:
		return srp.Group3072, nil
	case 2048:
		return srp.Group2048, nil
	default:
		return nil, fmt.Errorf("srp_group must be 3072 or 2048, got %d", c.SRPGroup)
	}
}

// LoggerFactory builds a pion logger factory writing to w at the
// configured level.
func (c *Config) LoggerFactory(w io.Writer) (logging.LoggerFactory, error) {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	f := logging.NewDefaultLoggerFactory()
	f.Writer = w
	f.DefaultLogLevel = level
	return f, nil
}

func parseLogLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(s) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "", "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", s)
	}
}
