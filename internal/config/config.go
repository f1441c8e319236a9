// Package config loads the operator-facing service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Config is the YAML-backed service configuration.
type Config struct {
	// ListenAddr is the operator API bind address.
	ListenAddr string `yaml:"listen_addr"`
	// APIBase is the processing backend root, e.g. "https://host/api".
	APIBase string `yaml:"api_base"`
	// SessionDBPath holds the durable session snapshot store. Empty keeps
	// snapshots in memory only.
	SessionDBPath string `yaml:"session_db_path"`
	// PolicyRulesPath optionally overrides the builtin enforcement tables.
	PolicyRulesPath string `yaml:"policy_rules_path"`

	Readiness RetryConfig `yaml:"readiness"`
	Analysis  RetryConfig `yaml:"analysis"`
}

// RetryConfig bounds one polling or retry loop.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

// Defaults returns the configuration used when no file is supplied.
func Defaults() Config {
	return Config{
		ListenAddr: ":8657",
		Readiness:  RetryConfig{MaxAttempts: 60, Interval: 2 * time.Second},
		Analysis:   RetryConfig{MaxAttempts: 5, Interval: 2 * time.Second},
	}
}

// Load reads the configuration file, filling unset fields from Defaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg := Defaults()
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := cfg.Verify(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Verify rejects configurations that cannot run.
func (c Config) Verify() error {
	if c.APIBase == "" {
		return fmt.Errorf("api_base is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.Readiness.MaxAttempts < 1 || c.Readiness.Interval <= 0 {
		return fmt.Errorf("readiness retry policy must have positive attempts and interval")
	}
	if c.Analysis.MaxAttempts < 1 || c.Analysis.Interval <= 0 {
		return fmt.Errorf("analysis retry policy must have positive attempts and interval")
	}
	return nil
}
