// Package config loads and validates the tool configuration from file,
// environment, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures every configurable aspect of a flush run.
//
// Configuration sources (in order of precedence):
//  1. CLI flags and positional arguments (highest priority)
//  2. Environment variables (HPCFLUSH_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Server selects the cache address and export.
	Server ServerConfig `mapstructure:"server"`

	// Flush tunes the write-back workflow.
	Flush FlushConfig `mapstructure:"flush"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`

	// Metrics controls the optional Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig selects the cache endpoint.
type ServerConfig struct {
	// Address is the cache mount address (hostname or IP).
	Address string `mapstructure:"address" validate:"required"`

	// Export is the exported path to mount (e.g. "/1_1_1_0").
	Export string `mapstructure:"export" validate:"required,startswith=/"`

	// CallTimeout bounds each RPC round trip.
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"required,gt=0"`
}

// FlushConfig tunes the flush workflow.
type FlushConfig struct {
	// Threads is the worker count.
	Threads int `mapstructure:"threads" validate:"required,gte=1,lte=128"`

	// FileTimeout is the per-file deadline.
	FileTimeout time.Duration `mapstructure:"file_timeout" validate:"required,gt=0"`

	// Sync selects blocking flush calls instead of trigger-and-poll.
	Sync bool `mapstructure:"sync"`

	// AsyncDepth caps the pending files per worker in async mode.
	AsyncDepth int `mapstructure:"async_depth" validate:"required,gte=1,lte=64"`

	// Recheck is the status poll interval.
	Recheck time.Duration `mapstructure:"recheck" validate:"required,gt=0"`

	// Descriptor overrides the write-back sentinel values of the COMMIT
	// extension, so a firmware revision can be tracked without a rebuild.
	// Missing keys take the firmware defaults; see FlushDescriptor.
	Descriptor map[string]any `mapstructure:"descriptor"`
}

// DescriptorConfig is the decoded form of the descriptor section.
type DescriptorConfig struct {
	Offset     uint64 `mapstructure:"offset"`
	SyncCount  uint32 `mapstructure:"sync_count"`
	AsyncCount uint32 `mapstructure:"async_count"`
	QueryCount uint32 `mapstructure:"query_count"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Verbose forces DEBUG regardless of Level.
	Verbose bool `mapstructure:"verbose"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns metrics collection on.
	Enabled bool `mapstructure:"enabled"`

	// Listen is the address of the /metrics listener (e.g. ":9090").
	// Required when Enabled is true.
	Listen string `mapstructure:"listen" validate:"omitempty,hostname_port"`
}

// Load reads configuration from file and environment and fills defaults.
// Validation is deliberately separate (Validate): the CLI layer overlays
// flags and positional arguments before validating the final result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	return &cfg, nil
}

// setupViper configures environment variables and config file lookup.
func setupViper(v *viper.Viper, configPath string) {
	// Example: HPCFLUSH_SERVER_ADDRESS=cache01
	v.SetEnvPrefix("HPCFLUSH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.AddConfigPath(".")
		v.SetConfigName("hpcflush")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is acceptable; the tool runs on flags and defaults alone.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hpcflush")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "hpcflush")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "hpcflush.yaml")
}
