package config

import (
	"strings"
	"time"

	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/nfs"
	"github.com/microsoft/hpc-cache-nfsv3-client/internal/protocol/rpc"
	"github.com/microsoft/hpc-cache-nfsv3-client/pkg/flusher"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyFlushDefaults(&cfg.Flush)
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyServerDefaults sets endpoint defaults. Address and Export have no
// defaults: the caller must supply them.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = rpc.DefaultCallTimeout
	}
}

// applyFlushDefaults sets workflow defaults, including the firmware's
// write-back sentinel values.
func applyFlushDefaults(cfg *FlushConfig) {
	if cfg.Threads == 0 {
		cfg.Threads = flusher.DefaultThreads
	}
	if cfg.FileTimeout == 0 {
		cfg.FileTimeout = flusher.DefaultFileTimeout
	}
	if cfg.AsyncDepth == 0 {
		cfg.AsyncDepth = flusher.DefaultAsyncDepth
	}
	if cfg.Recheck == 0 {
		cfg.Recheck = flusher.DefaultRecheckInterval
	}

	if cfg.Descriptor == nil {
		cfg.Descriptor = make(map[string]any)
	}
	defaults := nfs.DefaultFlushDescriptor()
	if _, ok := cfg.Descriptor["offset"]; !ok {
		cfg.Descriptor["offset"] = defaults.Offset
	}
	if _, ok := cfg.Descriptor["sync_count"]; !ok {
		cfg.Descriptor["sync_count"] = defaults.SyncCount
	}
	if _, ok := cfg.Descriptor["async_count"]; !ok {
		cfg.Descriptor["async_count"] = defaults.AsyncCount
	}
	if _, ok := cfg.Descriptor["query_count"]; !ok {
		cfg.Descriptor["query_count"] = defaults.QueryCount
	}
}

// applyLoggingDefaults sets logging defaults and normalizes the level.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Verbose {
		cfg.Level = "DEBUG"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Listen == "" {
		cfg.Listen = ":9090"
	}
}

// Default returns a fully defaulted configuration with placeholder endpoint
// values, used for sample config generation.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Address:     "cache.example.com",
			Export:      "/1_1_1_0",
			CallTimeout: 30 * time.Second,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
