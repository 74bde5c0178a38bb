package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Sample renders a fully populated YAML configuration with default values,
// suitable as a starting point for a config file.
func Sample() ([]byte, error) {
	cfg := Default()

	// Rendered through a plain map so the emitted keys match the
	// mapstructure names viper reads back.
	doc := map[string]any{
		"server": map[string]any{
			"address":      cfg.Server.Address,
			"export":       cfg.Server.Export,
			"call_timeout": cfg.Server.CallTimeout.String(),
		},
		"flush": map[string]any{
			"threads":      cfg.Flush.Threads,
			"file_timeout": cfg.Flush.FileTimeout.String(),
			"sync":         cfg.Flush.Sync,
			"async_depth":  cfg.Flush.AsyncDepth,
			"recheck":      cfg.Flush.Recheck.String(),
			"descriptor":   cfg.Flush.Descriptor,
		},
		"logging": map[string]any{
			"level":   cfg.Logging.Level,
			"verbose": cfg.Logging.Verbose,
		},
		"metrics": map[string]any{
			"enabled": cfg.Metrics.Enabled,
			"listen":  cfg.Metrics.Listen,
		},
	}

	return yaml.Marshal(doc)
}

// WriteSample writes the sample configuration to path, creating parent
// directories as needed. It refuses to overwrite an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, err := Sample()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
