package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks the configuration using struct tags plus custom rules
// that cannot be expressed in tags. Call after flags and positional
// arguments have been overlaid on the loaded configuration.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics: listen address required when metrics are enabled")
	}

	desc, err := cfg.Flush.FlushDescriptor()
	if err != nil {
		return err
	}

	// The sentinel offset must stay outside any plausible file size, or a
	// miswired descriptor would silently commit a real byte range.
	if desc.Offset < 1<<60 {
		return fmt.Errorf("flush.descriptor.offset: %#x is inside the plausible file size range", desc.Offset)
	}

	counts := map[string]uint32{
		"sync_count":  desc.SyncCount,
		"async_count": desc.AsyncCount,
		"query_count": desc.QueryCount,
	}
	seen := make(map[uint32]string)
	for name, value := range counts {
		if value == 0 {
			return fmt.Errorf("flush.descriptor.%s: must be non-zero", name)
		}
		if other, dup := seen[value]; dup {
			return fmt.Errorf("flush.descriptor: %s and %s share value %#x", other, name, value)
		}
		seen[value] = name
	}

	if cfg.Flush.Recheck >= cfg.Flush.FileTimeout {
		return fmt.Errorf("flush.recheck (%s) must be shorter than flush.file_timeout (%s)",
			cfg.Flush.Recheck, cfg.Flush.FileTimeout)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
