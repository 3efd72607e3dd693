// Package config loads the thin CLI adapter's configuration from the
// environment (spec.md §1 Non-goals excludes a configuration subsystem
// from the core; this is the outer-edge config layer the teacher's
// cmd/helm always carries regardless).
package config

import (
	"os"
	"strconv"
)

// Config holds cmd/tenor's environment-driven settings.
type Config struct {
	StoreDriver  string // "memstore" (default), "postgres", or "sqlite"
	StoreDSN     string
	MaxFlowSteps int
	MaxParseErrors int
	OutputFormat string // "json" (default) or "markdown", for commands that support both
}

// Load reads configuration from environment variables, falling back to
// sane local defaults (teacher idiom: pkg/config.Load).
func Load() *Config {
	driver := os.Getenv("TENOR_STORE_DRIVER")
	if driver == "" {
		driver = "memstore"
	}

	maxSteps := 1000
	if v := os.Getenv("TENOR_MAX_FLOW_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxSteps = n
		}
	}

	maxParseErrors := 50
	if v := os.Getenv("TENOR_MAX_PARSE_ERRORS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxParseErrors = n
		}
	}

	format := os.Getenv("TENOR_OUTPUT_FORMAT")
	if format == "" {
		format = "json"
	}

	return &Config{
		StoreDriver:    driver,
		StoreDSN:       os.Getenv("TENOR_STORE_DSN"),
		MaxFlowSteps:   maxSteps,
		MaxParseErrors: maxParseErrors,
		OutputFormat:   format,
	}
}
