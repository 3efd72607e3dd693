package config_test

import (
	"testing"

	"github.com/riverline-labs/tenor/internal/config"
	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults verifies Load returns sensible defaults when no
// environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TENOR_STORE_DRIVER", "")
	t.Setenv("TENOR_STORE_DSN", "")
	t.Setenv("TENOR_MAX_FLOW_STEPS", "")
	t.Setenv("TENOR_MAX_PARSE_ERRORS", "")
	t.Setenv("TENOR_OUTPUT_FORMAT", "")

	cfg := config.Load()

	assert.Equal(t, "memstore", cfg.StoreDriver)
	assert.Equal(t, 1000, cfg.MaxFlowSteps)
	assert.Equal(t, 50, cfg.MaxParseErrors)
	assert.Equal(t, "json", cfg.OutputFormat)
}

// TestLoad_Overrides verifies environment variables override defaults.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TENOR_STORE_DRIVER", "postgres")
	t.Setenv("TENOR_STORE_DSN", "postgres://localhost/tenor")
	t.Setenv("TENOR_MAX_FLOW_STEPS", "250")
	t.Setenv("TENOR_MAX_PARSE_ERRORS", "5")
	t.Setenv("TENOR_OUTPUT_FORMAT", "markdown")

	cfg := config.Load()

	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "postgres://localhost/tenor", cfg.StoreDSN)
	assert.Equal(t, 250, cfg.MaxFlowSteps)
	assert.Equal(t, 5, cfg.MaxParseErrors)
	assert.Equal(t, "markdown", cfg.OutputFormat)
}

// TestLoad_InvalidNumericFallsBackToDefault verifies a malformed numeric
// env var doesn't propagate as zero or crash Load.
func TestLoad_InvalidNumericFallsBackToDefault(t *testing.T) {
	t.Setenv("TENOR_MAX_FLOW_STEPS", "not-a-number")

	cfg := config.Load()

	assert.Equal(t, 1000, cfg.MaxFlowSteps)
}
