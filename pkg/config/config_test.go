package config_test

import (
	"testing"

	"github.com/moduforge-go/core/pkg/config"
	"github.com/stretchr/testify/assert"
)

// TestLoad_Defaults verifies that Load() returns sensible defaults when
// no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MODUFORGE_LOG_LEVEL", "")
	t.Setenv("MODUFORGE_OTLP_ENDPOINT", "")
	t.Setenv("MODUFORGE_OTLP_ENABLED", "")
	t.Setenv("MODUFORGE_HISTORY_CAPACITY", "")

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "", cfg.OTLPEndpoint)
	assert.False(t, cfg.OTLPEnabled)
	assert.Equal(t, 100, cfg.HistoryCapacity)
}

// TestLoad_Overrides verifies that environment variables override defaults.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MODUFORGE_LOG_LEVEL", "DEBUG")
	t.Setenv("MODUFORGE_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("MODUFORGE_OTLP_ENABLED", "true")
	t.Setenv("MODUFORGE_HISTORY_CAPACITY", "250")

	cfg := config.Load()

	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.True(t, cfg.OTLPEnabled)
	assert.Equal(t, 250, cfg.HistoryCapacity)
}

// TestLoad_InvalidCapacityFallsBackToDefault ensures a non-numeric or
// non-positive capacity value does not corrupt the default.
func TestLoad_InvalidCapacityFallsBackToDefault(t *testing.T) {
	t.Setenv("MODUFORGE_HISTORY_CAPACITY", "not-a-number")
	cfg := config.Load()
	assert.Equal(t, 100, cfg.HistoryCapacity)

	t.Setenv("MODUFORGE_HISTORY_CAPACITY", "-5")
	cfg = config.Load()
	assert.Equal(t, 100, cfg.HistoryCapacity)
}
