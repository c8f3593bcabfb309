// Package config holds ambient process configuration for hosts embedding
// the core: log level, history ring capacity, and OTLP export target. It
// is distinct from the document-level Configuration that state.State
// carries (schema, plugins, top node type) — that one is constructed by
// the caller in code, not loaded from the environment.
package config

import (
	"os"
	"strconv"
)

// Config holds process-level configuration for a moduforge host.
type Config struct {
	LogLevel        string
	OTLPEndpoint    string
	OTLPEnabled     bool
	HistoryCapacity int
}

// Load loads configuration from environment variables, falling back to
// safe defaults when unset.
func Load() *Config {
	logLevel := os.Getenv("MODUFORGE_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	otlpEndpoint := os.Getenv("MODUFORGE_OTLP_ENDPOINT")

	historyCapacity := 100
	if raw := os.Getenv("MODUFORGE_HISTORY_CAPACITY"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			historyCapacity = n
		}
	}

	return &Config{
		LogLevel:        logLevel,
		OTLPEndpoint:    otlpEndpoint,
		OTLPEnabled:     os.Getenv("MODUFORGE_OTLP_ENABLED") == "true",
		HistoryCapacity: historyCapacity,
	}
}
