// Package config provides the environment-variable-driven configuration
// loader used by cmd/stepguard-demo. The library packages themselves take
// no implicit configuration — every collaborator is constructor-injected —
// so this package exists only for the example host binary.
package config

import "os"

// Config holds the settings the demo host reads at startup.
type Config struct {
	// LogLevel is one of "DEBUG", "INFO", "WARN", "ERROR".
	LogLevel string

	// PolicyFile, if set, is a path to a YAML policy document loaded via
	// policy.LoadFile. When empty the demo host falls back to a small
	// built-in policy document.
	PolicyFile string
}

// Load reads configuration from environment variables, falling back to
// safe defaults when unset.
func Load() *Config {
	logLevel := os.Getenv("STEPGUARD_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	return &Config{
		LogLevel:   logLevel,
		PolicyFile: os.Getenv("STEPGUARD_POLICY_FILE"),
	}
}
