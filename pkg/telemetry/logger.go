package telemetry

import "log/slog"

// StepLogger returns base (or slog.Default() if base is nil) pre-populated
// with the attributes every step-related log line carries, so callers don't
// repeat them at each call site.
func StepLogger(base *slog.Logger, executionID string, step uint64) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With("execution_id", executionID, "step", step)
}
