// Package logging assembles structured slog loggers and formatting helpers used
// across mediasort.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing (stderr plus a per-run log file), and exposes context-aware helpers
// so pipeline code can tag log lines with the run identifier, the source path,
// and the current stage. Old run logs are pruned by CleanupOldLogs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
