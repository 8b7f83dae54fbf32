// Package logging assembles structured slog loggers and formatting helpers used
// across transientbot.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context helpers so a run can tag every line with its run ID and
// the transient currently being processed. The package also provides a no-op
// logger for tests and wiring code that cannot fail, plus retention pruning
// for log files and rendered thumbnails.
package logging
