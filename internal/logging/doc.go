// Package logging assembles the structured slog loggers used by lifesaver.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context helpers that tag log lines with session and correlation IDs. A no-op
// logger is provided for tests and wiring code that runs without output.
package logging
