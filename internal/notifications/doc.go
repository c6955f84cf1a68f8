// Package notifications pushes recorder events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never need to check whether notifications are enabled. Each event
// kind can be switched off individually in the [notifications] section.
package notifications
