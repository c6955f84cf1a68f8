// Package ipc exposes the running recorder over JSON-RPC on a Unix socket and
// ships the matching client used by the CLI.
//
// The server answers status, manual trigger, recent events, log tail and
// notification test calls. The client decorates calls with a dial timeout so
// CLI commands fail fast when the recorder is not running.
package ipc
