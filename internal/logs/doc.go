// Package logs reads the recorder's daily JSON log files for the CLI.
//
// Tail returns the last N entries or everything after an offset, optionally
// waiting for new lines, and can filter entries by session, component or
// minimum level. Latest locates the newest daily file.
package logs
