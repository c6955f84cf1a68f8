// Package journal keeps a SQLite record of every recording session.
//
// The recorder reports each status change and the handoff pipeline reports
// upload outcomes; the CLI reads the journal for `lifesaver events`. Rows left
// open by a crash are closed as interrupted the next time the recorder starts.
package journal
