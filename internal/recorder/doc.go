// Package recorder is the event recorder: it owns the capture loop, the
// look-back buffer, and the per-event sessions.
//
// Every frame read from the source is appended to the ring buffer and the
// trigger is polled once. On a trigger edge with no session active, the
// buffer is snapshotted and a session worker is started. The capture loop
// hands frames to the worker through a bounded queue and never blocks on it:
// the snapshot goes first, then live frames until the post-trigger window
// ends. The worker streams them into an encoder, closes it, and hands the
// finished artifact off. Triggers that arrive while a session is active are
// ignored and counted.
//
// A session moves strictly forward through open, draining, recording_live,
// and closed. Failed sessions reach closed with Failed set and are never
// handed off.
package recorder
