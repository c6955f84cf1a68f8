// Package services holds the error taxonomy and context helpers shared by the
// recorder, encoder, location, and handoff packages.
//
// Failures are tagged with one of the sentinel markers below via Wrap so the
// recorder can decide whether a failure is fatal (device loss) or only affects
// a single session, and so journal entries and notifications can report a
// stable error kind.
package services
