// Package preflight provides readiness checks for the devices, services and
// directories the recorder depends on.
//
// "lifesaver check" prints every result. The daemon runs the same checks at
// startup and logs failures without refusing to start, since a camera or GPS
// receiver that appears late is picked up on the next restart.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
