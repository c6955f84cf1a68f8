// Package trigger turns a sampled binary sensor into debounced trigger edges.
//
// A Sensor reports the raw input level. Monitor polls it once per capture tick
// and reports an edge exactly once per sustained transition into the active
// level; the input must return to inactive before another edge can fire.
package trigger
