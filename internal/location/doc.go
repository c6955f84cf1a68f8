// Package location acquires GPS fixes for an event and writes the per-event
// location log.
//
// Acquirer is the boundary the recorder depends on. GPSD speaks the gpsd JSON
// watch protocol over TCP and collects TPV reports carrying a position. Fix
// acquisition is bounded by a per-fix timeout; fixes gathered before a timeout
// are returned together with an ErrLocation-tagged error so callers can keep
// partial results.
package location
