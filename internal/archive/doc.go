// Package archive keeps a compact long-term copy of each event.
//
// The archive copy is an AV1 transcode produced in-process by drapto, written
// to <archive dir>/<session id>/ together with a copy of the location log.
// Transcodes run one at a time; failures never affect the original event.
package archive
