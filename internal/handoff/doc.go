// Package handoff ships finished events off the device.
//
// Service.Deliver writes the event's location log next to the video, checks
// that both files are complete, and submits them through a Transport: an
// HTTP multipart upload to the receiver, an S3 PutObject, or nothing at all.
// Transport failures are reported and journaled but never remove the local
// copy.
package handoff
