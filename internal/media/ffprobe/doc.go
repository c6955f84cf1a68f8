// Package ffprobe runs ffprobe against a finished event video and exposes the
// handful of properties the recorder checks: the video stream, its geometry,
// frame count, and container duration.
package ffprobe
