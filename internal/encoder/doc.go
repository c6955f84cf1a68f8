// Package encoder streams raw frames into an ffmpeg subprocess that writes one
// compressed video file.
//
// A Session is opened per event. Push writes frames to ffmpeg's stdin in call
// order and blocks when the pipe is full; frames are never dropped. Close
// finishes the encode and publishes the file atomically: ffmpeg writes to a
// hidden temporary name that is renamed into place only after a clean exit
// and a non-empty output. Failed or aborted encodes leave the partial file
// behind as "<output>.incomplete" so it is never mistaken for a finished one.
package encoder
