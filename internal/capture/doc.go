// Package capture produces raw video frames for the recorder.
//
// A Source yields one Frame per Read at the device's native pace. FFmpegSource
// reads a V4L2 camera through an ffmpeg subprocess emitting rawvideo on stdout;
// SyntheticSource generates a test pattern and is used by `lifesaver run
// --synthetic` and by tests.
package capture
