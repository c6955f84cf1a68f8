// Package devmon watches udev for the capture device disappearing so the
// recorder can stop with a device error instead of waiting for ffmpeg to
// notice a dead pipe.
package devmon
