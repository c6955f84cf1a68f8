package capture

import (
	"fmt"
	"time"
)

// Frame is one raw image captured from the device. Frames are never mutated
// after creation; consumers may share them freely.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Data      []byte
}

// Format describes the raw frame layout shared by the source and the encoder.
type Format struct {
	Width       int
	Height      int
	PixelFormat string
	Rate        int
}

// bytesPerPixel is expressed in eighths of a byte so planar 4:2:0 formats fit.
var bytesPerPixel = map[string]int{
	"bgr24":   24,
	"rgb24":   24,
	"bgra":    32,
	"rgba":    32,
	"gray":    8,
	"yuyv422": 16,
	"yuv420p": 12,
	"nv12":    12,
}

// Validate reports whether the format can be captured and encoded.
func (f Format) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	if f.Rate <= 0 {
		return fmt.Errorf("invalid frame rate %d", f.Rate)
	}
	if _, ok := bytesPerPixel[f.PixelFormat]; !ok {
		return fmt.Errorf("unsupported pixel format %q", f.PixelFormat)
	}
	return nil
}

// FrameSize returns the byte length of one frame, or 0 for an invalid format.
func (f Format) FrameSize() int {
	bits, ok := bytesPerPixel[f.PixelFormat]
	if !ok || f.Width <= 0 || f.Height <= 0 {
		return 0
	}
	return f.Width * f.Height * bits / 8
}

// Interval returns the nominal time between frames.
func (f Format) Interval() time.Duration {
	if f.Rate <= 0 {
		return 0
	}
	return time.Second / time.Duration(f.Rate)
}

// FramesFor returns the number of frames spanning d at the format's rate,
// rounded up.
func (f Format) FramesFor(d time.Duration) int {
	interval := f.Interval()
	if interval <= 0 || d <= 0 {
		return 0
	}
	return int((d + interval - 1) / interval)
}

// Size renders the dimensions in ffmpeg's WxH form.
func (f Format) Size() string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}
