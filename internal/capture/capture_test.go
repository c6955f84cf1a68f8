package capture_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lifesaver/internal/capture"
	"lifesaver/internal/logging"
	"lifesaver/internal/services"
)

func TestFormatGeometry(t *testing.T) {
	format := capture.Format{Width: 640, Height: 480, PixelFormat: "bgr24", Rate: 20}
	if err := format.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := format.FrameSize(); got != 640*480*3 {
		t.Fatalf("unexpected frame size %d", got)
	}
	if got := format.Interval(); got != 50*time.Millisecond {
		t.Fatalf("unexpected interval %v", got)
	}
	if got := format.FramesFor(10 * time.Second); got != 200 {
		t.Fatalf("expected 200 frames for 10s, got %d", got)
	}
	if got := format.FramesFor(120 * time.Millisecond); got != 3 {
		t.Fatalf("expected round up to 3 frames, got %d", got)
	}
	yuv := capture.Format{Width: 4, Height: 2, PixelFormat: "yuv420p", Rate: 1}
	if got := yuv.FrameSize(); got != 12 {
		t.Fatalf("unexpected yuv420p size %d", got)
	}
}

func TestFormatValidateRejects(t *testing.T) {
	for _, format := range []capture.Format{
		{Width: 0, Height: 480, PixelFormat: "bgr24", Rate: 20},
		{Width: 640, Height: 480, PixelFormat: "bgr24", Rate: 0},
		{Width: 640, Height: 480, PixelFormat: "mjpeg", Rate: 20},
	} {
		if err := format.Validate(); err == nil {
			t.Fatalf("expected %+v to be rejected", format)
		}
	}
}

func TestSyntheticSourceSequence(t *testing.T) {
	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 50 * time.Millisecond)
	}
	format := capture.Format{Width: 4, Height: 2, PixelFormat: "bgr24", Rate: 20}
	src := capture.NewSynthetic(format, capture.WithClock(clock))

	var last capture.Frame
	for i := 0; i < 5; i++ {
		frame, err := src.Read(context.Background())
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if frame.Seq != uint64(i) {
			t.Fatalf("expected seq %d, got %d", i, frame.Seq)
		}
		if len(frame.Data) != format.FrameSize() {
			t.Fatalf("unexpected frame size %d", len(frame.Data))
		}
		if i > 0 && !frame.Timestamp.After(last.Timestamp) {
			t.Fatal("expected increasing timestamps")
		}
		last = frame
	}

	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := src.Read(context.Background()); !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected device error after close, got %v", err)
	}
}

func TestSyntheticSourcePacedHonoursContext(t *testing.T) {
	format := capture.Format{Width: 2, Height: 2, PixelFormat: "gray", Rate: 1}
	src := capture.NewSynthetic(format, capture.WithPacing())
	if _, err := src.Read(context.Background()); err != nil {
		t.Fatalf("first read: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := src.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestFFmpegSourceReadsFramesThenReportsDeviceError(t *testing.T) {
	format := capture.Format{Width: 2, Height: 2, PixelFormat: "bgr24", Rate: 20}
	stub := writeStub(t, "head -c 36 /dev/zero\necho 'device vanished' >&2\nexit 1")

	src, err := capture.OpenFFmpeg(context.Background(), capture.FFmpegOptions{
		Binary: stub,
		Device: "/dev/video9",
		Format: format,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("OpenFFmpeg: %v", err)
	}
	defer src.Close()

	for i := 0; i < 3; i++ {
		frame, err := src.Read(context.Background())
		if err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if frame.Seq != uint64(i) || len(frame.Data) != 12 {
			t.Fatalf("unexpected frame %d: seq=%d len=%d", i, frame.Seq, len(frame.Data))
		}
	}
	_, err = src.Read(context.Background())
	if !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected device error at end of stream, got %v", err)
	}
}

func TestOpenFFmpegMissingBinary(t *testing.T) {
	format := capture.Format{Width: 2, Height: 2, PixelFormat: "bgr24", Rate: 20}
	_, err := capture.OpenFFmpeg(context.Background(), capture.FFmpegOptions{
		Binary: filepath.Join(t.TempDir(), "missing-ffmpeg"),
		Device: "/dev/video0",
		Format: format,
	}, nil)
	if !errors.Is(err, services.ErrDevice) {
		t.Fatalf("expected device error, got %v", err)
	}
}
