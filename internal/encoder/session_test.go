package encoder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lifesaver/internal/capture"
	"lifesaver/internal/logging"
	"lifesaver/internal/media/ffprobe"
	"lifesaver/internal/services"
)

var testFormat = capture.Format{Width: 2, Height: 2, PixelFormat: "bgr24", Rate: 20}

// copyStub writes stdin to its last argument, standing in for a successful encode.
const copyStub = `for last; do :; done
cat > "$last"`

func writeStub(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func frame(seq uint64) capture.Frame {
	data := make([]byte, testFormat.FrameSize())
	data[0] = byte(seq)
	return capture.Frame{Seq: seq, Timestamp: time.Now(), Data: data}
}

func openSession(t *testing.T, binary string, verify bool) (*Session, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "output_segment.mp4")
	s, err := Open(context.Background(), Options{
		Binary:     binary,
		OutputPath: out,
		Format:     testFormat,
		Preset:     "ultrafast",
		Tune:       "zerolatency",
		Verify:     verify,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, out
}

func TestSessionPublishesFramesInOrder(t *testing.T) {
	s, out := openSession(t, writeStub(t, "ffmpeg", copyStub), false)
	for i := uint64(0); i < 5; i++ {
		if err := s.Push(frame(i)); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	result, err := s.Close(context.Background())
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if result.Path != out || result.Frames != 5 || result.Bytes != 60 {
		t.Fatalf("unexpected result %+v", result)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	for i := 0; i < 5; i++ {
		if data[i*12] != byte(i) {
			t.Fatalf("frame %d out of order in output", i)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(out), ".tmp-output_segment.mp4")); !os.IsNotExist(err) {
		t.Fatal("expected temp file renamed away")
	}
	// Close is idempotent.
	if again, err := s.Close(context.Background()); err != nil || again.Path != out {
		t.Fatalf("second Close returned %+v %v", again, err)
	}
}

func TestOpenReportsStartFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "output_segment.mp4")
	_, err := Open(context.Background(), Options{
		Binary:     filepath.Join(t.TempDir(), "no-such-ffmpeg"),
		OutputPath: out,
		Format:     testFormat,
	}, nil)
	if !errors.Is(err, services.ErrEncoderStart) {
		t.Fatalf("expected ErrEncoderStart, got %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(out))
	if len(entries) != 0 {
		t.Fatalf("expected nothing written, found %d entries", len(entries))
	}
}

func TestOpenRejectsInvalidFormat(t *testing.T) {
	_, err := Open(context.Background(), Options{OutputPath: "x.mp4", Format: capture.Format{}}, nil)
	if !errors.Is(err, services.ErrEncoderStart) {
		t.Fatalf("expected ErrEncoderStart, got %v", err)
	}
}

func TestCloseMarksNonZeroExitIncomplete(t *testing.T) {
	stub := writeStub(t, "ffmpeg", copyStub+"\necho 'Conversion failed!' >&2\nexit 1")
	s, out := openSession(t, stub, false)
	if err := s.Push(frame(0)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	result, err := s.Close(context.Background())
	if !errors.Is(err, services.ErrEncoderFinalize) {
		t.Fatalf("expected ErrEncoderFinalize, got %v", err)
	}
	if !strings.Contains(err.Error(), "Conversion failed!") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
	if result.Path != "" || result.IncompletePath != out+IncompleteSuffix {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatal("failed encode must not publish output")
	}
	if _, err := os.Stat(out + IncompleteSuffix); err != nil {
		t.Fatalf("expected incomplete file: %v", err)
	}
}

func TestCloseRejectsEmptyOutput(t *testing.T) {
	stub := writeStub(t, "ffmpeg", "for last; do :; done\ncat > /dev/null\n: > \"$last\"")
	s, out := openSession(t, stub, false)
	if _, err := s.Close(context.Background()); !errors.Is(err, services.ErrEncoderFinalize) {
		t.Fatalf("expected ErrEncoderFinalize for empty output, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatal("empty output must not be published")
	}
}

func TestPushRejectsWrongFrameSize(t *testing.T) {
	s, _ := openSession(t, writeStub(t, "ffmpeg", copyStub), false)
	defer s.Abort()
	if err := s.Push(capture.Frame{Data: []byte{1, 2, 3}}); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestAbortMarksIncomplete(t *testing.T) {
	stub := writeStub(t, "ffmpeg", "for last; do :; done\nhead -c 12 > \"$last\"\nexec sleep 30")
	s, out := openSession(t, stub, false)
	if err := s.Push(frame(0)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	tmp := filepath.Join(filepath.Dir(out), ".tmp-output_segment.mp4")
	deadline := time.Now().Add(5 * time.Second)
	for {
		if info, err := os.Stat(tmp); err == nil && info.Size() == 12 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stub encoder never wrote the first frame")
		}
		time.Sleep(10 * time.Millisecond)
	}
	done := make(chan struct{})
	go func() {
		s.Abort()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Abort did not return")
	}
	result, err := s.Close(context.Background())
	if !errors.Is(err, services.ErrEncoderFinalize) {
		t.Fatalf("expected ErrEncoderFinalize after abort, got %v", err)
	}
	if result.IncompletePath != out+IncompleteSuffix {
		t.Fatalf("unexpected incomplete path %q", result.IncompletePath)
	}
	if err := s.Push(frame(1)); err == nil {
		t.Fatal("expected push after abort to fail")
	}
}

func TestVerifyRequiresVideoStream(t *testing.T) {
	restore := inspectMedia
	t.Cleanup(func() { inspectMedia = restore })

	inspectMedia = func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{Streams: []ffprobe.Stream{{CodecType: "video", Width: 2, Height: 2}}}, nil
	}
	s, out := openSession(t, writeStub(t, "ffmpeg", copyStub), true)
	_ = s.Push(frame(0))
	if result, err := s.Close(context.Background()); err != nil || result.Path != out {
		t.Fatalf("expected verified publish, got %+v %v", result, err)
	}

	inspectMedia = func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{}, nil
	}
	s, out = openSession(t, writeStub(t, "ffmpeg", copyStub), true)
	_ = s.Push(frame(0))
	result, err := s.Close(context.Background())
	if !errors.Is(err, services.ErrEncoderFinalize) || result.IncompletePath != out+IncompleteSuffix {
		t.Fatalf("expected verification failure, got %+v %v", result, err)
	}
}

func TestBuildArgsMatchesRawPipeline(t *testing.T) {
	args := strings.Join(buildArgs(Options{Format: capture.Format{Width: 640, Height: 480, PixelFormat: "bgr24", Rate: 20}, Codec: "libx264", Preset: "ultrafast", Tune: "zerolatency"}, "/tmp/out.mp4"), " ")
	for _, want := range []string{"-f rawvideo", "-pix_fmt bgr24", "-s 640x480", "-r 20", "-i -", "-c:v libx264", "-preset ultrafast", "-tune zerolatency"} {
		if !strings.Contains(args, want) {
			t.Fatalf("expected %q in %q", want, args)
		}
	}
	if !strings.HasSuffix(args, "/tmp/out.mp4") {
		t.Fatalf("expected output last, got %q", args)
	}
}
