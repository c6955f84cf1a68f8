package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"lifesaver/internal/logging"
	"lifesaver/internal/services"
	"lifesaver/internal/textutil"
)

var commandContext = exec.CommandContext

// FFmpegOptions configures an FFmpegSource.
type FFmpegOptions struct {
	Binary      string
	Device      string
	InputFormat string
	Format      Format
	// Backlog is the number of frames buffered between the reader and Read.
	// When full the oldest frame is dropped so the device pipe keeps draining.
	Backlog int
}

// FFmpegSource reads raw frames from a camera through an ffmpeg subprocess.
type FFmpegSource struct {
	opts   FFmpegOptions
	logger *slog.Logger

	cmd     *exec.Cmd
	cancel  context.CancelFunc
	stderr  *textutil.Tail
	frames  chan Frame
	done    chan struct{}
	err     error
	dropped atomic.Uint64

	closeOnce sync.Once
}

// OpenFFmpeg launches ffmpeg against the configured device and begins reading
// frames. Launch failures are reported as device errors.
func OpenFFmpeg(ctx context.Context, opts FFmpegOptions, logger *slog.Logger) (*FFmpegSource, error) {
	if err := opts.Format.Validate(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "capture", "open", "invalid format", err)
	}
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.InputFormat == "" {
		opts.InputFormat = "v4l2"
	}
	if opts.Backlog <= 0 {
		opts.Backlog = opts.Format.Rate
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := commandContext(runCtx, opts.Binary, ffmpegArgs(opts)...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, services.Wrap(services.ErrDevice, "capture", "open", "stdout pipe", err)
	}
	tail := textutil.NewTail(2048)
	cmd.Stderr = tail
	cmd.WaitDelay = 2 * time.Second
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, services.Wrap(services.ErrDevice, "capture", "open", "start "+opts.Binary, err)
	}

	src := &FFmpegSource{
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "capture"),
		cmd:    cmd,
		cancel: cancel,
		stderr: tail,
		frames: make(chan Frame, opts.Backlog),
		done:   make(chan struct{}),
	}
	src.logger.Info("capture started",
		logging.String(logging.FieldEventType, "capture_started"),
		logging.String("device", opts.Device),
		logging.String("size", opts.Format.Size()),
		logging.String("pixel_format", opts.Format.PixelFormat),
		logging.Int("rate", opts.Format.Rate),
	)
	go src.readLoop(stdout)
	return src, nil
}

func ffmpegArgs(opts FFmpegOptions) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", opts.InputFormat,
		"-framerate", strconv.Itoa(opts.Format.Rate),
		"-video_size", opts.Format.Size(),
		"-i", opts.Device,
		"-f", "rawvideo",
		"-pix_fmt", opts.Format.PixelFormat,
		"-",
	}
}

func (s *FFmpegSource) readLoop(stdout io.Reader) {
	defer close(s.done)
	size := s.opts.Format.FrameSize()
	var seq uint64
	for {
		buf := make([]byte, size)
		if _, err := io.ReadFull(stdout, buf); err != nil {
			waitErr := s.cmd.Wait()
			s.err = s.describeExit(err, waitErr)
			return
		}
		frame := Frame{Seq: seq, Timestamp: time.Now(), Data: buf}
		seq++
		select {
		case s.frames <- frame:
		default:
			// Reader fell behind; keep the newest frames.
			select {
			case <-s.frames:
				s.dropped.Add(1)
			default:
			}
			select {
			case s.frames <- frame:
			default:
				s.dropped.Add(1)
			}
		}
	}
}

func (s *FFmpegSource) describeExit(readErr, waitErr error) error {
	detail := "capture stream ended"
	if errors.Is(readErr, io.ErrUnexpectedEOF) {
		detail = "short frame read"
	}
	if msg := s.stderr.LastLine(); msg != "" {
		detail = fmt.Sprintf("%s: %s", detail, msg)
	}
	cause := readErr
	if waitErr != nil {
		cause = waitErr
	}
	return services.Wrap(services.ErrDevice, "capture", "read", detail, cause)
}

// Read returns the next frame in capture order.
func (s *FFmpegSource) Read(ctx context.Context) (Frame, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	default:
	}
	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case frame := <-s.frames:
		return frame, nil
	case <-s.done:
		select {
		case frame := <-s.frames:
			return frame, nil
		default:
		}
		return Frame{}, s.err
	}
}

// Format returns the frame layout produced by the source.
func (s *FFmpegSource) Format() Format {
	return s.opts.Format
}

// Dropped reports how many frames were discarded because Read fell behind.
func (s *FFmpegSource) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops ffmpeg and waits for the reader to exit.
func (s *FFmpegSource) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
		s.logger.Info("capture stopped",
			logging.String(logging.FieldEventType, "capture_stopped"),
			logging.Int64("dropped_frames", int64(s.dropped.Load())),
		)
	})
	return nil
}
