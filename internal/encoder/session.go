package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"lifesaver/internal/capture"
	"lifesaver/internal/logging"
	"lifesaver/internal/media/ffprobe"
	"lifesaver/internal/services"
	"lifesaver/internal/textutil"
)

// IncompleteSuffix is appended to the output name of an encode that did not
// finish cleanly.
const IncompleteSuffix = ".incomplete"

// waitDelay bounds how long Wait lingers on stderr after ffmpeg is killed.
const waitDelay = 2 * time.Second

var (
	commandContext = exec.CommandContext
	inspectMedia   = ffprobe.Inspect
)

// Options configures one encode.
type Options struct {
	Binary     string
	OutputPath string
	Format     capture.Format
	Codec      string
	Preset     string
	Tune       string
	// Verify runs ffprobe on the finished file and requires a video stream.
	Verify        bool
	FFprobeBinary string
}

// Result describes a finished (or abandoned) encode.
type Result struct {
	Path           string
	IncompletePath string
	Frames         int64
	Bytes          int64
	Elapsed        time.Duration
}

// Session is one running encode. Push and Close are called from a single
// goroutine; Abort may be called from any goroutine.
type Session struct {
	opts      Options
	logger    *slog.Logger
	tmpPath   string
	frameSize int
	started   time.Time

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc
	stderr *textutil.Tail
	exited chan struct{}
	// waitErr is written before exited is closed.
	waitErr error

	frames  atomic.Int64
	aborted atomic.Bool
	pushErr error

	finishOnce sync.Once
	result     Result
	finishErr  error
}

// Open starts ffmpeg for opts. A failure to launch the process is reported as
// ErrEncoderStart and leaves nothing on disk.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	if err := opts.Format.Validate(); err != nil {
		return nil, services.Wrap(services.ErrEncoderStart, "encoder", "open", "invalid format", err)
	}
	if opts.OutputPath == "" {
		return nil, services.Wrap(services.ErrEncoderStart, "encoder", "open", "output path required", nil)
	}
	if opts.Binary == "" {
		opts.Binary = "ffmpeg"
	}
	if opts.Codec == "" {
		opts.Codec = "libx264"
	}

	dir, name := filepath.Split(opts.OutputPath)
	tmpPath := filepath.Join(dir, ".tmp-"+name)

	// The encode outlives caller cancellation; shutdown goes through Abort so
	// the partial file is marked incomplete.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := commandContext(runCtx, opts.Binary, buildArgs(opts, tmpPath)...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, services.Wrap(services.ErrEncoderStart, "encoder", "open", "stdin pipe", err)
	}
	tail := textutil.NewTail(4096)
	cmd.Stderr = tail
	cmd.WaitDelay = waitDelay
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, services.Wrap(services.ErrEncoderStart, "encoder", "open", "start "+opts.Binary, err)
	}

	s := &Session{
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "encoder"),
		tmpPath:   tmpPath,
		frameSize: opts.Format.FrameSize(),
		started:   time.Now(),
		cmd:       cmd,
		stdin:     stdin,
		cancel:    cancel,
		stderr:    tail,
		exited:    make(chan struct{}),
	}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()
	s.logger.Debug("encoder started",
		logging.String(logging.FieldEventType, "encoder_started"),
		logging.String("output", opts.OutputPath),
		logging.Int("pid", cmd.Process.Pid),
	)
	return s, nil
}

func buildArgs(opts Options, output string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "rawvideo",
		"-vcodec", "rawvideo",
		"-pix_fmt", opts.Format.PixelFormat,
		"-s", opts.Format.Size(),
		"-r", strconv.Itoa(opts.Format.Rate),
		"-i", "-",
		"-an",
		"-c:v", opts.Codec,
	}
	if opts.Preset != "" {
		args = append(args, "-preset", opts.Preset)
	}
	if opts.Tune != "" {
		args = append(args, "-tune", opts.Tune)
	}
	return append(args, "-pix_fmt", "yuv420p", output)
}

// Push writes one frame to the encoder. It blocks while the encoder is busy.
// Frames whose size does not match the session format are rejected.
func (s *Session) Push(frame capture.Frame) error {
	if s.pushErr != nil {
		return s.pushErr
	}
	if s.aborted.Load() {
		return services.Wrap(services.ErrEncoderFinalize, "encoder", "push", "session aborted", nil)
	}
	if len(frame.Data) != s.frameSize {
		return fmt.Errorf("encoder push: frame %d has %d bytes, want %d", frame.Seq, len(frame.Data), s.frameSize)
	}
	if _, err := s.stdin.Write(frame.Data); err != nil {
		detail := "write frame " + strconv.FormatUint(frame.Seq, 10)
		if msg := s.stderr.LastLine(); msg != "" {
			detail += ": " + msg
		}
		s.pushErr = services.Wrap(services.ErrEncoderFinalize, "encoder", "push", detail, err)
		return s.pushErr
	}
	s.frames.Add(1)
	return nil
}

// Frames returns the number of frames accepted so far.
func (s *Session) Frames() int64 {
	return s.frames.Load()
}

// Close flushes the encoder and publishes the output. If ctx ends first the
// encoder is killed and the output is marked incomplete.
func (s *Session) Close(ctx context.Context) (Result, error) {
	s.finishOnce.Do(func() {
		_ = s.stdin.Close()
		var reason error
		select {
		case <-s.exited:
		case <-ctx.Done():
			s.cancel()
			<-s.exited
			reason = ctx.Err()
		}
		if reason == nil && s.aborted.Load() {
			reason = errAborted
		}
		s.result, s.finishErr = s.finalize(ctx, reason)
	})
	return s.result, s.finishErr
}

var errAborted = errors.New("encode aborted")

// Abort kills the encoder and marks the output incomplete. It is safe to call
// concurrently with Push or Close and after either has returned.
func (s *Session) Abort() {
	s.aborted.Store(true)
	s.cancel()
	s.finishOnce.Do(func() {
		_ = s.stdin.Close()
		<-s.exited
		s.result, s.finishErr = s.finalize(context.Background(), errAborted)
	})
}

func (s *Session) finalize(ctx context.Context, reason error) (Result, error) {
	defer s.cancel()
	result := Result{Frames: s.frames.Load(), Elapsed: time.Since(s.started)}

	err := reason
	if err == nil && s.pushErr != nil {
		err = s.pushErr
	}
	if err == nil && s.waitErr != nil {
		err = s.waitErr
		if msg := s.stderr.LastLine(); msg != "" {
			err = fmt.Errorf("%w: %s", s.waitErr, msg)
		}
	}
	if err == nil {
		info, statErr := os.Stat(s.tmpPath)
		switch {
		case statErr != nil:
			err = fmt.Errorf("output missing: %w", statErr)
		case info.Size() == 0:
			err = errors.New("output is empty")
		default:
			result.Bytes = info.Size()
		}
	}
	if err == nil && s.opts.Verify {
		err = s.verify(ctx)
	}

	if err != nil {
		result.IncompletePath = s.markIncomplete()
		s.logger.Warn("encode incomplete",
			logging.String(logging.FieldEventType, "encode_incomplete"),
			logging.String("output", s.opts.OutputPath),
			logging.String("incomplete", result.IncompletePath),
			logging.Int64("frames", result.Frames),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(services.ErrEncoderFinalize)),
			logging.String(logging.FieldImpact, "event video not published"),
		)
		if errors.Is(err, services.ErrEncoderFinalize) {
			return result, err
		}
		return result, services.Wrap(services.ErrEncoderFinalize, "encoder", "close", s.opts.OutputPath, err)
	}

	if renameErr := os.Rename(s.tmpPath, s.opts.OutputPath); renameErr != nil {
		result.IncompletePath = s.markIncomplete()
		return result, services.Wrap(services.ErrEncoderFinalize, "encoder", "close", "publish output", renameErr)
	}
	result.Path = s.opts.OutputPath
	s.logger.Debug("encode finished",
		logging.String(logging.FieldEventType, "encode_finished"),
		logging.String("output", result.Path),
		logging.Int64("frames", result.Frames),
		logging.Int64("bytes", result.Bytes),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

func (s *Session) verify(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	probe, err := inspectMedia(probeCtx, s.opts.FFprobeBinary, s.tmpPath)
	if err != nil {
		return fmt.Errorf("verify output: %w", err)
	}
	video, ok := probe.Video()
	if !ok {
		return errors.New("verify output: no video stream")
	}
	if video.Width != s.opts.Format.Width || video.Height != s.opts.Format.Height {
		return fmt.Errorf("verify output: dimensions %dx%d, want %s", video.Width, video.Height, s.opts.Format.Size())
	}
	return nil
}

func (s *Session) markIncomplete() string {
	if _, err := os.Stat(s.tmpPath); err != nil {
		return ""
	}
	target := s.opts.OutputPath + IncompleteSuffix
	if err := os.Rename(s.tmpPath, target); err != nil {
		return s.tmpPath
	}
	return target
}
