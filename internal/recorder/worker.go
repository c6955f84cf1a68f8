package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"lifesaver/internal/capture"
	"lifesaver/internal/handoff"
	"lifesaver/internal/location"
	"lifesaver/internal/logging"
	"lifesaver/internal/services"
)

// liveSession is the capture loop's handle on a running session worker.
type liveSession struct {
	correlationID string
	triggeredAt   time.Time
	preRoll       int
	frames        chan capture.Frame
	cancel        context.CancelFunc

	// liveClosed is owned by the capture goroutine.
	liveClosed bool
	// closed is closed by the worker once the session reaches StatusClosed.
	closed chan struct{}

	overrun atomic.Bool
	aborted atomic.Bool

	encMu sync.Mutex
	enc   EncodeSession
}

// offer enqueues frame without blocking. A full queue marks the session
// overrun and ends its live window.
func (s *liveSession) offer(frame capture.Frame) bool {
	select {
	case s.frames <- frame:
		return true
	default:
		s.overrun.Store(true)
		s.closeLive()
		return false
	}
}

func (s *liveSession) closeLive() {
	if !s.liveClosed {
		s.liveClosed = true
		close(s.frames)
	}
}

func (s *liveSession) finished() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// abort is called from the capture goroutine on shutdown.
func (s *liveSession) abort() {
	s.aborted.Store(true)
	s.cancel()
	s.encMu.Lock()
	enc := s.enc
	s.encMu.Unlock()
	if enc != nil {
		enc.Abort()
	}
	s.closeLive()
}

func (s *liveSession) setEncoder(enc EncodeSession) {
	s.encMu.Lock()
	s.enc = enc
	s.encMu.Unlock()
	if s.aborted.Load() {
		enc.Abort()
	}
}

// ErrShutdown is wrapped into the error of a session aborted because the
// recorder stopped.
var ErrShutdown = errors.New("recorder shutting down")

type locationResult struct {
	fixes []location.Fix
	err   error
}

func (r *Recorder) runSession(ctx context.Context, s *liveSession) {
	closedOnce := sync.OnceFunc(func() { close(s.closed) })
	defer closedOnce()

	state := Session{
		CorrelationID: s.correlationID,
		Status:        StatusOpen,
		TriggeredAt:   s.triggeredAt,
		PreRollFrames: s.preRoll,
	}
	logger := r.logger.With(logging.String(logging.FieldCorrelationID, s.correlationID))

	dir, err := allocateDir(r.opts.OutputDir, s.triggeredAt)
	if err != nil {
		r.fail(logger, &state, services.Wrap(services.ErrEncoderStart, "recorder", "create event directory", r.opts.OutputDir, err))
		return
	}
	state.ID = filepath.Base(dir)
	state.Dir = dir
	state.VideoPath = filepath.Join(dir, r.opts.VideoName)
	ctx = services.WithSessionID(ctx, state.ID)
	logger = logger.With(logging.String(logging.FieldSessionID, state.ID))
	r.publish(state)

	locations := make(chan locationResult, 1)
	go func() {
		fixes, err := r.opts.Location.AcquireFixes(ctx, r.opts.FixCount)
		locations <- locationResult{fixes: fixes, err: err}
	}()

	enc, err := r.opts.Encoders(ctx, state.VideoPath)
	if err != nil {
		s.cancel()
		<-locations
		_ = os.Remove(dir)
		state.Dir = ""
		state.VideoPath = ""
		if !errors.Is(err, services.ErrEncoderStart) {
			err = services.Wrap(services.ErrEncoderStart, "recorder", "open encoder", "", err)
		}
		r.fail(logger, &state, err)
		return
	}
	s.setEncoder(enc)

	state.Status = StatusDraining
	r.publish(state)

	failErr := r.feed(s, enc, &state, r.publish)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.FinalizeTimeout)
	result, closeErr := enc.Close(closeCtx)
	cancel()
	if failErr == nil {
		failErr = closeErr
	}
	state.FramesWritten = result.Frames
	state.IncompletePath = result.IncompletePath
	if failErr != nil {
		s.cancel()
	}

	loc := <-locations
	state.Fixes = len(loc.fixes)

	if failErr != nil {
		state.VideoPath = ""
		r.fail(logger, &state, failErr)
		return
	}
	state.VideoPath = result.Path
	state.Status = StatusClosed
	state.ClosedAt = time.Now()
	r.sessionsSucceeded.Add(1)
	r.publish(state)
	closedOnce()
	logger.Info("event recorded",
		logging.String(logging.FieldEventType, "event_recorded"),
		logging.String("video", state.VideoPath),
		logging.Int("pre_roll_frames", state.PreRollFrames),
		logging.Int("live_frames", state.LiveFrames),
		logging.Int64("frames_written", state.FramesWritten),
		logging.Int("fixes", state.Fixes),
	)
	if loc.err != nil {
		logging.WarnWithContext(logger, "location fixes incomplete", "location_partial",
			logging.Int("fixes", len(loc.fixes)),
			logging.Int("requested", r.opts.FixCount),
			logging.Error(loc.err),
			logging.String(logging.FieldErrorHint, services.Hint(services.ErrLocation)),
			logging.String(logging.FieldImpact, "location log holds fewer fixes than requested"),
		)
	}

	if r.opts.Handoff == nil {
		return
	}
	deliverCtx, cancelDeliver := context.WithTimeout(context.WithoutCancel(ctx), r.opts.HandoffTimeout)
	defer cancelDeliver()
	err = r.opts.Handoff.Deliver(deliverCtx, handoff.Delivery{
		SessionID:     state.ID,
		CorrelationID: state.CorrelationID,
		Dir:           state.Dir,
		VideoPath:     state.VideoPath,
		Frames:        state.FramesWritten,
		TriggeredAt:   state.TriggeredAt,
		Fixes:         loc.fixes,
		LocationErr:   loc.err,
	})
	if err != nil {
		logging.WarnWithContext(logger, "handoff failed; event kept locally", "handoff_failed",
			logging.Error(err),
			logging.String("dir", state.Dir),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "event remains on local storage only"),
		)
	}
}

// feed pushes the snapshot and then live frames into enc, in queue order.
func (r *Recorder) feed(s *liveSession, enc EncodeSession, state *Session, publish func(Session)) error {
	push := func(frame capture.Frame) error {
		if s.aborted.Load() {
			return services.Wrap(services.ErrEncoderFinalize, "recorder", "push", "session aborted", ErrShutdown)
		}
		if s.overrun.Load() {
			return services.Wrap(services.ErrSessionOverrun, "recorder", "push",
				fmt.Sprintf("queue of %d frames filled", cap(s.frames)), nil)
		}
		if err := enc.Push(frame); err != nil {
			if s.aborted.Load() {
				return services.Wrap(services.ErrEncoderFinalize, "recorder", "push", "session aborted", ErrShutdown)
			}
			return err
		}
		return nil
	}
	stop := func(err error) error {
		enc.Abort()
		return err
	}

	for i := 0; i < s.preRoll; i++ {
		frame, ok := <-s.frames
		if !ok {
			return stop(services.Wrap(services.ErrEncoderFinalize, "recorder", "drain", "queue closed during drain", ErrShutdown))
		}
		if err := push(frame); err != nil {
			return stop(err)
		}
	}

	state.Status = StatusRecordingLive
	publish(*state)

	for frame := range s.frames {
		if err := push(frame); err != nil {
			return stop(err)
		}
		state.LiveFrames++
	}
	if s.overrun.Load() {
		return stop(services.Wrap(services.ErrSessionOverrun, "recorder", "forward",
			fmt.Sprintf("queue of %d frames filled", cap(s.frames)), nil))
	}
	if s.aborted.Load() {
		return stop(services.Wrap(services.ErrEncoderFinalize, "recorder", "forward", "session aborted", ErrShutdown))
	}
	return nil
}

func (r *Recorder) fail(logger *slog.Logger, state *Session, err error) {
	state.Status = StatusClosed
	state.Failed = true
	state.Err = err
	state.ClosedAt = time.Now()
	r.sessionsFailed.Add(1)
	r.publish(*state)
	if errors.Is(err, ErrShutdown) {
		logger.Info("session aborted on shutdown",
			logging.String(logging.FieldEventType, "session_aborted"),
			logging.String("incomplete", state.IncompletePath),
		)
		return
	}
	logging.ErrorWithContext(logger, "session failed", "session_failed",
		logging.Error(err),
		logging.String("error_kind", services.Kind(err)),
		logging.String("incomplete", state.IncompletePath),
		logging.String(logging.FieldErrorHint, services.Hint(err)),
	)
}

// allocateDir creates event_YYYYMMDD_HHMMSS under root, adding _N on collision.
func allocateDir(root string, at time.Time) (string, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	base := "event_" + at.Local().Format("20060102_150405")
	for n := 0; n < 1000; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		path := filepath.Join(root, name)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free event directory for %s", base)
}
