package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lifesaver/internal/capture"
	"lifesaver/internal/handoff"
	"lifesaver/internal/location"
	"lifesaver/internal/logging"
	"lifesaver/internal/ringbuf"
	"lifesaver/internal/services"
)

// Deliverer receives finished events. *handoff.Service implements it.
type Deliverer interface {
	Deliver(ctx context.Context, d handoff.Delivery) error
}

// Options wires the recorder's collaborators.
type Options struct {
	Source   capture.Source
	Trigger  EdgeDetector
	Encoders EncoderFactory
	Location location.Acquirer
	Handoff  Deliverer

	OutputDir string
	VideoName string
	PreRoll   time.Duration
	PostRoll  time.Duration
	FixCount  int
	// QueueSlack is added to the hand-off queue capacity on top of the
	// pre-roll and post-roll frame counts.
	QueueSlack int
	// FinalizeTimeout bounds how long closing the encoder may take.
	FinalizeTimeout time.Duration
	// HandoffTimeout bounds delivery of a finished event. Delivery is not
	// cut short by shutdown.
	HandoffTimeout time.Duration

	// OnSessionChanged is invoked from the session worker after every status
	// change. Calls for one session are sequential.
	OnSessionChanged func(Session)
	Logger           *slog.Logger
}

// Recorder runs the capture loop. Create one with New and call Run once.
type Recorder struct {
	opts     Options
	format   capture.Format
	buffer   *ringbuf.Buffer[capture.Frame]
	logger   *slog.Logger
	tolerate time.Duration

	manual chan struct{}

	// active is owned by the capture goroutine.
	active  *liveSession
	workers sync.WaitGroup

	framesCaptured    atomic.Uint64
	sessionsStarted   atomic.Uint64
	sessionsSucceeded atomic.Uint64
	sessionsFailed    atomic.Uint64
	triggersIgnored   atomic.Uint64
	overruns          atomic.Uint64

	statusMu sync.Mutex
	current  *Session
}

// New validates opts and builds a recorder.
func New(opts Options) (*Recorder, error) {
	if opts.Source == nil {
		return nil, errors.New("recorder: source required")
	}
	if opts.Trigger == nil {
		return nil, errors.New("recorder: trigger required")
	}
	if opts.Encoders == nil {
		return nil, errors.New("recorder: encoder factory required")
	}
	if opts.OutputDir == "" {
		return nil, errors.New("recorder: output directory required")
	}
	format := opts.Source.Format()
	if err := format.Validate(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "recorder", "new", "source format", err)
	}
	if opts.VideoName == "" {
		opts.VideoName = "output_segment.mp4"
	}
	if opts.Location == nil {
		opts.Location = location.Disabled{}
	}
	if opts.QueueSlack <= 0 {
		opts.QueueSlack = max(8, format.Rate)
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = time.Minute
	}
	if opts.HandoffTimeout <= 0 {
		opts.HandoffTimeout = 5 * time.Minute
	}
	if opts.PreRoll < 0 {
		opts.PreRoll = 0
	}
	if opts.PostRoll < 0 {
		opts.PostRoll = 0
	}

	return &Recorder{
		opts:     opts,
		format:   format,
		buffer:   ringbuf.New[capture.Frame](format.FramesFor(opts.PreRoll)),
		logger:   logging.NewComponentLogger(opts.Logger, "recorder"),
		tolerate: format.Interval() / 2,
		manual:   make(chan struct{}, 1),
	}, nil
}

// Run captures until ctx ends or the device fails. An in-flight session is
// aborted on exit and its worker awaited. Run returns nil on cancellation,
// the context cause when it carries ErrDevice, and an ErrDevice-tagged error
// when the source or trigger input fails.
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.Info("recorder started",
		logging.String(logging.FieldEventType, "recorder_started"),
		logging.Int("buffer_capacity", r.buffer.Cap()),
		logging.Duration("pre_roll", r.opts.PreRoll),
		logging.Duration("post_roll", r.opts.PostRoll),
		logging.Int("rate", r.format.Rate),
	)
	err := r.loop(ctx)
	r.shutdown()

	if cause := context.Cause(ctx); errors.Is(cause, services.ErrDevice) {
		err = cause
	}
	stats := r.Stats()
	attrs := []slog.Attr{
		logging.String(logging.FieldEventType, "recorder_stopped"),
		logging.Int64("frames_captured", int64(stats.FramesCaptured)),
		logging.Int64("sessions_started", int64(stats.SessionsStarted)),
		logging.Int64("sessions_failed", int64(stats.SessionsFailed)),
		logging.Int64("triggers_ignored", int64(stats.TriggersIgnored)),
	}
	if err != nil {
		attrs = append(attrs, logging.Error(err), logging.String(logging.FieldErrorHint, services.Hint(err)))
		logging.ErrorWithContext(r.logger, "recorder stopped on device failure", "recorder_stopped", attrs...)
		return err
	}
	r.logger.Info("recorder stopped", logging.Args(attrs...)...)
	return nil
}

func (r *Recorder) loop(ctx context.Context) error {
	for {
		frame, err := r.opts.Source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, services.ErrDevice) {
				return err
			}
			return services.Wrap(services.ErrDevice, "recorder", "read frame", "", err)
		}
		if err := r.step(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// step processes one captured frame. It never blocks on a session worker.
func (r *Recorder) step(ctx context.Context, frame capture.Frame) error {
	r.buffer.Append(frame)
	r.framesCaptured.Add(1)

	edge, err := r.opts.Trigger.PollEdge(ctx)
	if err != nil {
		if errors.Is(err, services.ErrDevice) {
			return err
		}
		return services.Wrap(services.ErrDevice, "recorder", "poll trigger", "", err)
	}
	select {
	case <-r.manual:
		edge = true
	default:
	}

	if r.active != nil && r.active.finished() {
		r.active = nil
	}
	if r.active != nil && !r.active.liveClosed {
		r.forward(frame)
	}

	if !edge {
		return nil
	}
	if r.active != nil {
		r.triggersIgnored.Add(1)
		r.logger.Info("trigger ignored; session already active",
			logging.String(logging.FieldEventType, "trigger_ignored"),
			logging.String(logging.FieldCorrelationID, r.active.correlationID),
		)
		return nil
	}
	r.start(ctx, frame)
	return nil
}

// forward hands a live frame to the active session and closes the live window
// once the post-trigger duration has elapsed. Frame timestamps are compared to
// the trigger time with half an interval of tolerance so capture jitter does
// not shorten or stretch the window by a frame.
func (r *Recorder) forward(frame capture.Frame) {
	s := r.active
	elapsed := frame.Timestamp.Sub(s.triggeredAt)
	if elapsed > r.opts.PostRoll+r.tolerate {
		s.closeLive()
		return
	}
	if !s.offer(frame) {
		r.overruns.Add(1)
		logging.WarnWithContext(r.logger, "session queue full; failing session", "session_overrun",
			logging.String(logging.FieldCorrelationID, s.correlationID),
			logging.Int("queue_capacity", cap(s.frames)),
			logging.String(logging.FieldErrorHint, services.Hint(services.ErrSessionOverrun)),
			logging.String(logging.FieldImpact, "event video will not be produced"),
		)
		return
	}
	if elapsed >= r.opts.PostRoll-r.tolerate {
		s.closeLive()
	}
}

func (r *Recorder) start(ctx context.Context, frame capture.Frame) {
	snapshot := r.buffer.Snapshot()
	postFrames := r.format.FramesFor(r.opts.PostRoll) + 1
	s := &liveSession{
		correlationID: uuid.NewString(),
		triggeredAt:   frame.Timestamp,
		preRoll:       len(snapshot),
		frames:        make(chan capture.Frame, len(snapshot)+postFrames+r.opts.QueueSlack),
		closed:        make(chan struct{}),
	}
	for _, f := range snapshot {
		s.frames <- f
	}
	if r.opts.PostRoll <= 0 {
		s.closeLive()
	}

	sessCtx, cancel := context.WithCancel(services.WithCorrelationID(ctx, s.correlationID))
	s.cancel = cancel
	r.active = s
	r.sessionsStarted.Add(1)
	r.logger.Info("trigger detected; session opened",
		logging.String(logging.FieldEventType, "session_opened"),
		logging.String(logging.FieldCorrelationID, s.correlationID),
		logging.Int("pre_roll_frames", len(snapshot)),
		logging.Time("triggered_at", s.triggeredAt),
	)

	r.workers.Add(1)
	go func() {
		defer r.workers.Done()
		defer cancel()
		r.runSession(sessCtx, s)
	}()
}

// shutdown aborts an in-flight session and waits for all workers.
func (r *Recorder) shutdown() {
	if s := r.active; s != nil && !s.finished() {
		r.logger.Info("aborting in-flight session",
			logging.String(logging.FieldEventType, "session_abort"),
			logging.String(logging.FieldCorrelationID, s.correlationID),
		)
		s.abort()
	}
	r.workers.Wait()
	r.active = nil
}

// TriggerNow requests a trigger on the next captured frame, as if the sensor
// had fired. Extra requests before then are coalesced.
func (r *Recorder) TriggerNow() {
	select {
	case r.manual <- struct{}{}:
	default:
	}
}

// Stats returns cumulative counters and the active session, if any.
func (r *Recorder) Stats() Stats {
	stats := Stats{
		FramesCaptured:    r.framesCaptured.Load(),
		SessionsStarted:   r.sessionsStarted.Load(),
		SessionsSucceeded: r.sessionsSucceeded.Load(),
		SessionsFailed:    r.sessionsFailed.Load(),
		TriggersIgnored:   r.triggersIgnored.Load(),
		Overruns:          r.overruns.Load(),
		BufferedFrames:    r.buffer.Len(),
		BufferCapacity:    r.buffer.Cap(),
	}
	r.statusMu.Lock()
	if r.current != nil {
		cp := *r.current
		stats.Active = &cp
	}
	r.statusMu.Unlock()
	return stats
}

func (r *Recorder) publish(s Session) {
	r.statusMu.Lock()
	if s.Status == StatusClosed {
		r.current = nil
	} else {
		cp := s
		r.current = &cp
	}
	r.statusMu.Unlock()
	if r.opts.OnSessionChanged != nil {
		r.opts.OnSessionChanged(s)
	}
}
