package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"lifesaver/internal/archive"
	"lifesaver/internal/config"
	"lifesaver/internal/devmon"
	"lifesaver/internal/handoff"
	"lifesaver/internal/ipc"
	"lifesaver/internal/journal"
	"lifesaver/internal/logging"
	"lifesaver/internal/notifications"
	"lifesaver/internal/preflight"
	"lifesaver/internal/recorder"
	"lifesaver/internal/retention"
	"lifesaver/internal/services"
)

// ErrAlreadyRunning is returned when another recorder holds the instance lock.
var ErrAlreadyRunning = errors.New("recorder already running")

// Options configures recorder process runtime behavior.
type Options struct {
	LogLevel string
	// Synthetic replaces the camera, shock sensor and gpsd with in-process
	// stand-ins. The encoder and hand-off still run for real.
	Synthetic bool
	// TriggerEvery pulses the synthetic shock sensor on this interval.
	TriggerEvery time.Duration
	// Logger overrides the logger built from cfg.
	Logger *slog.Logger
}

// Run starts the recorder and blocks until it stops. It returns nil on
// SIGINT/SIGTERM or cancellation and an ErrDevice error when the camera or
// trigger input fails.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	signalCtx, stopSignals := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, cfg.LockPath())
	}
	defer lock.Unlock()

	logger := opts.Logger
	if logger == nil {
		if opts.LogLevel != "" {
			cfg.Logging.Level = opts.LogLevel
		}
		logger, err = logging.NewFromConfig(cfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays, logging.RetentionTarget{
		Dir:     cfg.Paths.LogDir,
		Pattern: logging.LogFilePattern,
		Exclude: []string{logging.LogFilePath(cfg.Paths.LogDir, time.Now())},
	})

	if err := writePIDFile(cfg.PIDPath()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(cfg.PIDPath())

	logPreflight(signalCtx, logger, cfg, opts.Synthetic)

	store, err := journal.Open(cfg)
	if err != nil {
		logger.Error("open event journal", logging.Error(err))
		return err
	}
	defer store.Close()
	if n, err := store.MarkInterrupted(signalCtx); err != nil {
		logger.Warn("mark interrupted events", logging.Error(err))
	} else if n > 0 {
		logging.WarnWithContext(logger, "previous run left unfinished events", "events_interrupted",
			logging.Int64("count", n),
			logging.String(logging.FieldImpact, "those events may have incomplete videos"),
			logging.String(logging.FieldErrorHint, "run 'lifesaver events list' to inspect them"),
		)
	}

	notifier := notifications.NewService(cfg)
	transport, err := handoff.NewTransport(signalCtx, cfg)
	if err != nil {
		return err
	}
	var archiver handoff.Archiver
	if cfg.Archive.Enabled {
		archiver = archive.New(cfg.Archive.Dir, cfg.Recording.LocationLogName, logger)
	}
	delivery := handoff.NewService(handoff.Options{
		Transport:       transport,
		LocationLogName: cfg.Recording.LocationLogName,
		Journal:         store,
		Notifier:        notifier,
		Archiver:        archiver,
		Logger:          logger,
	})

	// Device removal cancels the run with an ErrDevice cause.
	runCtx, cancelRun := context.WithCancelCause(signalCtx)
	defer cancelRun(nil)

	source, err := openSource(runCtx, cfg, opts.Synthetic, logger)
	if err != nil {
		notifyFatal(notifier, logger, err)
		return err
	}
	defer source.Close()

	trig, err := openTrigger(cfg, opts.Synthetic)
	if err != nil {
		notifyFatal(notifier, logger, err)
		return err
	}
	defer trig.close()

	format := source.Format()
	rec, err := recorder.New(recorder.Options{
		Source:           source,
		Trigger:          trig.monitor,
		Encoders:         encoderFactory(cfg, format, logger),
		Location:         locationAcquirer(cfg, opts.Synthetic, logger),
		Handoff:          delivery,
		OutputDir:        cfg.Paths.OutputDir,
		VideoName:        cfg.Recording.VideoName,
		PreRoll:          time.Duration(cfg.Recording.PreTriggerSeconds) * time.Second,
		PostRoll:         time.Duration(cfg.Recording.PostTriggerSeconds) * time.Second,
		FixCount:         cfg.Location.FixCount,
		OnSessionChanged: sessionObserver(store, notifier, logger),
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	if !opts.Synthetic {
		monitor := devmon.New(cfg.Capture.Device, cancelRun, logger)
		monitor.Start(runCtx)
		defer monitor.Stop()
	}

	ipcServer, err := ipc.NewServer(runCtx, cfg.SocketPath(), ipc.Options{
		Recorder:  rec,
		Journal:   store,
		Notifier:  notifier,
		LogDir:    cfg.Paths.LogDir,
		Device:    describeSource(cfg, opts.Synthetic),
		StartedAt: time.Now().UTC(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if cfg.Recording.RetentionDays > 0 {
		go pruneEvery(runCtx, cfg, rec, logger, 6*time.Hour)
	}

	if opts.Synthetic && opts.TriggerEvery > 0 {
		go pulseEvery(runCtx, trig, opts.TriggerEvery, format.Interval()*time.Duration(cfg.Trigger.Confirmations+1))
	}

	if err := notifier.NotifyRecorderStarted(runCtx, describeSource(cfg, opts.Synthetic)); err != nil {
		logger.Debug("start notification failed", logging.Error(err))
	}

	runErr := rec.Run(runCtx)
	if runErr != nil {
		notifyFatal(notifier, logger, runErr)
		return runErr
	}
	logger.Info("lifesaver recorder shutting down")
	return nil
}

func pulseEvery(ctx context.Context, trig *triggerInput, every, hold time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trig.pulse(ctx, hold)
		}
	}
}

// pruneEvery removes expired event directories now and then on every tick,
// never touching the session being recorded.
func pruneEvery(ctx context.Context, cfg *config.Config, rec *recorder.Recorder, logger *slog.Logger, every time.Duration) {
	opts := retention.PruneOptions{
		MaxAge: time.Duration(cfg.Recording.RetentionDays) * 24 * time.Hour,
		Keep: func(name string) bool {
			active := rec.Stats().Active
			return active != nil && active.ID == name
		},
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		result := retention.Prune(ctx, cfg.Paths.OutputDir, opts, logger)
		if len(result.Removed) > 0 {
			logger.Info("event retention pass complete",
				logging.String(logging.FieldEventType, "event_retention"),
				logging.Int("removed", len(result.Removed)),
				logging.Int64("freed_bytes", result.Freed),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, synthetic bool) {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range preflight.Failed(results) {
		if synthetic && (r.Name == "Camera" || r.Name == "Shock sensor" || r.Name == "gpsd") {
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "run 'lifesaver check' for the full report"),
		)
	}
	logger.Info("preflight complete",
		logging.String(logging.FieldEventType, "preflight_complete"),
		logging.Int("checks", len(results)),
	)
}

func notifyFatal(notifier notifications.Service, logger *slog.Logger, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	label := "recorder"
	if errors.Is(err, services.ErrDevice) {
		label = "capture device"
	}
	if notifyErr := notifier.NotifyError(ctx, err, label); notifyErr != nil {
		logger.Debug("error notification failed", logging.Error(notifyErr))
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
