package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"lifesaver/internal/capture"
	"lifesaver/internal/config"
	"lifesaver/internal/encoder"
	"lifesaver/internal/journal"
	"lifesaver/internal/location"
	"lifesaver/internal/logging"
	"lifesaver/internal/notifications"
	"lifesaver/internal/recorder"
	"lifesaver/internal/trigger"
)

// syntheticFixes stand in for gpsd during synthetic runs.
var syntheticFixes = location.Static{
	{Latitude: 37.7749, Longitude: -122.4194},
	{Latitude: 37.7750, Longitude: -122.4193},
	{Latitude: 37.7751, Longitude: -122.4192},
}

func captureFormat(cfg *config.Config) capture.Format {
	return capture.Format{
		Width:       cfg.Capture.Width,
		Height:      cfg.Capture.Height,
		PixelFormat: cfg.Capture.PixelFormat,
		Rate:        cfg.Capture.Rate,
	}
}

// openSource starts the camera, or a paced test pattern in synthetic mode.
func openSource(ctx context.Context, cfg *config.Config, synthetic bool, logger *slog.Logger) (capture.Source, error) {
	format := captureFormat(cfg)
	if synthetic {
		return capture.NewSynthetic(format, capture.WithPacing()), nil
	}
	return capture.OpenFFmpeg(ctx, capture.FFmpegOptions{
		Binary:      cfg.Capture.Binary,
		Device:      cfg.Capture.Device,
		InputFormat: cfg.Capture.InputFormat,
		Format:      format,
	}, logger)
}

// triggerInput is the debounced trigger plus whatever must be closed with it.
type triggerInput struct {
	monitor *trigger.Monitor
	// sw is set in synthetic mode so a pulse can be injected.
	sw    *trigger.Switch
	close func() error
}

func openTrigger(cfg *config.Config, synthetic bool) (*triggerInput, error) {
	if synthetic {
		sw := trigger.NewSwitch(trigger.Low)
		return &triggerInput{
			monitor: trigger.NewMonitor(sw, trigger.Options{Confirmations: cfg.Trigger.Confirmations}),
			sw:      sw,
			close:   func() error { return nil },
		}, nil
	}
	exportPin := -1
	if cfg.Trigger.ValuePath == "" {
		exportPin = cfg.Trigger.GPIOPin
	}
	sensor, err := trigger.OpenSysfs(cfg.GPIOValuePath(), exportPin)
	if err != nil {
		return nil, err
	}
	return &triggerInput{
		monitor: trigger.NewMonitor(sensor, trigger.Options{
			ActiveLow:     cfg.Trigger.ActiveLow,
			Confirmations: cfg.Trigger.Confirmations,
		}),
		close: sensor.Close,
	}, nil
}

// pulse raises the synthetic switch long enough for the debouncer to confirm
// it, then releases it.
func (t *triggerInput) pulse(ctx context.Context, hold time.Duration) {
	if t.sw == nil {
		return
	}
	t.sw.Set(trigger.High)
	select {
	case <-ctx.Done():
	case <-time.After(hold):
	}
	t.sw.Set(trigger.Low)
}

func locationAcquirer(cfg *config.Config, synthetic bool, logger *slog.Logger) location.Acquirer {
	switch {
	case synthetic:
		return syntheticFixes
	case !cfg.Location.Enabled:
		return location.Disabled{}
	default:
		return location.NewGPSD(cfg.Location.GPSDAddr, time.Duration(cfg.Location.FixTimeoutSeconds)*time.Second, logger)
	}
}

func encoderFactory(cfg *config.Config, format capture.Format, logger *slog.Logger) recorder.EncoderFactory {
	return func(ctx context.Context, outputPath string) (recorder.EncodeSession, error) {
		session, err := encoder.Open(ctx, encoder.Options{
			Binary:        cfg.Encoder.Binary,
			OutputPath:    outputPath,
			Format:        format,
			Codec:         cfg.Encoder.Codec,
			Preset:        cfg.Encoder.Preset,
			Tune:          cfg.Encoder.Tune,
			Verify:        cfg.Encoder.Verify,
			FFprobeBinary: cfg.Encoder.FFprobeBinary,
		}, logger)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// sessionObserver journals every status change and notifies on failed
// sessions. It runs on the session worker, so journal writes for one
// session are ordered.
func sessionObserver(store *journal.Store, notifier notifications.Service, logger *slog.Logger) func(recorder.Session) {
	return func(s recorder.Session) {
		ctx := context.Background()
		if err := store.RecordSession(ctx, s); err != nil {
			logging.WarnWithContext(logger, "journal update failed", "journal_write_failed",
				logging.String(logging.FieldCorrelationID, s.CorrelationID),
				logging.String("status", string(s.Status)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "event history incomplete"),
				logging.String(logging.FieldErrorHint, "check free space and permissions on "+filepath.Dir(store.Path())),
			)
		}
		if s.Status == recorder.StatusClosed && s.Failed && !errors.Is(s.Err, recorder.ErrShutdown) {
			if err := notifier.NotifySessionFailed(ctx, s.ID, s.Err); err != nil {
				logger.Debug("session failure notification failed", logging.Error(err))
			}
		}
	}
}

func describeSource(cfg *config.Config, synthetic bool) string {
	if synthetic {
		f := captureFormat(cfg)
		return fmt.Sprintf("synthetic %s@%d", f.Size(), f.Rate)
	}
	return cfg.Capture.Device
}
