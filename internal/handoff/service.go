package handoff

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"lifesaver/internal/fileutil"
	"lifesaver/internal/location"
	"lifesaver/internal/logging"
	"lifesaver/internal/services"
)

// DefaultLocationLogName is the location log written into each event directory.
const DefaultLocationLogName = "gps_data.json"

// UploadRecorder persists upload outcomes. *journal.Store implements it.
type UploadRecorder interface {
	RecordUpload(ctx context.Context, sessionID, transport string, uploadErr error) error
}

// Notifier is the notification subset used after an event is recorded.
type Notifier interface {
	NotifyEventRecorded(ctx context.Context, sessionID string, frames int64, fixes int) error
	NotifyUploadFailed(ctx context.Context, sessionID string, err error) error
}

// Archiver produces an additional long-term copy of an event.
type Archiver interface {
	Archive(ctx context.Context, d Delivery) (string, error)
}

// Options configures a Service. Only Transport is required.
type Options struct {
	Transport       Transport
	LocationLogName string
	Journal         UploadRecorder
	Notifier        Notifier
	Archiver        Archiver
	Logger          *slog.Logger
}

// Service implements the recorder's hand-off step.
type Service struct {
	transport Transport
	logName   string
	journal   UploadRecorder
	notifier  Notifier
	archiver  Archiver
	logger    *slog.Logger
}

// NewService builds a Service. A nil transport keeps events local.
func NewService(opts Options) *Service {
	if opts.Transport == nil {
		opts.Transport = NoneTransport{}
	}
	if opts.LocationLogName == "" {
		opts.LocationLogName = DefaultLocationLogName
	}
	return &Service{
		transport: opts.Transport,
		logName:   opts.LocationLogName,
		journal:   opts.Journal,
		notifier:  opts.Notifier,
		archiver:  opts.Archiver,
		logger:    logging.NewComponentLogger(opts.Logger, "handoff"),
	}
}

// LocationLogPath returns where Deliver writes the location log for d.
func (s *Service) LocationLogPath(d Delivery) string {
	return filepath.Join(d.Dir, s.logName)
}

// Deliver persists the location log and submits the event. The returned
// error is tagged ErrHandoffTransport; local files are never removed.
func (s *Service) Deliver(ctx context.Context, d Delivery) error {
	ctx = services.WithSessionID(ctx, d.SessionID)
	logger := logging.WithContext(ctx, s.logger)

	logPath := s.LocationLogPath(d)
	if err := location.WriteLog(logPath, d.Fixes); err != nil {
		return s.failed(ctx, logger, d, services.Wrap(services.ErrHandoffTransport, "handoff", "write location log", logPath, err))
	}
	logger.Info("location log written",
		logging.String(logging.FieldEventType, "location_log_written"),
		logging.String("path", logPath),
		logging.Int("fixes", len(d.Fixes)),
	)

	videoSize, err := fileutil.RequireNonEmpty(d.VideoPath)
	if err != nil {
		return s.failed(ctx, logger, d, services.Wrap(services.ErrHandoffTransport, "handoff", "verify video", d.VideoPath, err))
	}
	if _, err := fileutil.RequireNonEmpty(logPath); err != nil {
		return s.failed(ctx, logger, d, services.Wrap(services.ErrHandoffTransport, "handoff", "verify location log", logPath, err))
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyEventRecorded(ctx, d.SessionID, d.Frames, len(d.Fixes)); err != nil {
			logger.Warn("event notification failed", logging.Error(err))
		}
	}

	if err := s.transport.Submit(ctx, d.SessionID, d.VideoPath, logPath); err != nil {
		if !errors.Is(err, services.ErrHandoffTransport) {
			err = services.Wrap(services.ErrHandoffTransport, "handoff", "submit", s.transport.Name(), err)
		}
		return s.failed(ctx, logger, d, err)
	}
	s.record(ctx, logger, d, nil)
	logger.Info("event handed off",
		logging.String(logging.FieldEventType, "handoff_complete"),
		logging.String("transport", s.transport.Name()),
		logging.Int64("video_bytes", videoSize),
	)

	s.archive(ctx, logger, d)
	return nil
}

func (s *Service) failed(ctx context.Context, logger *slog.Logger, d Delivery, err error) error {
	s.record(ctx, logger, d, err)
	if s.notifier != nil {
		if nerr := s.notifier.NotifyUploadFailed(ctx, d.SessionID, err); nerr != nil {
			logger.Warn("upload failure notification failed", logging.Error(nerr))
		}
	}
	// The archive copy is still useful when the upload did not go through.
	s.archive(ctx, logger, d)
	return err
}

func (s *Service) record(ctx context.Context, logger *slog.Logger, d Delivery, uploadErr error) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordUpload(context.WithoutCancel(ctx), d.SessionID, s.transport.Name(), uploadErr); err != nil {
		logger.Warn("journal upload record failed", logging.Error(err))
	}
}

func (s *Service) archive(ctx context.Context, logger *slog.Logger, d Delivery) {
	if s.archiver == nil || d.VideoPath == "" {
		return
	}
	out, err := s.archiver.Archive(ctx, d)
	if err != nil {
		logging.WarnWithContext(logger, "archive transcode failed", "archive_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no archive copy for this event"),
		)
		return
	}
	logger.Info("event archived",
		logging.String(logging.FieldEventType, "archive_complete"),
		logging.String("path", out),
	)
}
