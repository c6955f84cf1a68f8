package archive

import (
	"log/slog"

	draptolib "github.com/five82/drapto"

	"lifesaver/internal/logging"
)

// reporter forwards the drapto events worth keeping to the archive logger.
type reporter struct {
	logger      *slog.Logger
	lastPercent int
}

func (r *reporter) Hardware(draptolib.HardwareSummary) {}

func (r *reporter) Initialization(s draptolib.InitializationSummary) {
	r.logger.Debug("archive input",
		logging.String("resolution", s.Resolution),
		logging.String("duration", s.Duration),
	)
}

func (r *reporter) StageProgress(s draptolib.StageProgress) {
	r.logger.Debug("archive stage", logging.String("stage", s.Stage), logging.String("message", s.Message))
}

func (r *reporter) CropResult(draptolib.CropSummary) {}

func (r *reporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	r.logger.Debug("archive encoder", logging.String("encoder", s.Encoder), logging.String("preset", s.Preset))
}

func (r *reporter) EncodingStarted(totalFrames uint64) {
	r.lastPercent = 0
	r.logger.Debug("archive encode started", logging.Int64("total_frames", int64(totalFrames)))
}

// EncodingProgress logs at most once per 25 percent.
func (r *reporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	pct := int(s.Percent)
	if pct/25 <= r.lastPercent/25 {
		return
	}
	r.lastPercent = pct
	r.logger.Info("archive progress", logging.Int("percent", pct))
}

func (r *reporter) ValidationComplete(s draptolib.ValidationSummary) {
	if !s.Passed {
		r.logger.Warn("archive validation failed", logging.String(logging.FieldEventType, "archive_validation"))
	}
}

func (r *reporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.logger.Info("archive transcode complete",
		logging.String(logging.FieldEventType, "archive_encoded"),
		logging.String("output", s.OutputPath),
		logging.Int64("original_bytes", int64(s.OriginalSize)),
		logging.Int64("encoded_bytes", int64(s.EncodedSize)),
	)
}

func (r *reporter) Warning(message string) {
	r.logger.Warn("drapto warning", logging.String("message", message))
}

func (r *reporter) Error(e draptolib.ReporterError) {
	r.logger.Error("drapto error",
		logging.String("title", e.Title),
		logging.String("message", e.Message),
		logging.String(logging.FieldErrorHint, e.Suggestion),
	)
}

func (r *reporter) OperationComplete(string)                   {}
func (r *reporter) BatchStarted(draptolib.BatchStartInfo)      {}
func (r *reporter) FileProgress(draptolib.FileProgressContext) {}
func (r *reporter) BatchComplete(draptolib.BatchSummary)       {}

var _ draptolib.Reporter = (*reporter)(nil)
