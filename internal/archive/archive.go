package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	draptolib "github.com/five82/drapto"

	"lifesaver/internal/fileutil"
	"lifesaver/internal/handoff"
	"lifesaver/internal/logging"
)

// encodeFunc transcodes input into outputDir and returns the output path.
type encodeFunc func(ctx context.Context, input, outputDir string, rep draptolib.Reporter) (string, error)

// Archiver transcodes finished events into the archive directory.
type Archiver struct {
	dir     string
	logName string
	encode  encodeFunc
	logger  *slog.Logger

	mu sync.Mutex
}

// New returns an Archiver writing under dir. logName is the location log
// file copied alongside the transcode.
func New(dir, logName string, logger *slog.Logger) *Archiver {
	if logName == "" {
		logName = handoff.DefaultLocationLogName
	}
	return &Archiver{
		dir:     dir,
		logName: logName,
		encode:  draptoEncode,
		logger:  logging.NewComponentLogger(logger, "archive"),
	}
}

// Archive transcodes d's video and copies its location log. It returns the
// path of the archived video.
func (a *Archiver) Archive(ctx context.Context, d handoff.Delivery) (string, error) {
	if strings.TrimSpace(d.VideoPath) == "" {
		return "", errors.New("archive: video path required")
	}
	if strings.TrimSpace(d.SessionID) == "" {
		return "", errors.New("archive: session id required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	outDir := filepath.Join(a.dir, d.SessionID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("archive: create %s: %w", outDir, err)
	}

	logger := a.logger.With(logging.String(logging.FieldSessionID, d.SessionID))
	logger.Info("archive transcode started",
		logging.String(logging.FieldEventType, "archive_started"),
		logging.String("input", d.VideoPath),
	)
	out, err := a.encode(ctx, d.VideoPath, outDir, &reporter{logger: logger})
	if err != nil {
		return "", fmt.Errorf("archive: transcode %s: %w", d.VideoPath, err)
	}
	if _, err := fileutil.RequireNonEmpty(out); err != nil {
		return "", fmt.Errorf("archive: transcode output: %w", err)
	}

	logSrc := filepath.Join(d.Dir, a.logName)
	if _, err := os.Stat(logSrc); err == nil {
		if err := fileutil.CopyFile(logSrc, filepath.Join(outDir, a.logName)); err != nil {
			return out, fmt.Errorf("archive: copy location log: %w", err)
		}
	}
	return out, nil
}

func draptoEncode(ctx context.Context, input, outputDir string, rep draptolib.Reporter) (string, error) {
	encoder, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return "", err
	}
	if _, err := encoder.EncodeWithReporter(ctx, input, outputDir, rep); err != nil {
		return "", err
	}
	return OutputPath(input, outputDir), nil
}

// OutputPath returns where drapto writes the transcode of input.
func OutputPath(input, outputDir string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(outputDir, stem+".mkv")
}
