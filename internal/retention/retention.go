package retention

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lifesaver/internal/logging"
)

// EventPrefix marks directories created by the recorder. Nothing else in the
// output directory is touched.
const EventPrefix = "event_"

// EventDir describes one event directory on disk.
type EventDir struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// PruneResult contains the outcome of a prune pass.
type PruneResult struct {
	Removed []string
	Freed   int64
	Errors  []PruneError
}

// PruneError pairs a directory path with its removal error.
type PruneError struct {
	Path  string
	Error error
}

// PruneOptions controls Prune.
type PruneOptions struct {
	MaxAge time.Duration
	// Keep reports directory names that must survive regardless of age,
	// such as the session being recorded.
	Keep func(name string) bool
	// DryRun reports what would be removed without removing it.
	DryRun bool
}

// List returns the event directories in outputDir, oldest first.
func List(outputDir string) ([]EventDir, error) {
	outputDir = strings.TrimSpace(outputDir)
	if outputDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []EventDir
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), EventPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(outputDir, entry.Name())
		dirs = append(dirs, EventDir{
			Name:    entry.Name(),
			Path:    path,
			ModTime: info.ModTime(),
			Size:    dirSize(path),
		})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].ModTime.Before(dirs[j].ModTime) })
	return dirs, nil
}

// Usage sums the size of every event directory.
func Usage(dirs []EventDir) int64 {
	var total int64
	for _, d := range dirs {
		total += d.Size
	}
	return total
}

// Prune removes event directories last modified more than opts.MaxAge ago. A
// non-positive MaxAge removes nothing.
func Prune(ctx context.Context, outputDir string, opts PruneOptions, logger *slog.Logger) PruneResult {
	var result PruneResult
	if opts.MaxAge <= 0 {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	dirs, err := List(outputDir)
	if err != nil {
		result.Errors = append(result.Errors, PruneError{Path: outputDir, Error: err})
		return result
	}

	cutoff := time.Now().Add(-opts.MaxAge)
	for _, dir := range dirs {
		if ctx.Err() != nil {
			break
		}
		if !dir.ModTime.Before(cutoff) {
			// List is sorted oldest first.
			break
		}
		if opts.Keep != nil && opts.Keep(dir.Name) {
			continue
		}
		if opts.DryRun {
			result.Removed = append(result.Removed, dir.Path)
			result.Freed += dir.Size
			continue
		}
		if err := os.RemoveAll(dir.Path); err != nil {
			result.Errors = append(result.Errors, PruneError{Path: dir.Path, Error: err})
			logging.WarnWithContext(logger, "failed to remove old event directory", "event_prune_failed",
				logging.String("path", dir.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check output_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dir.Path)
		result.Freed += dir.Size
		logger.Info("removed old event directory",
			logging.String(logging.FieldEventType, "event_pruned"),
			logging.String("path", dir.Path),
			logging.Duration("age", time.Since(dir.ModTime).Round(time.Second)),
		)
	}
	return result
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
