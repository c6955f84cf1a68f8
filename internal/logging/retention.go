package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names a directory and file pattern to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes files matching targets whose modification time is
// older than retentionDays. Zero or negative retention disables pruning.
// It returns the number of files removed.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0

	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		skip := make(map[string]struct{}, len(target.Exclude))
		for _, name := range target.Exclude {
			skip[filepath.Base(name)] = struct{}{}
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if _, ok := skip[name]; ok {
				continue
			}
			if pattern := strings.TrimSpace(target.Pattern); pattern != "" {
				if matched, err := filepath.Match(pattern, name); err != nil || !matched {
					continue
				}
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(dir, name)
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check permissions on the log directory"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
			}
		}
	}
	return removed
}
