package preflight

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"lifesaver/internal/config"
)

// RecorderProcess reports whether a recorder daemon holds the instance lock.
type RecorderProcess struct {
	Running bool
	PID     int
}

// ProbeRecorder checks the recorder's lock file without taking it for longer
// than the probe.
func ProbeRecorder(cfg *config.Config) (RecorderProcess, error) {
	if _, err := os.Stat(cfg.Paths.StateDir); os.IsNotExist(err) {
		return RecorderProcess{}, nil
	}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return RecorderProcess{}, fmt.Errorf("probe recorder lock: %w", err)
	}
	if locked {
		_ = lock.Unlock()
		return RecorderProcess{}, nil
	}
	proc := RecorderProcess{Running: true}
	if data, err := os.ReadFile(cfg.PIDPath()); err == nil {
		proc.PID, _ = strconv.Atoi(strings.TrimSpace(string(data)))
	}
	return proc, nil
}

// Detail renders a display-friendly summary for status output.
func (p RecorderProcess) Detail() string {
	if !p.Running {
		return "Not running"
	}
	if p.PID > 0 {
		return fmt.Sprintf("Running (pid %d)", p.PID)
	}
	return "Running"
}
