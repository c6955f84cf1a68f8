package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"lifesaver/internal/config"
	"lifesaver/internal/ipc"
	"lifesaver/internal/preflight"
)

// LaunchOptions controls how the background recorder is started.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
	Synthetic  bool
}

// StartState describes what EnsureStarted found or did.
type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures the outcome of EnsureStarted.
type StartResult struct {
	State    StartState
	Launched bool
	PID      int
}

// ErrNotRunning indicates no recorder holds the instance lock.
var ErrNotRunning = errors.New("recorder not running")

// StopResult captures the outcome of Stop.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// RestartResult captures stop and start outcomes for Restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

var pollInterval = 200 * time.Millisecond

// Launch starts "<exe> run" in its own session so it outlives the calling
// terminal. Output is discarded; the recorder logs to its log directory.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}
	args := []string{"run"}
	if path := strings.TrimSpace(opts.ConfigPath); path != "" {
		args = append(args, "--config", path)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	if opts.Synthetic {
		args = append(args, "--synthetic")
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch recorder: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient polls the socket until the recorder answers or timeout passes.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(pollInterval)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for recorder")
	}
	return nil, fmt.Errorf("recorder failed to start: %w", lastErr)
}

// EnsureStarted launches the recorder unless one already answers on
// socketPath, then waits for it to come up.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	result := StartResult{State: StartStateAlreadyRunning}
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if err := Launch(executablePath, opts); err != nil {
			return StartResult{}, err
		}
		client, err = WaitForClient(socketPath, waitTimeout)
		if err != nil {
			return StartResult{}, err
		}
		result = StartResult{State: StartStateStarted, Launched: true}
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return result, fmt.Errorf("query recorder status: %w", err)
	}
	result.PID = status.PID
	return result, nil
}

// Stop sends SIGTERM to the recorder that holds the instance lock and waits
// up to gracePeriod for it to exit before sending SIGKILL.
func Stop(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	proc, err := preflight.ProbeRecorder(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !proc.Running {
		return StopResult{}, ErrNotRunning
	}
	if proc.PID <= 0 {
		return StopResult{}, fmt.Errorf("recorder holds %s but pid file %s is unreadable", cfg.LockPath(), cfg.PIDPath())
	}
	if proc.PID == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", proc.PID)
	}

	result := StopResult{PID: proc.PID}
	if err := unix.Kill(proc.PID, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			cleanupRuntimeFiles(cfg)
			return result, nil
		}
		return result, fmt.Errorf("signal recorder %d: %w", proc.PID, err)
	}
	if waitForExit(proc.PID, gracePeriod) {
		return result, nil
	}

	if err := unix.Kill(proc.PID, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill recorder %d: %w", proc.PID, err)
	}
	result.ForcedKill = true
	waitForExit(proc.PID, 2*time.Second)
	cleanupRuntimeFiles(cfg)
	return result, nil
}

// Restart stops the recorder if it is running, then starts it again.
func Restart(cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := Stop(cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrNotRunning) {
		return RestartResult{}, stopErr
	}
	startResult, err := EnsureStarted(cfg.SocketPath(), executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}
	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if err := unix.Kill(pid, 0); errors.Is(err, unix.ESRCH) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// cleanupRuntimeFiles removes what a killed recorder could not. The lock
// file itself stays; flock locks die with the process.
func cleanupRuntimeFiles(cfg *config.Config) {
	_ = os.Remove(cfg.PIDPath())
	_ = os.Remove(cfg.SocketPath())
}
