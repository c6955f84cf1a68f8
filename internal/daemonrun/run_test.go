package daemonrun

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lifesaver/internal/config"
	"lifesaver/internal/ipc"
	"lifesaver/internal/journal"
	"lifesaver/internal/logging"
	"lifesaver/internal/testsupport"
)

// encoderStub answers -version and otherwise copies stdin to its last
// argument, standing in for a successful encode.
const encoderStub = `#!/bin/sh
if [ "$1" = "-version" ]; then echo "ffmpeg version stub"; exit 0; fi
for last; do :; done
cat > "$last"
`

func syntheticConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithSmallFrames())
	testsupport.StubBinaries(t, filepath.Join(testsupport.BaseDir(cfg), "bin"), encoderStub, "ffmpeg")
	cfg.Trigger.Confirmations = 1
	return cfg
}

func dialRecorder(t *testing.T, cfg *config.Config, runErr <-chan error) *ipc.Client {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case err := <-runErr:
			t.Fatalf("Run exited early: %v", err)
		default:
		}
		if client, err := ipc.Dial(cfg.SocketPath()); err == nil {
			t.Cleanup(func() { client.Close() })
			return client
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("recorder socket never appeared")
	return nil
}

func waitForEvent(t *testing.T, client *ipc.Client) ipc.EventView {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Events(5)
		if err != nil {
			t.Fatalf("Events: %v", err)
		}
		for _, ev := range resp.Events {
			if ev.Status == "closed" && ev.UploadStatus != journal.UploadPending {
				return ev
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("no finished event journaled")
	return ipc.EventView{}
}

func TestRunSyntheticRecordsManualTrigger(t *testing.T) {
	cfg := syntheticConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- Run(ctx, cfg, Options{Synthetic: true, Logger: logging.NewNop()})
	}()
	client := dialRecorder(t, cfg, runErr)

	// Let the pre-roll buffer fill before triggering.
	time.Sleep(1200 * time.Millisecond)
	resp, err := client.Trigger()
	if err != nil || !resp.Accepted {
		t.Fatalf("Trigger: %#v %v", resp, err)
	}

	ev := waitForEvent(t, client)
	if ev.Failed {
		t.Fatalf("event failed: %s %s", ev.ErrorKind, ev.ErrorMessage)
	}
	if ev.UploadStatus != journal.UploadSkipped {
		t.Fatalf("upload status = %q, want skipped for transport none", ev.UploadStatus)
	}
	if ev.Fixes != len(syntheticFixes) {
		t.Fatalf("fixes = %d, want %d", ev.Fixes, len(syntheticFixes))
	}
	info, err := os.Stat(ev.VideoPath)
	if err != nil || info.Size() == 0 {
		t.Fatalf("video missing or empty: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(ev.VideoPath), cfg.Recording.LocationLogName)); err != nil {
		t.Fatalf("location log missing: %v", err)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.SessionsSucceeded != 1 || status.FramesCaptured == 0 {
		t.Fatalf("unexpected status %#v", status)
	}

	// A second instance must refuse to start while the first holds the lock.
	if err := Run(context.Background(), cfg, Options{Synthetic: true, Logger: logging.NewNop()}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Run = %v, want ErrAlreadyRunning", err)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop")
	}
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("pid file not removed: %v", err)
	}
}

func TestRunRejectsNilConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPulseRaisesSyntheticSwitch(t *testing.T) {
	cfg := syntheticConfig(t)
	trig, err := openTrigger(cfg, true)
	if err != nil {
		t.Fatalf("openTrigger: %v", err)
	}
	done := make(chan struct{})
	go func() {
		trig.pulse(context.Background(), 200*time.Millisecond)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	fired := false
	for time.Now().Before(deadline) && !fired {
		edge, err := trig.monitor.PollEdge(context.Background())
		if err != nil {
			t.Fatalf("PollEdge: %v", err)
		}
		fired = edge
		time.Sleep(10 * time.Millisecond)
	}
	<-done
	if !fired {
		t.Fatal("expected pulse to produce an edge")
	}
}
