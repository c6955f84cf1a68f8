package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"lifesaver/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Hand-off is disabled and location is off so nothing touches the network.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "events")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Archive.Dir = filepath.Join(base, "archive")
	cfgVal.Receiver.UploadsDir = filepath.Join(base, "uploads")
	cfgVal.Receiver.Bind = "127.0.0.1:0"
	cfgVal.Handoff.Transport = "none"
	cfgVal.Location.Enabled = false
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithSmallFrames shrinks the capture format and windows so encoder stubs
// handle little data.
func WithSmallFrames() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.Width = 4
		b.cfg.Capture.Height = 2
		b.cfg.Capture.PixelFormat = "gray"
		b.cfg.Capture.Rate = 10
		b.cfg.Recording.PreTriggerSeconds = 1
		b.cfg.Recording.PostTriggerSeconds = 1
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
// The stubs exit 0 without output.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		StubBinaries(b.t, filepath.Join(b.baseDir, "bin"), "#!/bin/sh\nexit 0\n", names...)
	}
}

// StubBinaries writes script as an executable for each name in dir and
// prepends dir to PATH for the duration of the test.
func StubBinaries(t testing.TB, dir, script string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	for _, name := range names {
		target := filepath.Join(dir, name)
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
