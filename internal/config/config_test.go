package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"lifesaver/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("LIFESAVER_UPLOAD_URL", "")
	t.Setenv("LIFESAVER_NTFY_TOPIC", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantOutput := filepath.Join(tempHome, ".local", "share", "lifesaver", "events")
	if cfg.Paths.OutputDir != wantOutput {
		t.Fatalf("unexpected output dir: got %q want %q", cfg.Paths.OutputDir, wantOutput)
	}
	if cfg.Capture.Rate != 20 || cfg.Capture.Width != 640 || cfg.Capture.Height != 480 {
		t.Fatalf("unexpected capture defaults: %+v", cfg.Capture)
	}
	if cfg.Recording.PreTriggerSeconds != 10 {
		t.Fatalf("expected 10s pre-roll, got %d", cfg.Recording.PreTriggerSeconds)
	}
	if cfg.Trigger.Confirmations != 2 || !cfg.Trigger.ActiveLow {
		t.Fatalf("unexpected trigger defaults: %+v", cfg.Trigger)
	}
	if cfg.Location.FixCount != 3 {
		t.Fatalf("expected 3 fixes, got %d", cfg.Location.FixCount)
	}
	if cfg.Handoff.Transport != "http" {
		t.Fatalf("expected http transport, got %q", cfg.Handoff.Transport)
	}
	if cfg.Notifications.NtfyTopic != "" {
		t.Fatalf("expected empty ntfy topic, got %q", cfg.Notifications.NtfyTopic)
	}
	if got := cfg.JournalPath(); got != filepath.Join(cfg.Paths.StateDir, "events.db") {
		t.Fatalf("unexpected journal path %q", got)
	}
	if got := cfg.GPIOValuePath(); got != "/sys/class/gpio/gpio17/value" {
		t.Fatalf("unexpected gpio path %q", got)
	}
}

func TestLoadCustomConfigOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("LIFESAVER_UPLOAD_URL", "")
	t.Setenv("LIFESAVER_NTFY_TOPIC", "")

	configPath := filepath.Join(tempHome, "config.toml")
	content := `[paths]
output_dir = "~/dashcam"

[capture]
device = "/dev/video2"
rate = 15
pixel_format = "GRAY"

[recording]
pre_trigger_seconds = 3
post_trigger_seconds = 2

[trigger]
value_path = "/tmp/gpio-value"
active_low = false

[handoff]
transport = "s3"
s3_bucket = "events-bucket"
s3_prefix = "/car/"

[logging]
format = "JSON"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if cfg.Paths.OutputDir != filepath.Join(tempHome, "dashcam") {
		t.Fatalf("unexpected output dir %q", cfg.Paths.OutputDir)
	}
	if cfg.Capture.Device != "/dev/video2" || cfg.Capture.Rate != 15 {
		t.Fatalf("unexpected capture %+v", cfg.Capture)
	}
	if cfg.Capture.PixelFormat != "gray" {
		t.Fatalf("expected lowercased pixel format, got %q", cfg.Capture.PixelFormat)
	}
	if cfg.Trigger.ActiveLow {
		t.Fatal("expected active_low override")
	}
	if cfg.GPIOValuePath() != "/tmp/gpio-value" {
		t.Fatalf("unexpected value path %q", cfg.GPIOValuePath())
	}
	if cfg.Handoff.S3Prefix != "car" {
		t.Fatalf("expected trimmed prefix, got %q", cfg.Handoff.S3Prefix)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json format, got %q", cfg.Logging.Format)
	}
	// Unset values keep defaults.
	if cfg.Recording.VideoName != "output_segment.mp4" {
		t.Fatalf("unexpected video name %q", cfg.Recording.VideoName)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LIFESAVER_UPLOAD_URL", "http://receiver.local:3000/upload")
	t.Setenv("LIFESAVER_NTFY_TOPIC", "https://ntfy.sh/car")
	t.Chdir(t.TempDir())

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Handoff.UploadURL != "http://receiver.local:3000/upload" {
		t.Fatalf("expected env upload url, got %q", cfg.Handoff.UploadURL)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.sh/car" {
		t.Fatalf("expected env ntfy topic, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero rate", func(c *config.Config) { c.Capture.Rate = 0 }, "capture.rate"},
		{"negative width", func(c *config.Config) { c.Capture.Width = -1 }, "capture.width"},
		{"unknown pixel format", func(c *config.Config) { c.Capture.PixelFormat = "weird" }, "pixel_format"},
		{"negative post", func(c *config.Config) { c.Recording.PostTriggerSeconds = -1 }, "post_trigger_seconds"},
		{"video name path", func(c *config.Config) { c.Recording.VideoName = "a/b.mp4" }, "video_name"},
		{"unknown transport", func(c *config.Config) { c.Handoff.Transport = "ftp" }, "handoff.transport"},
		{"missing url", func(c *config.Config) { c.Handoff.UploadURL = "" }, "upload_url"},
		{"relative url", func(c *config.Config) { c.Handoff.UploadURL = "upload" }, "absolute URL"},
		{"s3 without bucket", func(c *config.Config) { c.Handoff.Transport = "s3" }, "s3_bucket"},
		{"location without fixes", func(c *config.Config) { c.Location.FixCount = 0 }, "fix_count"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateAcceptsZeroPreRollAndNoneTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Recording.PreTriggerSeconds = 0
	cfg.Recording.PostTriggerSeconds = 0
	cfg.Handoff.Transport = "none"
	cfg.Handoff.UploadURL = ""
	cfg.Location.Enabled = false
	cfg.Location.FixCount = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestSampleConfigParses(t *testing.T) {
	var cfg config.Config
	if err := toml.Unmarshal([]byte(config.SampleConfig()), &cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	defaults := config.Default()
	if cfg.Capture != defaults.Capture {
		t.Fatalf("sample capture %+v differs from defaults %+v", cfg.Capture, defaults.Capture)
	}
	if cfg.Recording != defaults.Recording {
		t.Fatalf("sample recording %+v differs from defaults %+v", cfg.Recording, defaults.Recording)
	}
}

func TestCreateSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[capture]") {
		t.Fatal("expected sample content")
	}
	if err := config.CreateSample(path); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestEnsureDirectoriesCreatesPaths(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "events")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Archive.Enabled = true
	cfg.Archive.Dir = filepath.Join(base, "archive")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.LogDir, cfg.Paths.StateDir, cfg.Archive.Dir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}

func TestRuntimePathsLiveInStateDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = "/var/lib/lifesaver"
	for name, got := range map[string]string{
		"journal": cfg.JournalPath(),
		"lock":    cfg.LockPath(),
		"pid":     cfg.PIDPath(),
		"socket":  cfg.SocketPath(),
	} {
		if filepath.Dir(got) != cfg.Paths.StateDir {
			t.Errorf("%s path %q not under state dir", name, got)
		}
	}
	if cfg.GPIOValuePath() != "/sys/class/gpio/gpio17/value" {
		t.Errorf("unexpected gpio path %q", cfg.GPIOValuePath())
	}
}
