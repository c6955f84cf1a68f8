package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	StateDir  string `toml:"state_dir"`
}

// Capture describes the camera device and the raw frame format read from it.
type Capture struct {
	Device      string `toml:"device"`
	InputFormat string `toml:"input_format"`
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	PixelFormat string `toml:"pixel_format"`
	Rate        int    `toml:"rate"`
	Binary      string `toml:"ffmpeg_binary"`
}

// Recording contains the pre-roll and post-trigger window lengths.
type Recording struct {
	PreTriggerSeconds  int    `toml:"pre_trigger_seconds"`
	PostTriggerSeconds int    `toml:"post_trigger_seconds"`
	VideoName          string `toml:"video_name"`
	LocationLogName    string `toml:"location_log_name"`
	// RetentionDays prunes event directories older than this many days.
	// Zero keeps them forever.
	RetentionDays int `toml:"retention_days"`
}

// Trigger contains the shock sensor input configuration.
type Trigger struct {
	GPIOPin       int    `toml:"gpio_pin"`
	ValuePath     string `toml:"value_path"`
	ActiveLow     bool   `toml:"active_low"`
	Confirmations int    `toml:"confirmations"`
}

// Encoder contains settings for the streaming ffmpeg encode.
type Encoder struct {
	Binary        string `toml:"binary"`
	Codec         string `toml:"codec"`
	Preset        string `toml:"preset"`
	Tune          string `toml:"tune"`
	Verify        bool   `toml:"verify"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Location contains gpsd settings used to build the per-event location log.
type Location struct {
	Enabled           bool   `toml:"enabled"`
	GPSDAddr          string `toml:"gpsd_addr"`
	FixCount          int    `toml:"fix_count"`
	FixTimeoutSeconds int    `toml:"fix_timeout_seconds"`
}

// Handoff selects and configures the transport used to ship finished events.
type Handoff struct {
	Transport      string `toml:"transport"`
	UploadURL      string `toml:"upload_url"`
	RequestTimeout int    `toml:"request_timeout"`
	S3Bucket       string `toml:"s3_bucket"`
	S3Prefix       string `toml:"s3_prefix"`
	S3Region       string `toml:"s3_region"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	EventRecorded  bool   `toml:"event_recorded"`
	UploadFailed   bool   `toml:"upload_failed"`
	Errors         bool   `toml:"errors"`
}

// Archive contains settings for the optional compact transcode of finished events.
type Archive struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// Receiver configures the upload receiving server.
type Receiver struct {
	Bind        string `toml:"bind"`
	UploadsDir  string `toml:"uploads_dir"`
	MaxUploadMB int    `toml:"max_upload_mb"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for lifesaver.
//
// Configuration sections by subsystem:
//   - Paths: event output, logs and runtime state
//   - Capture: camera device and raw frame format
//   - Recording: pre-roll and post-trigger windows
//   - Trigger: GPIO shock sensor input
//   - Encoder: ffmpeg streaming encode
//   - Location: gpsd fixes written next to each event
//   - Handoff: transport for finished events (http, s3, none)
//   - Notifications: ntfy push notification settings
//   - Archive: optional compact transcode of finished events
//   - Receiver: the upload receiving server
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Capture       Capture       `toml:"capture"`
	Recording     Recording     `toml:"recording"`
	Trigger       Trigger       `toml:"trigger"`
	Encoder       Encoder       `toml:"encoder"`
	Location      Location      `toml:"location"`
	Handoff       Handoff       `toml:"handoff"`
	Notifications Notifications `toml:"notifications"`
	Archive       Archive       `toml:"archive"`
	Receiver      Receiver      `toml:"receiver"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lifesaver.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for recorder operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir, c.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Archive.Enabled && strings.TrimSpace(c.Archive.Dir) != "" {
		if err := os.MkdirAll(c.Archive.Dir, 0o755); err != nil {
			return fmt.Errorf("create archive directory %q: %w", c.Archive.Dir, err)
		}
	}
	return nil
}

// JournalPath returns the location of the SQLite event journal.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Paths.StateDir, "events.db")
}

// LockPath returns the single-instance lock file used by the recorder.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "lifesaver.lock")
}

// PIDPath returns the pid file written while the recorder runs.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "lifesaver.pid")
}

// SocketPath returns the IPC socket served while the recorder runs.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "lifesaver.sock")
}

// GPIOValuePath returns the sysfs value file for the trigger input.
func (c *Config) GPIOValuePath() string {
	if path := strings.TrimSpace(c.Trigger.ValuePath); path != "" {
		return path
	}
	return fmt.Sprintf("/sys/class/gpio/gpio%d/value", c.Trigger.GPIOPin)
}

// SampleConfig returns the embedded sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path, refusing to overwrite.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() (string, error) {
	var b strings.Builder
	encoder := toml.NewEncoder(&b)
	encoder.SetIndentTables(true)
	if err := encoder.Encode(c); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return b.String(), nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
