package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	c.normalizeRecording()
	c.normalizeEncoder()
	c.normalizeLocation()
	c.normalizeHandoff()
	c.normalizeNotifications()
	if err := c.normalizeArchive(); err != nil {
		return err
	}
	if err := c.normalizeReceiver(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCapture() {
	c.Capture.Device = strings.TrimSpace(c.Capture.Device)
	if value, ok := os.LookupEnv("LIFESAVER_CAPTURE_DEVICE"); ok && strings.TrimSpace(value) != "" {
		c.Capture.Device = strings.TrimSpace(value)
	}
	c.Capture.InputFormat = strings.ToLower(strings.TrimSpace(c.Capture.InputFormat))
	if c.Capture.InputFormat == "" {
		c.Capture.InputFormat = defaultCaptureInputFormat
	}
	c.Capture.PixelFormat = strings.ToLower(strings.TrimSpace(c.Capture.PixelFormat))
	if c.Capture.PixelFormat == "" {
		c.Capture.PixelFormat = defaultPixelFormat
	}
	c.Capture.Binary = strings.TrimSpace(c.Capture.Binary)
	if c.Capture.Binary == "" {
		c.Capture.Binary = defaultEncoderBinary
	}
}

func (c *Config) normalizeRecording() {
	c.Recording.VideoName = strings.TrimSpace(c.Recording.VideoName)
	if c.Recording.VideoName == "" {
		c.Recording.VideoName = defaultVideoName
	}
	c.Recording.LocationLogName = strings.TrimSpace(c.Recording.LocationLogName)
	if c.Recording.LocationLogName == "" {
		c.Recording.LocationLogName = defaultLocationLogName
	}
	if c.Trigger.Confirmations <= 0 {
		c.Trigger.Confirmations = defaultTriggerConfirmations
	}
	c.Trigger.ValuePath = strings.TrimSpace(c.Trigger.ValuePath)
}

func (c *Config) normalizeEncoder() {
	c.Encoder.Binary = strings.TrimSpace(c.Encoder.Binary)
	if c.Encoder.Binary == "" {
		c.Encoder.Binary = defaultEncoderBinary
	}
	c.Encoder.FFprobeBinary = strings.TrimSpace(c.Encoder.FFprobeBinary)
	if c.Encoder.FFprobeBinary == "" {
		c.Encoder.FFprobeBinary = defaultFFprobeBinary
	}
	c.Encoder.Codec = strings.TrimSpace(c.Encoder.Codec)
	if c.Encoder.Codec == "" {
		c.Encoder.Codec = defaultEncoderCodec
	}
	c.Encoder.Preset = strings.TrimSpace(c.Encoder.Preset)
	c.Encoder.Tune = strings.TrimSpace(c.Encoder.Tune)
}

func (c *Config) normalizeLocation() {
	c.Location.GPSDAddr = strings.TrimSpace(c.Location.GPSDAddr)
	if c.Location.GPSDAddr == "" {
		c.Location.GPSDAddr = defaultGPSDAddr
	}
	if c.Location.FixTimeoutSeconds <= 0 {
		c.Location.FixTimeoutSeconds = defaultFixTimeoutSeconds
	}
}

func (c *Config) normalizeHandoff() {
	c.Handoff.Transport = strings.ToLower(strings.TrimSpace(c.Handoff.Transport))
	if c.Handoff.Transport == "" {
		c.Handoff.Transport = defaultHandoffTransport
	}
	if value, ok := os.LookupEnv("LIFESAVER_UPLOAD_URL"); ok && strings.TrimSpace(value) != "" {
		c.Handoff.UploadURL = strings.TrimSpace(value)
	}
	c.Handoff.UploadURL = strings.TrimSpace(c.Handoff.UploadURL)
	if c.Handoff.RequestTimeout <= 0 {
		c.Handoff.RequestTimeout = defaultHandoffRequestTimeout
	}
	c.Handoff.S3Bucket = strings.TrimSpace(c.Handoff.S3Bucket)
	c.Handoff.S3Prefix = strings.Trim(strings.TrimSpace(c.Handoff.S3Prefix), "/")
	c.Handoff.S3Region = strings.TrimSpace(c.Handoff.S3Region)
	if c.Handoff.S3Region == "" {
		if value, ok := os.LookupEnv("AWS_REGION"); ok {
			c.Handoff.S3Region = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("LIFESAVER_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeArchive() error {
	var err error
	if strings.TrimSpace(c.Archive.Dir) == "" {
		c.Archive.Dir = defaultArchiveDir
	}
	if c.Archive.Dir, err = expandPath(c.Archive.Dir); err != nil {
		return fmt.Errorf("archive.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeReceiver() error {
	var err error
	c.Receiver.Bind = strings.TrimSpace(c.Receiver.Bind)
	if c.Receiver.Bind == "" {
		c.Receiver.Bind = defaultReceiverBind
	}
	if strings.TrimSpace(c.Receiver.UploadsDir) == "" {
		c.Receiver.UploadsDir = defaultUploadsDir
	}
	if c.Receiver.UploadsDir, err = expandPath(c.Receiver.UploadsDir); err != nil {
		return fmt.Errorf("receiver.uploads_dir: %w", err)
	}
	if c.Receiver.MaxUploadMB <= 0 {
		c.Receiver.MaxUploadMB = defaultReceiverMaxUploadMB
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "":
		c.Logging.Format = defaultLogFormat
	case "console", "json", "auto":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
