package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedPixelFormats = map[string]struct{}{
	"bgr24":   {},
	"rgb24":   {},
	"gray":    {},
	"bgra":    {},
	"rgba":    {},
	"yuyv422": {},
	"yuv420p": {},
	"nv12":    {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateRecording(); err != nil {
		return err
	}
	if err := c.validateTrigger(); err != nil {
		return err
	}
	if err := c.validateLocation(); err != nil {
		return err
	}
	if err := c.validateHandoff(); err != nil {
		return err
	}
	if err := c.validateReceiver(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCapture() error {
	if strings.TrimSpace(c.Capture.Device) == "" {
		return errors.New("capture.device must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"capture.width":  c.Capture.Width,
		"capture.height": c.Capture.Height,
		"capture.rate":   c.Capture.Rate,
	}); err != nil {
		return err
	}
	if _, ok := supportedPixelFormats[c.Capture.PixelFormat]; !ok {
		return fmt.Errorf("capture.pixel_format %q is not supported", c.Capture.PixelFormat)
	}
	return nil
}

func (c *Config) validateRecording() error {
	if c.Recording.PreTriggerSeconds < 0 {
		return errors.New("recording.pre_trigger_seconds must be >= 0")
	}
	if c.Recording.PostTriggerSeconds < 0 {
		return errors.New("recording.post_trigger_seconds must be >= 0")
	}
	if c.Recording.RetentionDays < 0 {
		return errors.New("recording.retention_days must be >= 0")
	}
	if strings.ContainsAny(c.Recording.VideoName, `/\`) {
		return errors.New("recording.video_name must be a file name, not a path")
	}
	if strings.ContainsAny(c.Recording.LocationLogName, `/\`) {
		return errors.New("recording.location_log_name must be a file name, not a path")
	}
	if c.Recording.VideoName == c.Recording.LocationLogName {
		return errors.New("recording.video_name and recording.location_log_name must differ")
	}
	return nil
}

func (c *Config) validateTrigger() error {
	if c.Trigger.ValuePath == "" && c.Trigger.GPIOPin < 0 {
		return errors.New("trigger.gpio_pin must be >= 0 when trigger.value_path is empty")
	}
	if c.Trigger.Confirmations > 10 {
		return errors.New("trigger.confirmations must be <= 10")
	}
	return nil
}

func (c *Config) validateLocation() error {
	if !c.Location.Enabled {
		return nil
	}
	if c.Location.FixCount <= 0 {
		return errors.New("location.fix_count must be positive when location.enabled is true")
	}
	return nil
}

func (c *Config) validateHandoff() error {
	switch c.Handoff.Transport {
	case "none":
		return nil
	case "http":
		if c.Handoff.UploadURL == "" {
			return errors.New("handoff.upload_url must be set when handoff.transport is http (or set LIFESAVER_UPLOAD_URL)")
		}
		parsed, err := url.Parse(c.Handoff.UploadURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("handoff.upload_url %q is not an absolute URL", c.Handoff.UploadURL)
		}
		return nil
	case "s3":
		if c.Handoff.S3Bucket == "" {
			return errors.New("handoff.s3_bucket must be set when handoff.transport is s3")
		}
		return nil
	default:
		return fmt.Errorf("handoff.transport %q is not supported (use http, s3, or none)", c.Handoff.Transport)
	}
}

func (c *Config) validateReceiver() error {
	if c.Receiver.MaxUploadMB <= 0 {
		return errors.New("receiver.max_upload_mb must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
