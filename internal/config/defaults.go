package config

const (
	defaultConfigPath            = "~/.config/lifesaver/config.toml"
	defaultOutputDir             = "~/.local/share/lifesaver/events"
	defaultLogDir                = "~/.local/share/lifesaver/logs"
	defaultStateDir              = "~/.local/share/lifesaver/state"
	defaultArchiveDir            = "~/.local/share/lifesaver/archive"
	defaultUploadsDir            = "~/.local/share/lifesaver/uploads"
	defaultCaptureDevice         = "/dev/video0"
	defaultCaptureInputFormat    = "v4l2"
	defaultCaptureWidth          = 640
	defaultCaptureHeight         = 480
	defaultPixelFormat           = "bgr24"
	defaultCaptureRate           = 20
	defaultPreTriggerSeconds     = 10
	defaultPostTriggerSeconds    = 5
	defaultVideoName             = "output_segment.mp4"
	defaultLocationLogName       = "gps_data.json"
	defaultGPIOPin               = 17
	defaultTriggerConfirmations  = 2
	defaultEncoderBinary         = "ffmpeg"
	defaultFFprobeBinary         = "ffprobe"
	defaultEncoderCodec          = "libx264"
	defaultEncoderPreset         = "ultrafast"
	defaultEncoderTune           = "zerolatency"
	defaultGPSDAddr              = "127.0.0.1:2947"
	defaultFixCount              = 3
	defaultFixTimeoutSeconds     = 5
	defaultHandoffTransport      = "http"
	defaultUploadURL             = "http://127.0.0.1:3000/upload"
	defaultHandoffRequestTimeout = 120
	defaultS3Prefix              = "events"
	defaultNotifyRequestTimeout  = 10
	defaultReceiverBind          = "0.0.0.0:3000"
	defaultReceiverMaxUploadMB   = 100
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			StateDir:  defaultStateDir,
		},
		Capture: Capture{
			Device:      defaultCaptureDevice,
			InputFormat: defaultCaptureInputFormat,
			Width:       defaultCaptureWidth,
			Height:      defaultCaptureHeight,
			PixelFormat: defaultPixelFormat,
			Rate:        defaultCaptureRate,
			Binary:      defaultEncoderBinary,
		},
		Recording: Recording{
			PreTriggerSeconds:  defaultPreTriggerSeconds,
			PostTriggerSeconds: defaultPostTriggerSeconds,
			VideoName:          defaultVideoName,
			LocationLogName:    defaultLocationLogName,
		},
		Trigger: Trigger{
			GPIOPin:       defaultGPIOPin,
			ActiveLow:     true,
			Confirmations: defaultTriggerConfirmations,
		},
		Encoder: Encoder{
			Binary:        defaultEncoderBinary,
			Codec:         defaultEncoderCodec,
			Preset:        defaultEncoderPreset,
			Tune:          defaultEncoderTune,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Location: Location{
			Enabled:           true,
			GPSDAddr:          defaultGPSDAddr,
			FixCount:          defaultFixCount,
			FixTimeoutSeconds: defaultFixTimeoutSeconds,
		},
		Handoff: Handoff{
			Transport:      defaultHandoffTransport,
			UploadURL:      defaultUploadURL,
			RequestTimeout: defaultHandoffRequestTimeout,
			S3Prefix:       defaultS3Prefix,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			EventRecorded:  true,
			UploadFailed:   true,
			Errors:         true,
		},
		Archive: Archive{
			Dir: defaultArchiveDir,
		},
		Receiver: Receiver{
			Bind:        defaultReceiverBind,
			UploadsDir:  defaultUploadsDir,
			MaxUploadMB: defaultReceiverMaxUploadMB,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
