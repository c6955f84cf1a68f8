package deps

import (
	"context"
	"strings"
)

// FFmpegRequirements lists the ffmpeg tools used for capture, encoding and
// output verification. ffprobe is optional unless verify is set.
func FFmpegRequirements(captureBinary, encoderBinary, ffprobeBinary string, verify bool) []Requirement {
	reqs := []Requirement{{
		Name:        "FFmpeg (capture)",
		Command:     orDefault(captureBinary, "ffmpeg"),
		Description: "Reads raw frames from the camera",
		VersionFlag: "-version",
	}}
	if enc := orDefault(encoderBinary, "ffmpeg"); enc != reqs[0].Command {
		reqs = append(reqs, Requirement{
			Name:        "FFmpeg (encoder)",
			Command:     enc,
			Description: "Encodes event videos",
			VersionFlag: "-version",
		})
	} else {
		reqs[0].Name = "FFmpeg"
		reqs[0].Description = "Reads camera frames and encodes event videos"
	}
	reqs = append(reqs, Requirement{
		Name:        "FFprobe",
		Command:     orDefault(ffprobeBinary, "ffprobe"),
		Description: "Verifies finished event videos",
		Optional:    !verify,
		VersionFlag: "-version",
	})
	return reqs
}

// FFmpegVersion returns the banner line of binary, e.g.
// "ffmpeg version 6.1.1 Copyright ...", or "" when it cannot be run.
func FFmpegVersion(ctx context.Context, binary string) string {
	status := check(ctx, Requirement{Command: orDefault(binary, "ffmpeg"), VersionFlag: "-version"})
	return status.Version
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
