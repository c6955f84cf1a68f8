package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

var commandContext = exec.CommandContext

// Result is the decoded ffprobe report for one file.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	PixFmt     string `json:"pix_fmt"`
	FrameRate  string `json:"r_frame_rate"`
	FrameCount string `json:"nb_frames"`
	Duration   string `json:"duration"`
}

// Format is the container-level section of the report.
type Format struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// Inspect executes binary (default "ffprobe") against path.
func Inspect(ctx context.Context, binary, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := commandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path) //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Video returns the first video stream.
func (r Result) Video() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// VideoStreamCount returns the number of video streams.
func (r Result) VideoStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration, or 0 when unknown.
func (r Result) DurationSeconds() float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(r.Format.Duration), 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// SizeBytes returns the container size, or 0 when unknown.
func (r Result) SizeBytes() int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(r.Format.Size), 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// Frames returns the stream's frame count, or 0 when the container does not
// record one.
func (s Stream) Frames() int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(s.FrameCount), 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// FPS evaluates the rational r_frame_rate ("20/1").
func (s Stream) FPS() float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s.FrameRate), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
