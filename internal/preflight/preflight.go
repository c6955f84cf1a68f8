package preflight

import (
	"context"
	"fmt"
	"strings"

	"lifesaver/internal/config"
	"lifesaver/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Event directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckCaptureDevice(cfg.Capture.Device),
		CheckGPIO(cfg.GPIOValuePath()),
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, fromDependency(status))
	}

	if cfg.Location.Enabled {
		results = append(results, CheckGPSD(ctx, cfg.Location.GPSDAddr))
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Handoff.Transport)) {
	case "http":
		results = append(results, CheckUploadEndpoint(ctx, cfg.Handoff.UploadURL))
	case "s3":
		results = append(results, CheckS3Config(cfg.Handoff))
	}

	if cfg.Archive.Enabled {
		results = append(results, CheckDirectoryAccess("Archive directory", cfg.Archive.Dir))
	}
	return results
}

// CheckSystemDeps evaluates the external binaries the recorder runs.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.Check(ctx, deps.FFmpegRequirements(
		cfg.Capture.Binary,
		cfg.Encoder.Binary,
		cfg.Encoder.FFprobeBinary,
		cfg.Encoder.Verify,
	))
}

func fromDependency(s deps.Status) Result {
	if s.Available {
		detail := s.Path
		if s.Version != "" {
			detail = fmt.Sprintf("%s (%s)", s.Path, s.Version)
		}
		return Result{Name: s.Name, Passed: true, Detail: detail}
	}
	if s.Optional {
		return Result{Name: s.Name, Passed: true, Detail: s.Detail + " (optional)"}
	}
	return Result{Name: s.Name, Detail: s.Detail}
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
