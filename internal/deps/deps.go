// Package deps reports on the external programs lifesaver shells out to.
package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// versionTimeout bounds each "<binary> -version" probe.
const versionTimeout = 3 * time.Second

// Requirement names an external binary and why it is needed.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionFlag, when set, is passed to the resolved binary and the first
	// line of its output is reported as the version.
	VersionFlag string
}

// Status reports whether a requirement resolved.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

// Check resolves every requirement on PATH and probes versions where asked.
func Check(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, check(ctx, req))
	}
	return results
}

func check(ctx context.Context, req Requirement) Status {
	status := Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(status.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}
	status.Path = path
	status.Available = true
	if req.VersionFlag != "" {
		status.Version = probeVersion(ctx, path, req.VersionFlag)
	}
	return status
}

// probeVersion returns the first output line of "path flag", or "" when the
// binary cannot be run.
func probeVersion(ctx context.Context, path, flag string) string {
	probeCtx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, path, flag).Output()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}

// Missing returns the required statuses that did not resolve.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}
