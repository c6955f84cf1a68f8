package location

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"lifesaver/internal/fileutil"
)

// Fix is one position report.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
}

// Acquirer obtains position fixes.
type Acquirer interface {
	// AcquireFixes returns up to count fixes in acquisition order. When fewer
	// than count are available before the acquirer gives up, the fixes already
	// gathered are returned along with an error.
	AcquireFixes(ctx context.Context, count int) ([]Fix, error)
}

// Disabled is an Acquirer that never produces fixes.
type Disabled struct{}

func (Disabled) AcquireFixes(context.Context, int) ([]Fix, error) {
	return nil, nil
}

// Static returns a fixed list of fixes. It backs synthetic runs and tests.
type Static []Fix

func (s Static) AcquireFixes(_ context.Context, count int) ([]Fix, error) {
	if count > len(s) {
		count = len(s)
	}
	return append([]Fix(nil), s[:count]...), nil
}

// WriteLog writes fixes to path as an indented JSON array. A nil slice is
// written as an empty array so the log always parses.
func WriteLog(path string, fixes []Fix) error {
	if fixes == nil {
		fixes = []Fix{}
	}
	data, err := json.MarshalIndent(fixes, "", "    ")
	if err != nil {
		return fmt.Errorf("encode location log: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write location log: %w", err)
	}
	return nil
}

// ReadLog parses a location log written by WriteLog.
func ReadLog(path string) ([]Fix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fixes []Fix
	if err := json.Unmarshal(data, &fixes); err != nil {
		return nil, fmt.Errorf("parse location log: %w", err)
	}
	return fixes, nil
}
