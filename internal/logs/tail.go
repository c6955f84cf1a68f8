package logs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lifesaver/internal/logging"
)

const pollInterval = 250 * time.Millisecond

// Entry is one decoded log line. Lines that are not JSON are kept as Msg
// with a zero Time.
type Entry struct {
	Time      time.Time `json:"ts"`
	Level     string    `json:"level"`
	Msg       string    `json:"msg"`
	Component string    `json:"component"`
	SessionID string    `json:"session_id"`
	EventType string    `json:"event_type"`
	Raw       string    `json:"-"`
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	SessionID string
	Component string
	MinLevel  string
}

func (f Filter) match(e Entry) bool {
	if f.SessionID != "" && !strings.HasPrefix(e.SessionID, f.SessionID) {
		return false
	}
	if f.Component != "" && !strings.EqualFold(e.Component, f.Component) {
		return false
	}
	if f.MinLevel != "" && logging.ParseLevel(e.Level) < logging.ParseLevel(f.MinLevel) {
		return false
	}
	return true
}

// TailOptions controls Tail. A negative Offset reads the last Limit entries.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Filter Filter
}

// TailResult carries matching entries and the offset to resume from.
type TailResult struct {
	Entries []Entry
	Offset  int64
}

// Tail reads entries from path. With Follow and a positive Wait it polls
// until at least one matching entry appears, Wait elapses, or ctx ends.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result TailResult
	if opts.Offset < 0 {
		result, err = readLast(path, opts.Limit, opts.Filter)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			offset = info.Size()
		}
		result, err = readFrom(path, offset, opts.Filter)
	}
	if err != nil || !opts.Follow || opts.Wait <= 0 || len(result.Entries) > 0 {
		return result, err
	}
	return waitForEntries(ctx, path, result.Offset, opts.Wait, opts.Filter)
}

func readLast(path string, limit int, filter Filter) (TailResult, error) {
	all, err := readFrom(path, 0, filter)
	if err != nil {
		return all, err
	}
	if limit > 0 && len(all.Entries) > limit {
		all.Entries = all.Entries[len(all.Entries)-limit:]
	}
	if limit <= 0 {
		all.Entries = nil
	}
	return all, nil
}

// readFrom decodes complete lines after offset. A trailing partial line is
// left for the next read.
func readFrom(path string, offset int64, filter Filter) (TailResult, error) {
	result := TailResult{Offset: offset}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return result, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return result, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return result, fmt.Errorf("read log file: %w", err)
		}
		result.Offset += int64(len(line))
		entry := Decode(strings.TrimRight(line, "\r\n"))
		if filter.match(entry) {
			result.Entries = append(result.Entries, entry)
		}
	}
}

func waitForEntries(ctx context.Context, path string, offset int64, wait time.Duration, filter Filter) (TailResult, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	result := TailResult{Offset: offset}
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-ticker.C:
		}
		next, err := readFrom(path, result.Offset, filter)
		if err != nil {
			return result, err
		}
		result = next
		if len(result.Entries) > 0 || time.Now().After(deadline) {
			return result, nil
		}
	}
}

// Decode parses one JSON log line.
func Decode(line string) Entry {
	entry := Entry{Raw: line}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return Entry{Raw: line, Msg: line, Level: "info"}
	}
	return entry
}

// Latest returns the newest daily log file in dir, or "" when none exist.
func Latest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, logging.LogFilePattern))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	// Daily names sort chronologically.
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}
