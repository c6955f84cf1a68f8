package textutil

import (
	"strings"
	"sync"
)

// Tail is an io.Writer that retains only the last Limit bytes written. It is
// used to keep the end of a subprocess's stderr for error messages without
// unbounded growth. Safe for concurrent use.
type Tail struct {
	Limit int

	mu  sync.Mutex
	buf []byte
}

// NewTail returns a Tail keeping at most limit bytes.
func NewTail(limit int) *Tail {
	return &Tail{Limit: limit}
}

func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	limit := t.Limit
	if limit <= 0 {
		limit = 4096
	}
	if len(p) >= limit {
		t.buf = append(t.buf[:0], p[len(p)-limit:]...)
		return len(p), nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

// String returns the retained text with surrounding whitespace trimmed.
func (t *Tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}

// LastLine returns the final non-empty line of retained text.
func (t *Tail) LastLine() string {
	text := t.String()
	if idx := strings.LastIndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[idx+1:])
	}
	return text
}
