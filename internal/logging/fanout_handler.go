package logging

import (
	"context"
	"errors"
	"log/slog"
)

// teeHandler writes each record to every member whose level admits it. The
// recorder uses it to send one stream to the console and the daily JSON file.
type teeHandler []slog.Handler

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	members := make(teeHandler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			members = append(members, h)
		}
	}
	if len(members) == 0 {
		return NoopHandler{}
	}
	if len(members) == 1 {
		return members[0]
	}
	return members
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle gives every member its own copy of the record and joins their
// errors, so a full disk on the file handler does not silence the console.
func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, record.Level) {
			if err := h.Handle(ctx, record.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) derive(fn func(slog.Handler) slog.Handler) teeHandler {
	next := make(teeHandler, len(t))
	for i, h := range t {
		next[i] = fn(h)
	}
	return next
}

// TeeLogger returns a logger writing to base's handler and each extra handler.
func TeeLogger(base *slog.Logger, handlers ...slog.Handler) *slog.Logger {
	if base != nil {
		handlers = append([]slog.Handler{base.Handler()}, handlers...)
	}
	return slog.New(newFanoutHandler(handlers...))
}
