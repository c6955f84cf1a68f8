package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler for nil handlers")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected single handler returned unwrapped")
	}
}

func TestFanoutHandlerRespectsPerHandlerLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoHandler := slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(newFanoutHandler(infoHandler, debugHandler)).With("component", "test")
	logger.Debug("only debug")
	logger.Info("both")

	if strings.Contains(infoBuf.String(), "only debug") {
		t.Fatal("info handler received debug record")
	}
	if !strings.Contains(debugBuf.String(), "only debug") {
		t.Fatal("debug handler missed debug record")
	}
	for _, out := range []string{infoBuf.String(), debugBuf.String()} {
		if !strings.Contains(out, "both") || !strings.Contains(out, "component=test") {
			t.Fatalf("expected shared record with attrs, got %q", out)
		}
	}
	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout enabled when any handler is")
	}
}

func TestTeeLoggerNilBase(t *testing.T) {
	var buf bytes.Buffer
	logger := TeeLogger(nil, slog.NewTextHandler(&buf, nil))
	logger.Info("tee")
	if !strings.Contains(buf.String(), "tee") {
		t.Fatalf("expected tee output, got %q", buf.String())
	}
}
