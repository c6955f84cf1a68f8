package location

import (
	"bufio"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lifesaver/internal/logging"
	"lifesaver/internal/services"
)

// fakeGPSD accepts one client, waits for the WATCH command, then writes lines.
func fakeGPSD(t *testing.T, lines []string, hold time.Duration) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		cmd, _ := bufio.NewReader(conn).ReadString('\n')
		if !strings.HasPrefix(cmd, "?WATCH=") {
			return
		}
		for _, line := range lines {
			if _, err := conn.Write([]byte(line + "\n")); err != nil {
				return
			}
		}
		time.Sleep(hold)
	}()
	return ln.Addr().String()
}

func TestGPSDCollectsTPVFixes(t *testing.T) {
	addr := fakeGPSD(t, []string{
		`{"class":"VERSION","release":"3.25"}`,
		`{"class":"TPV","mode":1}`,
		`{"class":"TPV","mode":3,"time":"2026-10-19T08:00:01.000Z","lat":47.61,"lon":-122.33,"alt":56.2}`,
		`{"class":"SKY","satellites":[]}`,
		`not json`,
		`{"class":"TPV","mode":2,"time":"2026-10-19T08:00:02.000Z","lat":47.62,"lon":-122.34}`,
		`{"class":"TPV","mode":2,"lat":47.63,"lon":-122.35}`,
	}, time.Second)

	g := NewGPSD(addr, 2*time.Second, logging.NewNop())
	fixes, err := g.AcquireFixes(context.Background(), 3)
	if err != nil {
		t.Fatalf("AcquireFixes: %v", err)
	}
	if len(fixes) != 3 {
		t.Fatalf("expected 3 fixes, got %d", len(fixes))
	}
	if fixes[0].Latitude != 47.61 || fixes[0].Altitude == nil || *fixes[0].Altitude != 56.2 {
		t.Fatalf("unexpected first fix %+v", fixes[0])
	}
	want := time.Date(2026, 10, 19, 8, 0, 2, 0, time.UTC)
	if !fixes[1].Timestamp.Equal(want) {
		t.Fatalf("expected gpsd timestamp, got %v", fixes[1].Timestamp)
	}
	if fixes[2].Timestamp.IsZero() {
		t.Fatal("expected receipt time for fix without gpsd time")
	}
}

func TestGPSDReturnsPartialFixesOnTimeout(t *testing.T) {
	addr := fakeGPSD(t, []string{
		`{"class":"TPV","mode":3,"lat":1.5,"lon":2.5}`,
	}, 2*time.Second)

	g := NewGPSD(addr, 150*time.Millisecond, nil)
	fixes, err := g.AcquireFixes(context.Background(), 3)
	if !errors.Is(err, services.ErrLocation) {
		t.Fatalf("expected ErrLocation, got %v", err)
	}
	if len(fixes) != 1 || fixes[0].Latitude != 1.5 {
		t.Fatalf("expected the single fix kept, got %+v", fixes)
	}
}

func TestGPSDConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	fixes, err := NewGPSD(addr, 200*time.Millisecond, nil).AcquireFixes(context.Background(), 3)
	if !errors.Is(err, services.ErrLocation) || len(fixes) != 0 {
		t.Fatalf("expected connect failure, got %v %v", fixes, err)
	}
}

func TestGPSDHonoursCancellation(t *testing.T) {
	addr := fakeGPSD(t, nil, 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := NewGPSD(addr, 5*time.Second, nil).AcquireFixes(ctx, 3)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, services.ErrLocation) {
		t.Fatalf("expected cancellation tagged as location error, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("cancellation did not interrupt the read")
	}
}

func TestWriteLogRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gps_data.json")
	stamp := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	if err := WriteLog(path, []Fix{{Latitude: 1, Longitude: 2, Timestamp: stamp}}); err != nil {
		t.Fatalf("WriteLog: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	for _, want := range []string{`"latitude": 1`, `"longitude": 2`, `"timestamp": "2026-10-19T08:00:00Z"`, "\n    {"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %s", want, text)
		}
	}
	if strings.Contains(text, "altitude") {
		t.Fatalf("expected altitude omitted, got %s", text)
	}
	fixes, err := ReadLog(path)
	if err != nil || len(fixes) != 1 || !fixes[0].Timestamp.Equal(stamp) {
		t.Fatalf("unexpected round trip %+v %v", fixes, err)
	}
}

func TestWriteLogEmptyIsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gps_data.json")
	if err := WriteLog(path, nil); err != nil {
		t.Fatalf("WriteLog: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("expected empty array, got %q", data)
	}
}

func TestStaticAcquirer(t *testing.T) {
	fixes, err := Static{{Latitude: 1}, {Latitude: 2}}.AcquireFixes(context.Background(), 3)
	if err != nil || len(fixes) != 2 {
		t.Fatalf("unexpected static fixes %v %v", fixes, err)
	}
}
