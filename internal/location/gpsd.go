package location

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"lifesaver/internal/logging"
	"lifesaver/internal/services"
)

const watchCommand = `?WATCH={"enable":true,"json":true};` + "\n"

// GPSD collects fixes from a gpsd daemon.
type GPSD struct {
	Addr       string
	FixTimeout time.Duration
	Logger     *slog.Logger

	dialer net.Dialer
	now    func() time.Time
}

// NewGPSD returns an acquirer for the gpsd instance at addr.
func NewGPSD(addr string, fixTimeout time.Duration, logger *slog.Logger) *GPSD {
	return &GPSD{
		Addr:       addr,
		FixTimeout: fixTimeout,
		Logger:     logging.NewComponentLogger(logger, "location"),
		now:        time.Now,
	}
}

type report struct {
	Class string   `json:"class"`
	Mode  int      `json:"mode"`
	Time  string   `json:"time"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Alt   *float64 `json:"alt"`
	Speed *float64 `json:"speed"`
}

// AcquireFixes connects to gpsd, enables watch mode, and returns the first
// count TPV reports that carry a position.
func (g *GPSD) AcquireFixes(ctx context.Context, count int) ([]Fix, error) {
	if count <= 0 {
		return nil, nil
	}
	timeout := g.FixTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	now := g.now
	if now == nil {
		now = time.Now
	}
	logger := g.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	conn, err := g.dialer.DialContext(dialCtx, "tcp", g.Addr)
	cancel()
	if err != nil {
		return nil, services.Wrap(services.ErrLocation, "location", "connect", g.Addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write([]byte(watchCommand)); err != nil {
		return nil, services.Wrap(services.ErrLocation, "location", "watch", g.Addr, err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	fixes := make([]Fix, 0, count)
	for len(fixes) < count {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return fixes, services.Wrap(services.ErrLocation, "location", "read", "set deadline", err)
		}
		fix, ok, err := nextFix(scanner, now)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return fixes, services.Wrap(services.ErrLocation, "location", "read",
				fmt.Sprintf("%d of %d fixes", len(fixes), count), err)
		}
		if !ok {
			continue
		}
		fixes = append(fixes, fix)
		logger.Debug("gps fix",
			logging.String(logging.FieldEventType, "gps_fix"),
			slog.Float64("latitude", fix.Latitude),
			slog.Float64("longitude", fix.Longitude),
		)
	}
	return fixes, nil
}

var errStreamClosed = errors.New("gpsd closed the connection")

// nextFix reads one line and reports whether it was a usable TPV fix.
func nextFix(scanner *bufio.Scanner, now func() time.Time) (Fix, bool, error) {
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return Fix{}, false, err
		}
		return Fix{}, false, errStreamClosed
	}
	var r report
	if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
		return Fix{}, false, nil
	}
	if r.Class != "TPV" || r.Lat == nil || r.Lon == nil || r.Mode == 1 {
		return Fix{}, false, nil
	}
	stamp := now()
	if r.Time != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, r.Time); err == nil {
			stamp = parsed
		}
	}
	return Fix{
		Latitude:  *r.Lat,
		Longitude: *r.Lon,
		Timestamp: stamp,
		Altitude:  r.Alt,
		Speed:     r.Speed,
	}, true, nil
}
