package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"lifesaver/internal/journal"
	"lifesaver/internal/logging"
	"lifesaver/internal/logs"
	"lifesaver/internal/recorder"
)

// ServiceName is the JSON-RPC service the server registers.
const ServiceName = "Lifesaver"

const defaultEventLimit = 20

// Recorder is the recorder surface the server exposes. *recorder.Recorder
// implements it.
type Recorder interface {
	Stats() recorder.Stats
	TriggerNow()
}

// Journal reads journaled events. *journal.Store implements it.
type Journal interface {
	List(ctx context.Context, limit int) ([]journal.Event, error)
	Counts(ctx context.Context) (map[string]int, error)
	Path() string
}

// Notifier sends test notifications.
type Notifier interface {
	TestNotification(ctx context.Context) error
}

// Options wires the server to the running recorder.
type Options struct {
	Recorder Recorder
	Journal  Journal
	Notifier Notifier
	// LogDir holds the daily log files served by LogTail.
	LogDir    string
	Device    string
	StartedAt time.Time
	Logger    *slog.Logger
}

// Server exposes recorder control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, opts Options) (*Server, error) {
	if opts.Recorder == nil {
		return nil, errors.New("ipc server requires recorder")
	}
	logger := logging.NewComponentLogger(opts.Logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{opts: opts, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "status and trigger commands may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the recorder if needed"))
				continue
			}
			if !s.track(conn) {
				_ = conn.Close()
				return
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.untrack(c)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// track registers an accepted connection. It reports false once Close has
// started so late accepts are dropped.
func (s *Server) track(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conns != nil {
		delete(s.conns, conn)
	}
}

// Close stops the server, hangs up on connected clients and removes the
// socket file.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
	s.connMu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may confuse the next start"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	opts   Options
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	stats := s.opts.Recorder.Stats()
	*resp = StatusResponse{
		PID:               os.Getpid(),
		StartedAt:         s.opts.StartedAt,
		Device:            s.opts.Device,
		FramesCaptured:    stats.FramesCaptured,
		SessionsStarted:   stats.SessionsStarted,
		SessionsSucceeded: stats.SessionsSucceeded,
		SessionsFailed:    stats.SessionsFailed,
		TriggersIgnored:   stats.TriggersIgnored,
		Overruns:          stats.Overruns,
		BufferedFrames:    stats.BufferedFrames,
		BufferCapacity:    stats.BufferCapacity,
		Active:            FromSession(stats.Active),
	}
	if s.opts.Journal != nil {
		resp.JournalPath = s.opts.Journal.Path()
		counts, err := s.opts.Journal.Counts(s.ctx)
		if err != nil {
			return fmt.Errorf("event counts: %w", err)
		}
		resp.EventCounts = counts
	}
	return nil
}

func (s *service) Trigger(_ TriggerRequest, resp *TriggerResponse) error {
	if active := s.opts.Recorder.Stats().Active; active != nil {
		resp.Busy = true
		resp.Message = fmt.Sprintf("session %s is %s; trigger will be ignored", active.ID, active.Status)
	} else {
		resp.Message = "trigger requested"
	}
	s.opts.Recorder.TriggerNow()
	resp.Accepted = true
	s.logger.Info("manual trigger requested",
		logging.String(logging.FieldEventType, "manual_trigger"),
		logging.Bool("busy", resp.Busy))
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	if s.opts.Journal == nil {
		return errors.New("event journal not available")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultEventLimit
	}
	events, err := s.opts.Journal.List(s.ctx, limit)
	if err != nil {
		return err
	}
	resp.Events = make([]EventView, 0, len(events))
	for _, e := range events {
		resp.Events = append(resp.Events, FromEvent(e))
	}
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	path, err := logs.Latest(s.opts.LogDir)
	if err != nil || path == "" {
		return err
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, path, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Filter: logs.Filter{SessionID: req.SessionID, Component: req.Component, MinLevel: req.MinLevel},
	})
	resp.Offset = result.Offset
	for _, e := range result.Entries {
		resp.Lines = append(resp.Lines, e.Raw)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	if s.opts.Notifier == nil {
		resp.Message = "notifications not configured"
		return nil
	}
	if err := s.opts.Notifier.TestNotification(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Sent = true
	resp.Message = "test notification sent"
	return nil
}
