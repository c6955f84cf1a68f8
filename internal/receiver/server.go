package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"lifesaver/internal/config"
	"lifesaver/internal/logging"
)

// Server receives event uploads.
type Server struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time

	// nameMu serializes name allocation so concurrent uploads of the same
	// base name in the same second get distinct files.
	nameMu sync.Mutex

	server   *http.Server
	listener net.Listener
}

// New builds a server storing uploads in cfg.UploadsDir.
func New(cfg config.Receiver, logger *slog.Logger) (*Server, error) {
	dir := strings.TrimSpace(cfg.UploadsDir)
	if dir == "" {
		return nil, errors.New("receiver: uploads directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("receiver: create uploads directory: %w", err)
	}
	maxMB := cfg.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 100
	}
	s := &Server{
		dir:      dir,
		maxBytes: int64(maxMB) * 1024 * 1024,
		logger:   logging.NewComponentLogger(logger, "receiver"),
		now:      time.Now,
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /files", s.handleList)
	mux.HandleFunc("GET /files/{name}", s.handleFile)
	return mux
}

// ListenAndServe serves on bind until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("receiver listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.listener = listener
	s.logger.Info("receiver listening",
		logging.String(logging.FieldEventType, "receiver_started"),
		logging.String("address", listener.Addr().String()),
		logging.String("uploads_dir", s.dir),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		<-errCh
		s.logger.Info("receiver stopped", logging.String(logging.FieldEventType, "receiver_stopped"))
		return nil
	}
}

// Addr returns the listening address once Serve has started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
