package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"lifesaver/internal/config"
	"lifesaver/internal/recorder"
	"lifesaver/internal/services"
)

// Upload outcomes stored in upload_status.
const (
	UploadPending = "pending"
	UploadDone    = "uploaded"
	UploadFailed  = "failed"
	UploadSkipped = "skipped"
)

// Event is one journaled recording session.
type Event struct {
	CorrelationID   string
	SessionID       string
	Status          recorder.Status
	Failed          bool
	ErrorKind       string
	ErrorMessage    string
	Dir             string
	VideoPath       string
	IncompletePath  string
	PreRollFrames   int
	LiveFrames      int
	FramesWritten   int64
	Fixes           int
	TriggeredAt     time.Time
	ClosedAt        *time.Time
	UploadStatus    string
	UploadTransport string
	UploadError     string
	UploadedAt      *time.Time
	UpdatedAt       time.Time
}

// Store persists events in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal at cfg.JournalPath.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.JournalPath())
}

// OpenPath opens the journal database at path.
func OpenPath(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// RecordSession upserts the journal row for sess.
func (s *Store) RecordSession(ctx context.Context, sess recorder.Session) error {
	if sess.CorrelationID == "" {
		return errors.New("session has no correlation id")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var (
		closedAt  any
		errKind   any
		errMsg    any
		uploadSet = UploadPending
	)
	if sess.Status == recorder.StatusClosed {
		closedAt = formatTime(sess.ClosedAt)
		if sess.Failed {
			uploadSet = UploadSkipped
		}
	}
	triggeredAt := sess.TriggeredAt
	if triggeredAt.IsZero() {
		triggeredAt = time.Now()
	}
	if sess.Err != nil {
		errKind = services.Kind(sess.Err)
		errMsg = sess.Err.Error()
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO events (
            correlation_id, session_id, status, failed, error_kind, error_message,
            dir, video_path, incomplete_path, pre_roll_frames, live_frames,
            frames_written, fixes, triggered_at, closed_at, upload_status, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(correlation_id) DO UPDATE SET
            session_id = excluded.session_id,
            status = excluded.status,
            failed = excluded.failed,
            error_kind = excluded.error_kind,
            error_message = excluded.error_message,
            dir = excluded.dir,
            video_path = excluded.video_path,
            incomplete_path = excluded.incomplete_path,
            pre_roll_frames = excluded.pre_roll_frames,
            live_frames = excluded.live_frames,
            frames_written = excluded.frames_written,
            fixes = excluded.fixes,
            closed_at = excluded.closed_at,
            upload_status = CASE
                WHEN events.upload_status = 'pending' THEN excluded.upload_status
                ELSE events.upload_status
            END,
            updated_at = excluded.updated_at`,
		sess.CorrelationID,
		nullableString(sess.ID),
		string(sess.Status),
		boolToInt(sess.Failed),
		errKind,
		errMsg,
		nullableString(sess.Dir),
		nullableString(sess.VideoPath),
		nullableString(sess.IncompletePath),
		sess.PreRollFrames,
		sess.LiveFrames,
		sess.FramesWritten,
		sess.Fixes,
		formatTime(triggeredAt),
		closedAt,
		uploadSet,
		now,
	)
	if err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// RecordUpload stores the hand-off outcome for sessionID. A nil uploadErr
// marks the event uploaded, or skipped for the "none" transport.
func (s *Store) RecordUpload(ctx context.Context, sessionID, transport string, uploadErr error) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	status := UploadDone
	var (
		errMsg     any
		uploadedAt any = now
	)
	switch {
	case uploadErr != nil:
		status = UploadFailed
		errMsg = uploadErr.Error()
		uploadedAt = nil
	case transport == "none":
		status = UploadSkipped
		uploadedAt = nil
	}
	res, err := s.db.ExecContext(ctx, `
        UPDATE events
        SET upload_status = ?, upload_transport = ?, upload_error = ?, uploaded_at = ?, updated_at = ?
        WHERE session_id = ?`,
		status, nullableString(transport), errMsg, uploadedAt, now, sessionID,
	)
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record upload: no event %q", sessionID)
	}
	return nil
}

// MarkInterrupted closes rows that never reached the closed status, which
// happens when the process dies mid-session. It returns the number of rows
// changed.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `
        UPDATE events
        SET status = ?, failed = 1, error_kind = 'interrupted',
            error_message = 'recorder stopped before the session closed',
            upload_status = ?, closed_at = ?, updated_at = ?
        WHERE status <> ?`,
		string(recorder.StatusClosed), UploadSkipped, now, now, string(recorder.StatusClosed),
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted: %w", err)
	}
	return res.RowsAffected()
}

// List returns the most recent events, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events ORDER BY triggered_at DESC, updated_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// Get returns the event whose session or correlation id matches id, or nil.
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	id = strings.TrimSpace(id)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE session_id = ? OR correlation_id = ? LIMIT 1`, id, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// Counts returns the number of events per upload status plus
// "recording_failed" for sessions that produced no video.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT CASE WHEN failed = 1 THEN 'recording_failed' ELSE upload_status END, COUNT(1)
        FROM events GROUP BY 1`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

const eventColumns = `correlation_id, session_id, status, failed, error_kind, error_message,
    dir, video_path, incomplete_path, pre_roll_frames, live_frames, frames_written, fixes,
    triggered_at, closed_at, upload_status, upload_transport, upload_error, uploaded_at, updated_at`

func scanEvent(scanner interface{ Scan(dest ...any) error }) (*Event, error) {
	var (
		ev              Event
		sessionID       sql.NullString
		status          string
		failed          int
		errKind         sql.NullString
		errMsg          sql.NullString
		dir             sql.NullString
		videoPath       sql.NullString
		incompletePath  sql.NullString
		triggeredRaw    string
		closedRaw       sql.NullString
		uploadTransport sql.NullString
		uploadErr       sql.NullString
		uploadedRaw     sql.NullString
		updatedRaw      string
	)
	if err := scanner.Scan(
		&ev.CorrelationID, &sessionID, &status, &failed, &errKind, &errMsg,
		&dir, &videoPath, &incompletePath, &ev.PreRollFrames, &ev.LiveFrames, &ev.FramesWritten, &ev.Fixes,
		&triggeredRaw, &closedRaw, &ev.UploadStatus, &uploadTransport, &uploadErr, &uploadedRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	ev.SessionID = sessionID.String
	ev.Status = recorder.Status(status)
	ev.Failed = failed != 0
	ev.ErrorKind = errKind.String
	ev.ErrorMessage = errMsg.String
	ev.Dir = dir.String
	ev.VideoPath = videoPath.String
	ev.IncompletePath = incompletePath.String
	ev.UploadTransport = uploadTransport.String
	ev.UploadError = uploadErr.String

	var err error
	if ev.TriggeredAt, err = parseTimeString(triggeredRaw); err != nil {
		return nil, fmt.Errorf("parse triggered_at: %w", err)
	}
	if ev.UpdatedAt, err = parseTimeString(updatedRaw); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if ev.ClosedAt, err = parseNullableTime(closedRaw); err != nil {
		return nil, fmt.Errorf("parse closed_at: %w", err)
	}
	if ev.UploadedAt, err = parseNullableTime(uploadedRaw); err != nil {
		return nil, fmt.Errorf("parse uploaded_at: %w", err)
	}
	return &ev, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func parseNullableTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
