package ipc

import (
	"time"

	"lifesaver/internal/journal"
	"lifesaver/internal/recorder"
)

// StatusRequest fetches recorder status.
type StatusRequest struct{}

// SessionView is the wire form of an in-flight recording session.
type SessionView struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Status        string    `json:"status"`
	TriggeredAt   time.Time `json:"triggered_at"`
	PreRollFrames int       `json:"pre_roll_frames"`
	LiveFrames    int       `json:"live_frames"`
}

// StatusResponse reports the recorder's counters and active session.
type StatusResponse struct {
	PID               int            `json:"pid"`
	StartedAt         time.Time      `json:"started_at"`
	Device            string         `json:"device"`
	JournalPath       string         `json:"journal_path"`
	FramesCaptured    uint64         `json:"frames_captured"`
	SessionsStarted   uint64         `json:"sessions_started"`
	SessionsSucceeded uint64         `json:"sessions_succeeded"`
	SessionsFailed    uint64         `json:"sessions_failed"`
	TriggersIgnored   uint64         `json:"triggers_ignored"`
	Overruns          uint64         `json:"overruns"`
	BufferedFrames    int            `json:"buffered_frames"`
	BufferCapacity    int            `json:"buffer_capacity"`
	Active            *SessionView   `json:"active,omitempty"`
	EventCounts       map[string]int `json:"event_counts"`
}

// TriggerRequest fires a manual trigger.
type TriggerRequest struct{}

// TriggerResponse reports whether the request was accepted. A request made
// while a session is in flight is accepted but ignored by the recorder.
type TriggerResponse struct {
	Accepted bool   `json:"accepted"`
	Busy     bool   `json:"busy"`
	Message  string `json:"message"`
}

// EventsRequest lists journaled events, newest first.
type EventsRequest struct {
	Limit int `json:"limit"`
}

// EventView is the wire form of a journaled event.
type EventView struct {
	SessionID     string     `json:"session_id"`
	CorrelationID string     `json:"correlation_id"`
	Status        string     `json:"status"`
	Failed        bool       `json:"failed"`
	ErrorKind     string     `json:"error_kind,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	VideoPath     string     `json:"video_path"`
	FramesWritten int64      `json:"frames_written"`
	Fixes         int        `json:"fixes"`
	TriggeredAt   time.Time  `json:"triggered_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	UploadStatus  string     `json:"upload_status"`
	UploadError   string     `json:"upload_error,omitempty"`
}

// EventsResponse carries journaled events.
type EventsResponse struct {
	Events []EventView `json:"events"`
}

// LogTailRequest fetches log entries based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	SessionID  string `json:"session_id"`
	Component  string `json:"component"`
	MinLevel   string `json:"min_level"`
}

// LogTailResponse returns raw log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// FromSession converts a recorder session snapshot.
func FromSession(s *recorder.Session) *SessionView {
	if s == nil {
		return nil
	}
	return &SessionView{
		ID:            s.ID,
		CorrelationID: s.CorrelationID,
		Status:        string(s.Status),
		TriggeredAt:   s.TriggeredAt,
		PreRollFrames: s.PreRollFrames,
		LiveFrames:    s.LiveFrames,
	}
}

// FromEvent converts a journal row.
func FromEvent(e journal.Event) EventView {
	return EventView{
		SessionID:     e.SessionID,
		CorrelationID: e.CorrelationID,
		Status:        string(e.Status),
		Failed:        e.Failed,
		ErrorKind:     e.ErrorKind,
		ErrorMessage:  e.ErrorMessage,
		VideoPath:     e.VideoPath,
		FramesWritten: e.FramesWritten,
		Fixes:         e.Fixes,
		TriggeredAt:   e.TriggeredAt,
		ClosedAt:      e.ClosedAt,
		UploadStatus:  e.UploadStatus,
		UploadError:   e.UploadError,
	}
}
