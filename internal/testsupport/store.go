package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"lifesaver/internal/config"
	"lifesaver/internal/journal"
	"lifesaver/internal/recorder"
)

// MustOpenJournal opens a journal.Store for tests and registers cleanup.
func MustOpenJournal(t testing.TB, cfg *config.Config) *journal.Store {
	t.Helper()

	store, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RecordClosedSession journals a successful session with the given id and
// returns it.
func RecordClosedSession(t testing.TB, store *journal.Store, id string, triggeredAt time.Time) recorder.Session {
	t.Helper()

	sess := recorder.Session{
		ID:            id,
		CorrelationID: uuid.NewString(),
		Status:        recorder.StatusClosed,
		Dir:           "/events/" + id,
		VideoPath:     "/events/" + id + "/output_segment.mp4",
		TriggeredAt:   triggeredAt,
		ClosedAt:      triggeredAt.Add(5 * time.Second),
		PreRollFrames: 200,
		LiveFrames:    100,
		FramesWritten: 300,
		Fixes:         3,
	}
	if err := store.RecordSession(context.Background(), sess); err != nil {
		t.Fatalf("RecordSession: %v", err)
	}
	return sess
}
