package journal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"lifesaver/internal/journal"
	"lifesaver/internal/recorder"
	"lifesaver/internal/services"
	"lifesaver/internal/testsupport"
)

func TestRecordSessionTracksStatusChanges(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	triggered := time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC)
	sess := recorder.Session{
		ID:            "event_20240501_120005",
		CorrelationID: "corr-1",
		Status:        recorder.StatusOpen,
		Dir:           "/events/event_20240501_120005",
		TriggeredAt:   triggered,
		PreRollFrames: 200,
	}
	for _, status := range []recorder.Status{recorder.StatusOpen, recorder.StatusDraining, recorder.StatusRecordingLive} {
		sess.Status = status
		if err := store.RecordSession(ctx, sess); err != nil {
			t.Fatalf("RecordSession(%s): %v", status, err)
		}
	}

	ev, err := store.Get(ctx, "event_20240501_120005")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ev == nil || ev.Status != recorder.StatusRecordingLive || ev.ClosedAt != nil {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !ev.TriggeredAt.Equal(triggered) {
		t.Fatalf("triggered_at = %v, want %v", ev.TriggeredAt, triggered)
	}

	sess.Status = recorder.StatusClosed
	sess.ClosedAt = triggered.Add(5 * time.Second)
	sess.LiveFrames = 100
	sess.FramesWritten = 300
	sess.Fixes = 3
	if err := store.RecordSession(ctx, sess); err != nil {
		t.Fatalf("RecordSession(closed): %v", err)
	}
	ev, err = store.Get(ctx, "corr-1")
	if err != nil {
		t.Fatalf("Get by correlation id: %v", err)
	}
	if ev.Status != recorder.StatusClosed || ev.FramesWritten != 300 || ev.Fixes != 3 {
		t.Fatalf("unexpected closed event %+v", ev)
	}
	if ev.ClosedAt == nil || !ev.ClosedAt.Equal(sess.ClosedAt) {
		t.Fatalf("unexpected closed_at %v", ev.ClosedAt)
	}
	if ev.UploadStatus != journal.UploadPending {
		t.Fatalf("expected pending upload, got %q", ev.UploadStatus)
	}
}

func TestRecordSessionFailureSkipsUpload(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	sess := recorder.Session{
		CorrelationID: "corr-fail",
		Status:        recorder.StatusClosed,
		Failed:        true,
		Err:           services.Wrap(services.ErrEncoderStart, "encoder", "start", "ffmpeg missing", nil),
		TriggeredAt:   time.Now(),
		ClosedAt:      time.Now(),
	}
	if err := store.RecordSession(ctx, sess); err != nil {
		t.Fatalf("RecordSession: %v", err)
	}
	ev, err := store.Get(ctx, "corr-fail")
	if err != nil || ev == nil {
		t.Fatalf("Get: %v %v", ev, err)
	}
	if !ev.Failed || ev.ErrorKind != "encoder_start" || ev.UploadStatus != journal.UploadSkipped {
		t.Fatalf("unexpected failed event %+v", ev)
	}
	if ev.SessionID != "" {
		t.Fatalf("expected no session id, got %q", ev.SessionID)
	}
}

func TestRecordUploadOutcomes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	testsupport.RecordClosedSession(t, store, "event_a", base)
	testsupport.RecordClosedSession(t, store, "event_b", base.Add(time.Minute))
	testsupport.RecordClosedSession(t, store, "event_c", base.Add(2*time.Minute))

	if err := store.RecordUpload(ctx, "event_a", "http", nil); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if err := store.RecordUpload(ctx, "event_b", "s3", errors.New("access denied")); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if err := store.RecordUpload(ctx, "event_c", "none", nil); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if err := store.RecordUpload(ctx, "missing", "http", nil); err == nil {
		t.Fatal("expected error for unknown session")
	}

	a, _ := store.Get(ctx, "event_a")
	if a.UploadStatus != journal.UploadDone || a.UploadedAt == nil || a.UploadTransport != "http" {
		t.Fatalf("unexpected upload state %+v", a)
	}
	b, _ := store.Get(ctx, "event_b")
	if b.UploadStatus != journal.UploadFailed || b.UploadError != "access denied" {
		t.Fatalf("unexpected failed upload %+v", b)
	}
	c, _ := store.Get(ctx, "event_c")
	if c.UploadStatus != journal.UploadSkipped || c.UploadedAt != nil {
		t.Fatalf("unexpected skipped upload %+v", c)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[journal.UploadDone] != 1 || counts[journal.UploadFailed] != 1 || counts[journal.UploadSkipped] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestListReturnsNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"event_1", "event_2", "event_3"} {
		testsupport.RecordClosedSession(t, store, id, base.Add(time.Duration(i)*time.Minute))
	}

	events, err := store.List(context.Background(), 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 || events[0].SessionID != "event_3" || events[1].SessionID != "event_2" {
		t.Fatalf("unexpected order: %+v", events)
	}
	all, err := store.List(context.Background(), 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("List all: %d %v", len(all), err)
	}
}

func TestMarkInterruptedClosesOpenRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	testsupport.RecordClosedSession(t, store, "event_done", time.Now())
	open := recorder.Session{
		ID:            "event_open",
		CorrelationID: "corr-open",
		Status:        recorder.StatusRecordingLive,
		TriggeredAt:   time.Now(),
	}
	if err := store.RecordSession(ctx, open); err != nil {
		t.Fatal(err)
	}

	n, err := store.MarkInterrupted(ctx)
	if err != nil {
		t.Fatalf("MarkInterrupted: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 interrupted row, got %d", n)
	}
	ev, _ := store.Get(ctx, "event_open")
	if ev.Status != recorder.StatusClosed || !ev.Failed || ev.ErrorKind != "interrupted" {
		t.Fatalf("unexpected interrupted row %+v", ev)
	}
	done, _ := store.Get(ctx, "event_done")
	if done.Failed {
		t.Fatal("closed row must not be touched")
	}
}

func TestOpenReusesExistingJournal(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := testsupport.MustOpenJournal(t, cfg)
	testsupport.RecordClosedSession(t, first, "event_keep", time.Now())
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := testsupport.MustOpenJournal(t, cfg)
	ev, err := second.Get(context.Background(), "event_keep")
	if err != nil || ev == nil {
		t.Fatalf("expected persisted event, got %v %v", ev, err)
	}
	if second.Path() != cfg.JournalPath() {
		t.Fatalf("unexpected path %q", second.Path())
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ev, err := store.Get(context.Background(), "nope")
	if err != nil || ev != nil {
		t.Fatalf("expected nil, nil; got %v %v", ev, err)
	}
}
