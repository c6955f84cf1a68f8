package handoff_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"lifesaver/internal/config"
	"lifesaver/internal/handoff"
	"lifesaver/internal/location"
	"lifesaver/internal/logging"
	"lifesaver/internal/services"
)

type journalEntry struct {
	sessionID string
	transport string
	err       error
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []journalEntry
}

func (j *fakeJournal) RecordUpload(_ context.Context, sessionID, transport string, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, journalEntry{sessionID, transport, err})
	return nil
}

type fakeNotifier struct {
	recorded []string
	failed   []string
}

func (n *fakeNotifier) NotifyEventRecorded(_ context.Context, id string, _ int64, _ int) error {
	n.recorded = append(n.recorded, id)
	return nil
}

func (n *fakeNotifier) NotifyUploadFailed(_ context.Context, id string, _ error) error {
	n.failed = append(n.failed, id)
	return nil
}

type fakeArchiver struct {
	calls int
}

func (a *fakeArchiver) Archive(context.Context, handoff.Delivery) (string, error) {
	a.calls++
	return "/archive/event.mkv", nil
}

func newDelivery(t *testing.T, fixes []location.Fix) handoff.Delivery {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "event_20240501_120005")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	video := filepath.Join(dir, "output_segment.mp4")
	if err := os.WriteFile(video, []byte("fake mp4 payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	return handoff.Delivery{
		SessionID:   filepath.Base(dir),
		Dir:         dir,
		VideoPath:   video,
		Frames:      150,
		TriggeredAt: time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC),
		Fixes:       fixes,
	}
}

func TestDeliverUploadsVideoAndLocationLog(t *testing.T) {
	type upload struct {
		name string
		body string
	}
	var (
		mu      sync.Mutex
		uploads []upload
		session string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		session = r.FormValue("session_id")
		for _, fh := range r.MultipartForm.File[handoff.UploadField] {
			f, err := fh.Open()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			data, _ := io.ReadAll(f)
			f.Close()
			uploads = append(uploads, upload{fh.Filename, string(data)})
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	journal := &fakeJournal{}
	notifier := &fakeNotifier{}
	archiver := &fakeArchiver{}
	svc := handoff.NewService(handoff.Options{
		Transport: handoff.NewHTTPTransport(srv.URL, srv.Client()),
		Journal:   journal,
		Notifier:  notifier,
		Archiver:  archiver,
		Logger:    logging.NewNop(),
	})

	fix := location.Fix{Latitude: 52.52, Longitude: 13.405, Timestamp: time.Date(2024, 5, 1, 12, 0, 6, 0, time.UTC)}
	d := newDelivery(t, []location.Fix{fix})
	if err := svc.Deliver(context.Background(), d); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if session != d.SessionID {
		t.Fatalf("session field = %q", session)
	}
	if len(uploads) != 2 {
		t.Fatalf("expected 2 uploaded files, got %d", len(uploads))
	}
	if uploads[0].name != "output_segment.mp4" || uploads[0].body != "fake mp4 payload" {
		t.Fatalf("unexpected video upload %+v", uploads[0])
	}
	if uploads[1].name != "gps_data.json" {
		t.Fatalf("unexpected log upload %q", uploads[1].name)
	}

	fixes, err := location.ReadLog(filepath.Join(d.Dir, "gps_data.json"))
	if err != nil {
		t.Fatalf("ReadLog: %v", err)
	}
	if len(fixes) != 1 || fixes[0].Latitude != 52.52 {
		t.Fatalf("unexpected fixes %+v", fixes)
	}

	if len(journal.entries) != 1 || journal.entries[0].err != nil || journal.entries[0].transport != "http" {
		t.Fatalf("unexpected journal entries %+v", journal.entries)
	}
	if len(notifier.recorded) != 1 || len(notifier.failed) != 0 {
		t.Fatalf("unexpected notifications %+v", notifier)
	}
	if archiver.calls != 1 {
		t.Fatalf("expected archive, got %d calls", archiver.calls)
	}
}

func TestDeliverKeepsFilesWhenTransportFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "disk full", http.StatusInsufficientStorage)
	}))
	defer srv.Close()

	journal := &fakeJournal{}
	notifier := &fakeNotifier{}
	svc := handoff.NewService(handoff.Options{
		Transport: handoff.NewHTTPTransport(srv.URL, srv.Client()),
		Journal:   journal,
		Notifier:  notifier,
		Logger:    logging.NewNop(),
	})
	d := newDelivery(t, nil)

	err := svc.Deliver(context.Background(), d)
	if !errors.Is(err, services.ErrHandoffTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if _, err := os.Stat(d.VideoPath); err != nil {
		t.Fatalf("video must be retained: %v", err)
	}
	fixes, err := location.ReadLog(svc.LocationLogPath(d))
	if err != nil || len(fixes) != 0 {
		t.Fatalf("expected empty location log, got %v %v", fixes, err)
	}
	if len(journal.entries) != 1 || journal.entries[0].err == nil {
		t.Fatalf("expected failed upload journaled, got %+v", journal.entries)
	}
	if len(notifier.failed) != 1 {
		t.Fatal("expected upload failure notification")
	}
}

func TestDeliverRejectsEmptyVideo(t *testing.T) {
	svc := handoff.NewService(handoff.Options{Logger: logging.NewNop()})
	d := newDelivery(t, nil)
	if err := os.WriteFile(d.VideoPath, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := svc.Deliver(context.Background(), d); !errors.Is(err, services.ErrHandoffTransport) {
		t.Fatalf("expected error for empty video, got %v", err)
	}
}

func TestDeliverPersistsPartialFixes(t *testing.T) {
	svc := handoff.NewService(handoff.Options{Logger: logging.NewNop()})
	fix := location.Fix{Latitude: 1, Longitude: 2, Timestamp: time.Now().UTC()}
	d := newDelivery(t, []location.Fix{fix})
	d.LocationErr = services.Wrap(services.ErrLocation, "gpsd", "acquire", "1 of 3 fixes", nil)

	if err := svc.Deliver(context.Background(), d); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	fixes, err := location.ReadLog(svc.LocationLogPath(d))
	if err != nil {
		t.Fatal(err)
	}
	if len(fixes) != 1 {
		t.Fatalf("expected the single fix persisted, got %d", len(fixes))
	}
}

type fakeS3 struct {
	mu   sync.Mutex
	puts map[string]string
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	f.puts[*in.Bucket+"/"+*in.Key] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func TestS3TransportUploadsUnderSessionPrefix(t *testing.T) {
	client := &fakeS3{}
	svc := handoff.NewService(handoff.Options{
		Transport: handoff.NewS3Transport(client, "dashcam", "car"),
		Logger:    logging.NewNop(),
	})
	d := newDelivery(t, nil)
	if err := svc.Deliver(context.Background(), d); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	videoKey := "dashcam/car/" + d.SessionID + "/output_segment.mp4"
	if client.puts[videoKey] != "fake mp4 payload" {
		t.Fatalf("missing video object, have %v", client.puts)
	}
	if _, ok := client.puts["dashcam/car/"+d.SessionID+"/gps_data.json"]; !ok {
		t.Fatalf("missing location object, have %v", client.puts)
	}
}

func TestS3TransportWrapsErrors(t *testing.T) {
	tr := handoff.NewS3Transport(&fakeS3{err: errors.New("access denied")}, "b", "")
	path := filepath.Join(t.TempDir(), "x.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := tr.Submit(context.Background(), "event_1", path)
	if !errors.Is(err, services.ErrHandoffTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if got := tr.Key("event_1", path); got != "event_1/x.mp4" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestNewTransportSelectsImplementation(t *testing.T) {
	cfg := config.Default()
	cfg.Handoff.Transport = "none"
	tr, err := handoff.NewTransport(context.Background(), &cfg)
	if err != nil || tr.Name() != "none" {
		t.Fatalf("none transport: %v %v", tr, err)
	}
	cfg.Handoff.Transport = "http"
	tr, err = handoff.NewTransport(context.Background(), &cfg)
	if err != nil || tr.Name() != "http" {
		t.Fatalf("http transport: %v %v", tr, err)
	}
	cfg.Handoff.Transport = "carrier-pigeon"
	if _, err := handoff.NewTransport(context.Background(), &cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
