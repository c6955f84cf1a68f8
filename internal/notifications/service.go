package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lifesaver/internal/config"
)

const userAgent = "lifesaver/0.1"

// Service defines the notification surface used by the recorder and handoff.
type Service interface {
	NotifyRecorderStarted(ctx context.Context, device string) error
	NotifyEventRecorded(ctx context.Context, sessionID string, frames int64, fixes int) error
	NotifySessionFailed(ctx context.Context, sessionID string, err error) error
	NotifyUploadFailed(ctx context.Context, sessionID string, err error) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		settings: cfg.Notifications,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	settings config.Notifications
}

func (n *ntfyService) NotifyRecorderStarted(ctx context.Context, device string) error {
	device = strings.TrimSpace(device)
	if device == "" {
		device = "unknown device"
	}
	return n.send(ctx, payload{
		title:    "Lifesaver - Recording",
		message:  fmt.Sprintf("Recorder armed on %s", device),
		tags:     []string{"lifesaver", "recorder", "started"},
		priority: "low",
	})
}

func (n *ntfyService) NotifyEventRecorded(ctx context.Context, sessionID string, frames int64, fixes int) error {
	if !n.settings.EventRecorded {
		return nil
	}
	message := fmt.Sprintf("🚨 Event recorded: %s (%d frames)", strings.TrimSpace(sessionID), frames)
	if fixes == 0 {
		message += "\nNo location fix"
	} else {
		message += fmt.Sprintf("\n%d location fixes", fixes)
	}
	return n.send(ctx, payload{
		title:    "Lifesaver - Event Recorded",
		message:  message,
		tags:     []string{"lifesaver", "event", "recorded"},
		priority: "high",
	})
}

func (n *ntfyService) NotifySessionFailed(ctx context.Context, sessionID string, err error) error {
	if !n.settings.Errors {
		return nil
	}
	label := "recording"
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		label = "recording " + sessionID
	}
	return n.NotifyError(ctx, err, label)
}

func (n *ntfyService) NotifyUploadFailed(ctx context.Context, sessionID string, err error) error {
	if !n.settings.UploadFailed {
		return nil
	}
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	return n.send(ctx, payload{
		title:   "Lifesaver - Upload Failed",
		message: fmt.Sprintf("Upload of %s failed; kept on device\n%s", strings.TrimSpace(sessionID), reason),
		tags:    []string{"lifesaver", "upload", "failed"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.settings.Errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("❌ Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	return n.send(ctx, payload{
		title:    "Lifesaver - Error",
		message:  builder.String(),
		tags:     []string{"lifesaver", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Lifesaver - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"lifesaver", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRecorderStarted(context.Context, string) error           { return nil }
func (noopService) NotifyEventRecorded(context.Context, string, int64, int) error { return nil }
func (noopService) NotifySessionFailed(context.Context, string, error) error      { return nil }
func (noopService) NotifyUploadFailed(context.Context, string, error) error       { return nil }
func (noopService) NotifyError(context.Context, error, string) error              { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
