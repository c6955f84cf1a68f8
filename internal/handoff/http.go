package handoff

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"lifesaver/internal/services"
)

// UploadField is the multipart field name the receiver reads files from.
const UploadField = "files"

// HTTPTransport posts event files as one multipart/form-data request.
type HTTPTransport struct {
	url    string
	client *http.Client
}

// NewHTTPTransport returns a transport posting to url. A nil client uses
// http.DefaultClient.
func NewHTTPTransport(url string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{url: url, client: client}
}

func (t *HTTPTransport) Name() string { return "http" }

// Submit streams every path under the "files" field. Any non-2xx response is
// an ErrHandoffTransport.
func (t *HTTPTransport) Submit(ctx context.Context, sessionID string, paths ...string) error {
	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(form, sessionID, paths))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return services.Wrap(services.ErrHandoffTransport, "handoff", "build upload request", t.url, err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return services.Wrap(services.ErrHandoffTransport, "handoff", "upload", t.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrHandoffTransport, "handoff", "upload",
			fmt.Sprintf("receiver returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func writeForm(form *multipart.Writer, sessionID string, paths []string) error {
	if err := form.WriteField("session_id", sessionID); err != nil {
		return err
	}
	for _, path := range paths {
		if err := writePart(form, path); err != nil {
			return err
		}
	}
	return form.Close()
}

func writePart(form *multipart.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	part, err := form.CreateFormFile(UploadField, filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}
