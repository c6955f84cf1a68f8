package receiver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lifesaver/internal/fileutil"
	"lifesaver/internal/logging"
	"lifesaver/internal/textutil"
)

// FieldName is the multipart field carrying uploaded files.
const FieldName = "files"

var allowedExtensions = map[string]bool{
	".avi":  true,
	".mp4":  true,
	".mkv":  true,
	".txt":  true,
	".csv":  true,
	".json": true,
}

type uploadResponse struct {
	Message string   `json:"message"`
	Files   []string `json:"files,omitempty"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, uploadResponse{Message: "expected multipart/form-data"})
		return
	}

	var stored []string
	cleanup := func() {
		for _, p := range stored {
			_ = os.Remove(p)
		}
	}
	var sessionID string
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cleanup()
			writeJSON(w, http.StatusBadRequest, uploadResponse{Message: "malformed multipart body"})
			return
		}
		if part.FormName() == "session_id" {
			data, _ := io.ReadAll(io.LimitReader(part, 256))
			sessionID = strings.TrimSpace(string(data))
			part.Close()
			continue
		}
		if part.FormName() != FieldName || part.FileName() == "" {
			part.Close()
			continue
		}

		path, status, err := s.store(part, part.FileName())
		part.Close()
		if err != nil {
			cleanup()
			s.logger.Warn("upload rejected",
				logging.String(logging.FieldEventType, "upload_rejected"),
				logging.String("file", part.FileName()),
				logging.Error(err),
			)
			writeJSON(w, status, uploadResponse{Message: err.Error()})
			return
		}
		stored = append(stored, path)
	}

	if len(stored) == 0 {
		s.logger.Info("upload without files", logging.String(logging.FieldEventType, "upload_empty"))
		writeJSON(w, http.StatusBadRequest, uploadResponse{Message: "Failed to upload files"})
		return
	}
	s.logger.Info("files received",
		logging.String(logging.FieldEventType, "upload_received"),
		logging.String(logging.FieldSessionID, sessionID),
		logging.String("files", strings.Join(stored, ", ")),
	)
	writeJSON(w, http.StatusOK, uploadResponse{Message: "Files uploaded successfully!", Files: stored})
}

// store writes one uploaded file and returns its path, or an HTTP status and
// error describing the rejection.
func (s *Server) store(body io.Reader, clientName string) (string, int, error) {
	name := textutil.SanitizeFileName(filepath.Base(clientName))
	ext := strings.ToLower(filepath.Ext(name))
	if name == "" || !allowedExtensions[ext] {
		return "", http.StatusBadRequest, errors.New("only video and location log files are allowed")
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))

	path, err := s.allocate(base, filepath.Ext(name))
	if err != nil {
		return "", http.StatusInternalServerError, err
	}
	if _, err := fileutil.WriteReaderAtomic(path, body, 0o644, s.maxBytes); err != nil {
		_ = os.Remove(path)
		if errors.Is(err, fileutil.ErrTooLarge) {
			return "", http.StatusRequestEntityTooLarge, fmt.Errorf("%s exceeds %d MB", name, s.maxBytes/(1024*1024))
		}
		return "", http.StatusInternalServerError, fmt.Errorf("store %s: %w", name, err)
	}
	return path, http.StatusOK, nil
}

// allocate reserves <base>_<date>_<time><ext>, adding _N when the name is
// already taken. The reservation is an empty file replaced by the upload.
func (s *Server) allocate(base, ext string) (string, error) {
	s.nameMu.Lock()
	defer s.nameMu.Unlock()

	stamp := s.now().Format("2006-01-02_15-04-05")
	for n := 0; n < 100; n++ {
		name := fmt.Sprintf("%s_%s%s", base, stamp, ext)
		if n > 0 {
			name = fmt.Sprintf("%s_%s_%d%s", base, stamp, n, ext)
		}
		path := filepath.Join(s.dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("reserve %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("no free name for %s%s", base, ext)
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, uploadResponse{Message: "Unable to scan directory: " + err.Error()})
		return
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.Error(w, "invalid file name", http.StatusBadRequest)
		return
	}
	info, err := os.Stat(filepath.Join(s.dir, name))
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, os.DirFS(s.dir), name)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
