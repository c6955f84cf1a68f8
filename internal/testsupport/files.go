package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills path with size bytes of a repeating pattern, creating
// parent directories. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{0x42}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteEventDir creates <root>/<id> holding a video of videoSize bytes and
// returns the directory and video path.
func WriteEventDir(t testing.TB, root, id, videoName string, videoSize int64) (string, string) {
	t.Helper()

	dir := filepath.Join(root, id)
	video := filepath.Join(dir, videoName)
	WriteFile(t, video, videoSize)
	return dir, video
}
