// Package fileutil holds the small file helpers shared by the recorder, the
// handoff pipeline and the upload receiver. Every writer publishes its output
// with a rename so readers never observe a partially written file.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned by WriteReaderAtomic when the input exceeds the limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// WriteFileAtomic writes data to a temporary file next to path and renames it
// into place.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	_, err := WriteReaderAtomic(path, bytes.NewReader(data), mode, 0)
	return err
}

// WriteReaderAtomic streams r into path through a temporary sibling file. A
// positive limit caps the number of bytes accepted; exceeding it removes the
// temporary file and returns ErrTooLarge.
func WriteReaderAtomic(path string, r io.Reader, mode os.FileMode, limit int64) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, err := io.Copy(tmp, src)
	if err != nil {
		tmp.Close()
		return written, err
	}
	if limit > 0 && written > limit {
		tmp.Close()
		return written, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	if err := tmp.Close(); err != nil {
		return written, err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return written, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return written, err
	}
	return written, nil
}

// CopyFile copies src to dst with SHA256 + size verification. dst only
// appears once the copy is complete and verified.
func CopyFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	pr, pw := io.Pipe()
	go func() {
		_, err := io.Copy(io.MultiWriter(dstHasher, pw), tee)
		pw.CloseWithError(err)
	}()

	tmpDst := dst + ".partial"
	written, err := WriteReaderAtomic(tmpDst, pr, srcInfo.Mode().Perm(), 0)
	if err != nil {
		_ = pr.CloseWithError(err)
		return err
	}
	if written != srcInfo.Size() {
		_ = os.Remove(tmpDst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(tmpDst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return os.Rename(tmpDst, dst)
}

// RequireNonEmpty returns the size of the regular file at path, or an error if
// it is missing, a directory, or empty.
func RequireNonEmpty(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s is empty", path)
	}
	return info.Size(), nil
}
