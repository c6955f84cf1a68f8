package trigger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"lifesaver/internal/services"
)

// SysfsSensor reads a GPIO line through the sysfs value file
// (/sys/class/gpio/gpioN/value). The file is held open and re-read with
// pread so each sample costs a single syscall.
type SysfsSensor struct {
	path string

	mu sync.Mutex
	fd int
}

// OpenSysfs opens the value file at path. When exportPin is non-negative and
// the file does not exist yet, the pin is exported as an input first.
func OpenSysfs(path string, exportPin int) (*SysfsSensor, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) && exportPin >= 0 {
		if err := exportGPIO(filepath.Dir(filepath.Dir(path)), exportPin); err != nil {
			return nil, services.Wrap(services.ErrDevice, "trigger", "export gpio", strconv.Itoa(exportPin), err)
		}
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, services.Wrap(services.ErrDevice, "trigger", "open", path, err)
	}
	return &SysfsSensor{path: path, fd: fd}, nil
}

func exportGPIO(gpioRoot string, pin int) error {
	if err := os.WriteFile(filepath.Join(gpioRoot, "export"), []byte(strconv.Itoa(pin)), 0o200); err != nil {
		return err
	}
	direction := filepath.Join(gpioRoot, fmt.Sprintf("gpio%d", pin), "direction")
	// udev applies permissions asynchronously after export.
	var lastErr error
	for attempt := 0; attempt < 10; attempt++ {
		if lastErr = os.WriteFile(direction, []byte("in"), 0o200); lastErr == nil {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return lastErr
}

// Sample reads the current line level.
func (s *SysfsSensor) Sample(context.Context) (Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return Low, services.Wrap(services.ErrDevice, "trigger", "sample", "sensor closed", nil)
	}
	var buf [1]byte
	n, err := unix.Pread(s.fd, buf[:], 0)
	if err != nil {
		return Low, services.Wrap(services.ErrDevice, "trigger", "sample", s.path, err)
	}
	if n != 1 {
		return Low, services.Wrap(services.ErrDevice, "trigger", "sample", s.path+": empty read", nil)
	}
	switch buf[0] {
	case '0':
		return Low, nil
	case '1':
		return High, nil
	default:
		return Low, services.Wrap(services.ErrDevice, "trigger", "sample", fmt.Sprintf("%s: unexpected value %q", s.path, buf[0]), nil)
	}
}

// Close releases the file descriptor.
func (s *SysfsSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
