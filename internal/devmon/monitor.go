package devmon

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"lifesaver/internal/logging"
	"lifesaver/internal/services"
)

// Monitor listens for udev removal events of one video4linux device.
type Monitor struct {
	device   string
	logger   *slog.Logger
	onRemove func(error)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// New returns a monitor for device. onRemove receives an ErrDevice error
// once, when the device is removed. A blank device yields nil; the methods
// of a nil monitor are no-ops.
func New(device string, onRemove func(error), logger *slog.Logger) *Monitor {
	device = strings.TrimSpace(device)
	if device == "" {
		return nil
	}
	// Stable names such as /dev/v4l/by-id/... are symlinks to the node udev
	// reports in DEVNAME.
	if resolved, err := filepath.EvalSymlinks(device); err == nil {
		device = resolved
	}
	return &Monitor{
		device:   device,
		logger:   logging.NewComponentLogger(logger, "devmon"),
		onRemove: onRemove,
	}
}

// Device returns the resolved device node being watched.
func (m *Monitor) Device() string {
	if m == nil {
		return ""
	}
	return m.device
}

// Start begins listening. A netlink connection failure is logged and
// otherwise ignored; removal is then only noticed through capture errors.
func (m *Monitor) Start(ctx context.Context) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "device monitor unavailable", "devmon_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the recorder may open netlink sockets"),
			logging.String(logging.FieldImpact, "camera removal detected only when capture fails"),
		)
		return
	}
	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.loop(ctx, conn, quit)

	m.logger.Info("device monitor started",
		logging.String(logging.FieldEventType, "devmon_started"),
		logging.String("device", m.device),
	)
}

// Stop shuts down the monitor.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	_ = m.conn.Close()
	m.conn = nil
	m.running = false
}

// Running reports whether the monitor is connected.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, Matcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			if m.handle(uevent) {
				close(monitorQuit)
				return
			}
		case err := <-errs:
			m.logger.Debug("netlink monitor error", logging.Error(err))
		}
	}
}

// Matcher selects video4linux removal events.
func Matcher() netlink.Matcher {
	action := string(netlink.REMOVE)
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "video4linux",
		},
	})
	return rules
}

// handle reports whether uevent removed the watched device.
func (m *Monitor) handle(uevent netlink.UEvent) bool {
	name := DeviceName(uevent)
	if name != m.device {
		return false
	}
	err := services.Wrap(services.ErrDevice, "devmon", "watch", "camera removed: "+name, nil)
	logging.ErrorWithContext(m.logger, "capture device removed", "device_removed",
		logging.String("device", name),
		logging.String(logging.FieldErrorHint, "check the camera cable and USB power"),
		logging.String(logging.FieldImpact, "recording stops until the recorder is restarted"),
	)
	if m.onRemove != nil {
		m.onRemove(err)
	}
	return true
}

// DeviceName returns the /dev node a uevent refers to.
func DeviceName(uevent netlink.UEvent) string {
	if name := uevent.Env["DEVNAME"]; name != "" {
		if !strings.HasPrefix(name, "/") {
			name = "/dev/" + name
		}
		return name
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	return "/dev/" + filepath.Base(devpath)
}
