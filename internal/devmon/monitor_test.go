package devmon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"lifesaver/internal/logging"
	"lifesaver/internal/services"
)

func TestNewBlankDeviceReturnsNil(t *testing.T) {
	m := New("  ", nil, nil)
	if m != nil {
		t.Fatal("expected nil monitor")
	}
	// nil monitor methods are safe
	m.Start(context.Background())
	m.Stop()
	if m.Running() || m.Device() != "" {
		t.Fatal("nil monitor should report nothing")
	}
}

func TestNewResolvesSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "video0")
	if err := os.WriteFile(target, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "usb-camera")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlink: %v", err)
	}
	m := New(link, nil, logging.NewNop())
	resolvedTarget, _ := filepath.EvalSymlinks(target)
	if m.Device() != resolvedTarget {
		t.Fatalf("device = %q, want %q", m.Device(), resolvedTarget)
	}
}

func TestMatcherSelectsVideoRemoval(t *testing.T) {
	matcher := Matcher()
	remove := netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "video4linux", "DEVNAME": "/dev/video0"}}
	if !matcher.Evaluate(remove) {
		t.Fatal("expected video4linux removal to match")
	}
	add := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "video4linux", "DEVNAME": "/dev/video0"}}
	if matcher.Evaluate(add) {
		t.Fatal("expected add to be ignored")
	}
	block := netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "block", "DEVNAME": "/dev/sda"}}
	if matcher.Evaluate(block) {
		t.Fatal("expected block removal to be ignored")
	}
}

func TestHandleReportsWatchedDeviceOnly(t *testing.T) {
	var got error
	calls := 0
	m := New("/dev/video0", func(err error) { got = err; calls++ }, logging.NewNop())

	if m.handle(netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"DEVNAME": "/dev/video1"}}) {
		t.Fatal("other device should not match")
	}
	if calls != 0 {
		t.Fatal("callback invoked for other device")
	}

	if !m.handle(netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"DEVNAME": "video0"}}) {
		t.Fatal("expected watched device to match")
	}
	if calls != 1 || !errors.Is(got, services.ErrDevice) {
		t.Fatalf("expected one ErrDevice callback, got %d %v", calls, got)
	}
}

func TestDeviceName(t *testing.T) {
	cases := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"DEVNAME": "/dev/video2"}, "/dev/video2"},
		{map[string]string{"DEVNAME": "video2"}, "/dev/video2"},
		{map[string]string{"DEVPATH": "/devices/pci0000:00/usb1/1-1/video4linux/video3"}, "/dev/video3"},
		{map[string]string{}, ""},
	}
	for _, tc := range cases {
		if got := DeviceName(netlink.UEvent{Env: tc.env}); got != tc.want {
			t.Errorf("DeviceName(%v) = %q, want %q", tc.env, got, tc.want)
		}
	}
}

func TestStopWithoutStartIsSafe(t *testing.T) {
	m := New("/dev/video0", nil, logging.NewNop())
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("expected not running")
	}
}
