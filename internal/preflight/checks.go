package preflight

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"lifesaver/internal/config"
)

const dialTimeout = 3 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCaptureDevice verifies the camera node is a readable character device.
func CheckCaptureDevice(device string) Result {
	const name = "Camera"
	device = strings.TrimSpace(device)
	if device == "" {
		return Result{Name: name, Detail: "device not configured"}
	}
	info, err := os.Stat(device)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", device, err)}
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a character device)", device)}
	}
	if err := unix.Access(device, unix.R_OK|unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", device, err)}
	}
	return Result{Name: name, Passed: true, Detail: device}
}

// CheckGPIO verifies the trigger input value file is readable.
func CheckGPIO(valuePath string) Result {
	const name = "Shock sensor"
	data, err := os.ReadFile(valuePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: not exported)", valuePath)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", valuePath, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (level %s)", valuePath, strings.TrimSpace(string(data)))}
}

// CheckGPSD verifies gpsd accepts connections.
func CheckGPSD(ctx context.Context, addr string) Result {
	const name = "gpsd"
	if err := dial(ctx, addr); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", addr, err)}
	}
	return Result{Name: name, Passed: true, Detail: addr + " (reachable)"}
}

// CheckUploadEndpoint verifies the upload receiver's host accepts
// connections. It does not post anything.
func CheckUploadEndpoint(ctx context.Context, rawURL string) Result {
	const name = "Upload endpoint"
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url %q", rawURL)}
	}
	host := parsed.Host
	if parsed.Port() == "" {
		port := "80"
		if parsed.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(parsed.Hostname(), port)
	}
	if err := dial(ctx, host); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", rawURL, err)}
	}
	return Result{Name: name, Passed: true, Detail: rawURL + " (reachable)"}
}

// CheckS3Config verifies the S3 transport has a bucket. Credentials are
// resolved by the AWS SDK at upload time and are not probed here.
func CheckS3Config(cfg config.Handoff) Result {
	const name = "S3 bucket"
	if strings.TrimSpace(cfg.S3Bucket) == "" {
		return Result{Name: name, Detail: "bucket not configured"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("s3://%s/%s", cfg.S3Bucket, strings.Trim(cfg.S3Prefix, "/"))}
}

func dial(ctx context.Context, addr string) error {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return conn.Close()
}
