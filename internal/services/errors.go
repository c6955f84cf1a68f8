package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDevice marks a camera or trigger input failure. It is fatal to the recorder.
	ErrDevice = errors.New("device error")
	// ErrEncoderStart marks an encoder process that could not be launched.
	ErrEncoderStart = errors.New("encoder start failure")
	// ErrEncoderFinalize marks an encode that ended without a complete output file.
	ErrEncoderFinalize = errors.New("encoder finalize failure")
	// ErrLocation marks a location fix that could not be acquired.
	ErrLocation = errors.New("location acquisition error")
	// ErrHandoffTransport marks a failed delivery of a finished event.
	ErrHandoffTransport = errors.New("handoff transport error")
	// ErrSessionOverrun marks a session whose hand-off queue filled faster than the encoder drained it.
	ErrSessionOverrun = errors.New("session overrun")
	ErrConfiguration  = errors.New("configuration error")
	ErrValidation     = errors.New("validation error")
)

// Wrap builds an error that names the component and operation that failed and
// is tagged with marker for later classification via errors.Is.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		if err != nil {
			return fmt.Errorf("%s: %w", detail, err)
		}
		return errors.New(detail)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns a stable short label for the marker carried by err, used in the
// event journal and notifications. Unclassified errors report "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDevice):
		return "device"
	case errors.Is(err, ErrEncoderStart):
		return "encoder_start"
	case errors.Is(err, ErrEncoderFinalize):
		return "encoder_finalize"
	case errors.Is(err, ErrSessionOverrun):
		return "session_overrun"
	case errors.Is(err, ErrLocation):
		return "location"
	case errors.Is(err, ErrHandoffTransport):
		return "handoff_transport"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "unknown"
	}
}

// Hint returns an operator-facing next step for err.
func Hint(err error) string {
	switch {
	case errors.Is(err, ErrDevice):
		return "check the camera cable and that the device node still exists"
	case errors.Is(err, ErrEncoderStart):
		return "verify the ffmpeg binary is installed and runnable"
	case errors.Is(err, ErrEncoderFinalize):
		return "inspect the ffmpeg stderr tail and free disk space"
	case errors.Is(err, ErrSessionOverrun):
		return "lower the capture rate or resolution, or use a faster encoder preset"
	case errors.Is(err, ErrLocation):
		return "check gpsd is running and the receiver has a fix"
	case errors.Is(err, ErrHandoffTransport):
		return "check network reachability of the upload target"
	case errors.Is(err, ErrConfiguration):
		return "run 'lifesaver config validate'"
	default:
		return "check logs for details"
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{component, operation, message} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "failure"
	}
	return strings.Join(parts, ": ")
}
