package handoff

import (
	"time"

	"lifesaver/internal/location"
)

// Delivery describes one finished event ready to leave the device.
type Delivery struct {
	SessionID     string
	CorrelationID string
	Dir           string
	VideoPath     string
	Frames        int64
	TriggeredAt   time.Time
	Fixes         []location.Fix
	// LocationErr is set when fewer fixes than requested were acquired.
	LocationErr error
}
