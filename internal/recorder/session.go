package recorder

import (
	"context"
	"time"

	"lifesaver/internal/capture"
	"lifesaver/internal/encoder"
)

// Status is a session lifecycle state.
type Status string

const (
	StatusOpen          Status = "open"
	StatusDraining      Status = "draining"
	StatusRecordingLive Status = "recording_live"
	StatusClosed        Status = "closed"
)

// Session is a point-in-time view of one recording session. Values are
// copies; observers may retain them.
type Session struct {
	ID             string
	CorrelationID  string
	Status         Status
	Failed         bool
	Err            error
	Dir            string
	VideoPath      string
	IncompletePath string
	TriggeredAt    time.Time
	ClosedAt       time.Time
	PreRollFrames  int
	LiveFrames     int
	FramesWritten  int64
	Fixes          int
}

// EncodeSession is the encoder surface the worker drives. *encoder.Session
// implements it.
type EncodeSession interface {
	Push(frame capture.Frame) error
	Close(ctx context.Context) (encoder.Result, error)
	Abort()
}

// EncoderFactory opens an encode writing to outputPath.
type EncoderFactory func(ctx context.Context, outputPath string) (EncodeSession, error)

// EdgeDetector reports debounced trigger edges. *trigger.Monitor implements it.
type EdgeDetector interface {
	PollEdge(ctx context.Context) (bool, error)
}

// Stats are cumulative recorder counters.
type Stats struct {
	FramesCaptured    uint64
	SessionsStarted   uint64
	SessionsSucceeded uint64
	SessionsFailed    uint64
	TriggersIgnored   uint64
	Overruns          uint64
	BufferedFrames    int
	BufferCapacity    int
	Active            *Session
}
