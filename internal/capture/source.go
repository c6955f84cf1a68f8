package capture

import "context"

// Source yields frames in capture order. Read blocks until the next frame is
// available or ctx is done. Errors other than context cancellation are
// device failures and end the capture.
type Source interface {
	Read(ctx context.Context) (Frame, error)
	Format() Format
	Close() error
}
