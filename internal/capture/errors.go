package capture

import "lifesaver/internal/services"

var errSourceClosed = services.Wrap(services.ErrDevice, "capture", "read", "source closed", nil)
