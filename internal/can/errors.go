package can

import "errors"

// ErrTransport is returned when a requested transport name has no
// registered constructor.
var ErrTransport = errors.New("can: unsupported transport")
