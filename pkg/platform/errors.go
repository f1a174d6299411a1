package platform

import "errors"

// Sentinel errors for platform operations.
var (
	// ErrClosed is returned when operating on a closed channel, stream or looper.
	ErrClosed = errors.New("platform: closed")

	// ErrNoDispatch is returned when no UI dispatch function is registered.
	ErrNoDispatch = errors.New("platform: no dispatch registered")
)
