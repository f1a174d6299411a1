package player

import "errors"

// Errors delivered to initialization and play callbacks.
var (
	// ErrDowngraded is reported to every play request once the player fell
	// back to its placeholder.
	ErrDowngraded = errors.New("downgrade")

	// ErrDestroyed is reported for requests issued after Destroy.
	ErrDestroyed = errors.New("player: destroyed")

	// ErrNotReady is reported for play requests issued before Initialize.
	ErrNotReady = errors.New("player: not initialized")

	// ErrDuplicateInit is reported when Initialize is called more than once.
	ErrDuplicateInit = errors.New("player: already initialized")

	// ErrNoScene is reported when Initialize is given no scene data.
	ErrNoScene = errors.New("player: scene data is nil")

	errCreatePlayer = errors.New("create player fail")
	errCreateScene  = errors.New("create scene data fail")
)

// RuntimeError is delivered to the active play request when the engine
// reports a fatal failure. The player downgrades right after.
type RuntimeError struct {
	Message string
}

func (e *RuntimeError) Error() string { return e.Message }
