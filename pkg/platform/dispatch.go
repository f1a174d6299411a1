package platform

import (
	"log/slog"
	"sync"
	"time"
)

var (
	dispatchMu   sync.RWMutex
	dispatchFunc func(callback func())
)

// RegisterDispatch sets the dispatch function used to schedule callbacks on the UI thread.
// Hosts call this once during startup. Headless hosts can install a [Looper].
func RegisterDispatch(fn func(callback func())) {
	dispatchMu.Lock()
	dispatchFunc = fn
	dispatchMu.Unlock()
}

// Dispatch schedules a callback to run on the UI thread.
// Returns true if the callback was successfully scheduled, false if no dispatch function
// is registered or the callback is nil.
func Dispatch(callback func()) bool {
	dispatchMu.RLock()
	fn := dispatchFunc
	dispatchMu.RUnlock()
	if fn == nil || callback == nil {
		return false
	}
	fn(callback)
	return true
}

// Executor runs callbacks on a particular execution context.
type Executor interface {
	// Post schedules fn to run as soon as the context is free.
	Post(fn func())
	// PostDelayed schedules fn to run after d has elapsed.
	PostDelayed(d time.Duration, fn func())
}

// UI is the UI-affine executor. It forwards to [Dispatch]; when no dispatch
// function is registered the callback runs on a background goroutine so that
// work is never silently lost.
var UI Executor = uiExecutor{}

type uiExecutor struct{}

func (uiExecutor) Post(fn func()) {
	if fn == nil {
		return
	}
	if !Dispatch(fn) {
		slog.Warn("no ui dispatch registered, running on background", slog.String("component", "platform"))
		Background.Post(fn)
	}
}

func (u uiExecutor) PostDelayed(d time.Duration, fn func()) {
	if fn == nil {
		return
	}
	time.AfterFunc(d, func() { u.Post(fn) })
}
