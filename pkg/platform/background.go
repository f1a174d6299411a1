package platform

import (
	"sync"
	"time"

	"github.com/go-drift/effects/pkg/errors"
)

// Background is the general purpose executor for I/O and computation.
// Every task gets its own goroutine; panics are recovered and reported.
var Background Executor = &backgroundExecutor{}

type backgroundExecutor struct {
	wg sync.WaitGroup
}

func (b *backgroundExecutor) Post(fn func()) {
	if fn == nil {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer errors.Recover("platform.Background")
		fn()
	}()
}

func (b *backgroundExecutor) PostDelayed(d time.Duration, fn func()) {
	if fn == nil {
		return
	}
	time.AfterFunc(d, func() { b.Post(fn) })
}

// WaitBackground blocks until every task posted to [Background] so far has
// returned. Delayed tasks count only once their timer has fired.
func WaitBackground() {
	if b, ok := Background.(*backgroundExecutor); ok {
		b.wg.Wait()
	}
}

// SyncExecutor runs callbacks inline on the calling goroutine. Delays are
// ignored. It is intended for tests that need deterministic ordering.
type SyncExecutor struct{}

// Post runs fn immediately.
func (SyncExecutor) Post(fn func()) {
	if fn != nil {
		fn()
	}
}

// PostDelayed runs fn immediately.
func (SyncExecutor) PostDelayed(_ time.Duration, fn func()) {
	if fn != nil {
		fn()
	}
}
