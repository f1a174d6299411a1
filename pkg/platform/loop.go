package platform

import (
	"sync"
	"time"

	"github.com/go-drift/effects/pkg/errors"
)

// Looper is a single goroutine task queue that stands in for a UI thread on
// headless hosts. Tasks run in the order they were posted.
type Looper struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewLooper starts a looper goroutine.
func NewLooper() *Looper {
	l := &Looper{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Install registers the looper as the process UI dispatch function.
func (l *Looper) Install() {
	RegisterDispatch(func(cb func()) {
		if err := l.Submit(cb); err != nil {
			Background.Post(cb)
		}
	})
}

// Post queues fn. Tasks posted after Close are dropped.
func (l *Looper) Post(fn func()) {
	_ = l.Submit(fn)
}

// PostDelayed queues fn after d.
func (l *Looper) PostDelayed(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { l.Post(fn) })
}

// Submit queues fn and reports ErrClosed when the looper has stopped.
func (l *Looper) Submit(fn func()) error {
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return nil
}

// Sync blocks until every task queued before the call has run.
func (l *Looper) Sync() {
	ch := make(chan struct{})
	if l.Submit(func() { close(ch) }) != nil {
		return
	}
	<-ch
}

// Close drains the queue and stops the looper. It is safe to call more than once.
func (l *Looper) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		l.cond.Signal()
	}
	l.mu.Unlock()
	<-l.done
}

func (l *Looper) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.closed {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		func() {
			defer errors.Recover("platform.Looper")
			task()
		}()
	}
}
