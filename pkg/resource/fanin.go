package resource

import (
	"sync"
	"sync/atomic"
)

// fanIn collects n results and reports once: either all results, or the
// first error. The ok flag is sticky; once a failure has been reported, later
// results are handed to discard and dropped.
//
// gen guards against abandonment. Results that arrive after the owner bumped
// the generation are discarded without reporting.
type fanIn[T any] struct {
	mu        sync.Mutex
	total     int
	completed int
	ok        bool
	reported  bool
	results   []T

	gen  *atomic.Uint64
	want uint64

	onDone  func(results []T, err error)
	discard func(T)
}

func newFanIn[T any](total int, gen *atomic.Uint64, onDone func([]T, error), discard func(T)) *fanIn[T] {
	return &fanIn[T]{
		total:   total,
		ok:      true,
		results: make([]T, total),
		gen:     gen,
		want:    gen.Load(),
		onDone:  onDone,
		discard: discard,
	}
}

// complete records the result of slot i. It reports whether the result was
// accepted.
func (f *fanIn[T]) complete(i int, v T, err error) bool {
	f.mu.Lock()
	if f.reported || f.gen.Load() != f.want {
		f.mu.Unlock()
		if err == nil {
			f.drop(v)
		}
		return false
	}
	if err != nil {
		f.ok = false
		f.reported = true
		stale := f.results
		f.results = nil
		f.mu.Unlock()
		for _, r := range stale {
			f.drop(r)
		}
		f.onDone(nil, err)
		return false
	}
	f.results[i] = v
	f.completed++
	done := f.completed == f.total
	var results []T
	if done {
		f.reported = true
		results = f.results
		f.results = nil
	}
	f.mu.Unlock()

	if done {
		f.onDone(results, nil)
	}
	return true
}

// drain discards partial results of an abandoned batch. It is a no-op once
// the outcome has been reported.
func (f *fanIn[T]) drain() {
	f.mu.Lock()
	if f.reported {
		f.mu.Unlock()
		return
	}
	f.reported = true
	stale := f.results
	f.results = nil
	f.mu.Unlock()
	for _, r := range stale {
		f.drop(r)
	}
}

func (f *fanIn[T]) drop(v T) {
	if f.discard != nil {
		f.discard(v)
	}
}

// abandoned reports whether the owner has moved on.
func (f *fanIn[T]) abandoned() bool {
	return f.gen.Load() != f.want
}
