package resource

import (
	"fmt"
	"sync"

	"github.com/go-drift/effects/pkg/engine"
	"github.com/go-drift/effects/pkg/fetch"
)

// videoSlot joins the handle returned by PrepareVideo with the completion
// callback, which the engine may invoke before PrepareVideo returns.
type videoSlot struct {
	mu       sync.Mutex
	handle   engine.VideoHandle
	started  bool
	answered bool
	ok       bool
	msg      string
}

func (l *Loader) prepareVideo(id engine.InstanceID, path string, d Descriptor, finish func(Payload, error), fail func(error)) {
	if l.Engine == nil {
		fail(fmt.Errorf("create video context fail"))
		return
	}

	slot := &videoSlot{}
	cb := func(ok bool, msg string) {
		slot.mu.Lock()
		if slot.answered {
			slot.mu.Unlock()
			return
		}
		slot.answered, slot.ok, slot.msg = true, ok, msg
		h, started := slot.handle, slot.started
		slot.mu.Unlock()
		if started {
			l.finishVideo(h, ok, msg, finish, fail)
		}
	}

	h := l.Engine.PrepareVideo(id, path, fetch.MD5String(path), d.Transparent, d.HWDecode, cb)
	if !h.Valid() {
		fail(fmt.Errorf("create video context fail"))
		return
	}

	slot.mu.Lock()
	slot.handle, slot.started = h, true
	answered, ok, msg := slot.answered, slot.ok, slot.msg
	slot.mu.Unlock()
	if answered {
		l.finishVideo(h, ok, msg, finish, fail)
	}
}

func (l *Loader) finishVideo(h engine.VideoHandle, ok bool, msg string, finish func(Payload, error), fail func(error)) {
	if ok {
		finish(Payload{Video: h}, nil)
		return
	}
	l.Engine.ReleaseVideo(h)
	if msg == "" {
		msg = "prepare video fail"
	}
	fail(fmt.Errorf("%s", msg))
}
