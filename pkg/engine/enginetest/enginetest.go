// Package enginetest provides a recording engine.Engine for tests and dry runs.
package enginetest

import (
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/go-drift/effects/pkg/engine"
)

// Call is one recorded engine invocation.
type Call struct {
	Method string
	Args   []any
}

func (c Call) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		switch v := a.(type) {
		case string:
			parts[i] = fmt.Sprintf("%q", v)
		case []byte:
			parts[i] = fmt.Sprintf("<%d bytes>", len(v))
		case image.Image:
			b := v.Bounds()
			parts[i] = fmt.Sprintf("<image %dx%d>", b.Dx(), b.Dy())
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return c.Method + "(" + strings.Join(parts, ", ") + ")"
}

// VideoMode controls how PrepareVideo completes.
type VideoMode int

const (
	// VideoSucceed completes preparation successfully on a new goroutine.
	VideoSucceed VideoMode = iota
	// VideoFail completes preparation with an error on a new goroutine.
	VideoFail
	// VideoManual leaves preparation pending until CompleteVideo is called.
	VideoManual
	// VideoRefuse returns an invalid handle.
	VideoRefuse
)

// Engine is an in-memory engine.Engine that records every call.
// The zero value is not usable; call New.
type Engine struct {
	mu      sync.Mutex
	calls   []Call
	handler engine.EventHandler

	nextScene int64
	nextVideo int64
	videos    map[engine.VideoHandle]engine.VideoCallback
	scenes    map[engine.SceneHandle]bool

	// CreateErr, when set, is returned from Create.
	CreateErr error
	// FailSceneData makes scene creation return an invalid handle.
	FailSceneData bool
	// Video selects the PrepareVideo behavior.
	Video VideoMode
	// UpdateResult is returned from UpdateVariableImage.
	UpdateResult bool
	// EngineVersion is returned from Version. Defaults to "v1.0.0".
	EngineVersion string
}

var _ engine.Engine = (*Engine)(nil)

// New returns an empty recording engine.
func New() *Engine {
	return &Engine{
		videos:        make(map[engine.VideoHandle]engine.VideoCallback),
		scenes:        make(map[engine.SceneHandle]bool),
		UpdateResult:  true,
		EngineVersion: "v1.0.0",
	}
}

func (e *Engine) record(method string, args ...any) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Method: method, Args: args})
	e.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, len(e.calls))
	copy(out, e.calls)
	return out
}

// Methods returns the recorded method names in order.
func (e *Engine) Methods() []string {
	calls := e.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}

// Count returns how many times method was called.
func (e *Engine) Count(method string) int {
	n := 0
	for _, c := range e.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Find returns the recorded calls of method.
func (e *Engine) Find(method string) []Call {
	var out []Call
	for _, c := range e.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.calls = nil
	e.mu.Unlock()
}

// LiveScenes returns how many scene handles were created and not destroyed
// or bound.
func (e *Engine) LiveScenes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.scenes)
}

// Emit delivers ev to the installed event handler on the calling goroutine.
func (e *Engine) Emit(ev engine.Event) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// CompleteVideo finishes a pending preparation started in VideoManual mode.
// It reports false when v has no pending callback.
func (e *Engine) CompleteVideo(v engine.VideoHandle, ok bool, message string) bool {
	e.mu.Lock()
	cb := e.videos[v]
	delete(e.videos, v)
	e.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(ok, message)
	return true
}

// PendingVideos returns the handles still waiting for CompleteVideo.
func (e *Engine) PendingVideos() []engine.VideoHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.VideoHandle, 0, len(e.videos))
	for v := range e.videos {
		out = append(out, v)
	}
	return out
}

func (e *Engine) Create(id engine.InstanceID, opts engine.Options) error {
	e.record("Create", id, opts.Quality, opts.SurfaceScale, opts.FixTick)
	return e.CreateErr
}

func (e *Engine) Destroy(id engine.InstanceID) { e.record("Destroy", id) }

func (e *Engine) SetRepeatCount(id engine.InstanceID, n int) { e.record("SetRepeatCount", id, n) }

func (e *Engine) PlayFrameRange(id engine.InstanceID, from, to int, token string, async bool) {
	e.record("PlayFrameRange", id, from, to, token, async)
}

func (e *Engine) Stop(id engine.InstanceID)   { e.record("Stop", id) }
func (e *Engine) Pause(id engine.InstanceID)  { e.record("Pause", id) }
func (e *Engine) Resume(id engine.InstanceID) { e.record("Resume", id) }

func (e *Engine) SetupSurface(id engine.InstanceID, s engine.Surface) {
	e.record("SetupSurface", id, s.Width, s.Height)
}

func (e *Engine) ResizeSurface(id engine.InstanceID, width, height int) {
	e.record("ResizeSurface", id, width, height)
}

func (e *Engine) DestroySurface(id engine.InstanceID) { e.record("DestroySurface", id) }

func (e *Engine) newScene() engine.SceneHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailSceneData {
		return 0
	}
	e.nextScene++
	h := engine.SceneHandle(100 + e.nextScene)
	e.scenes[h] = true
	return h
}

func (e *Engine) CreateSceneData(data []byte) engine.SceneHandle {
	h := e.newScene()
	e.record("CreateSceneData", data, h)
	return h
}

func (e *Engine) CreateSceneDataFromPath(path string) engine.SceneHandle {
	h := e.newScene()
	e.record("CreateSceneDataFromPath", path, h)
	return h
}

func (e *Engine) DestroySceneData(h engine.SceneHandle) {
	e.mu.Lock()
	delete(e.scenes, h)
	e.mu.Unlock()
	e.record("DestroySceneData", h)
}

func (e *Engine) BindSceneData(id engine.InstanceID, h engine.SceneHandle) {
	e.mu.Lock()
	delete(e.scenes, h)
	e.mu.Unlock()
	e.record("BindSceneData", id, h)
}

func (e *Engine) SetImageResource(h engine.SceneHandle, key string, data []byte) {
	e.record("SetImageResource", h, key, data)
}

func (e *Engine) SetImageResourceBitmap(h engine.SceneHandle, key string, img image.Image) {
	e.record("SetImageResourceBitmap", h, key, img)
}

func (e *Engine) SetImageResourceVideo(h engine.SceneHandle, key string, v engine.VideoHandle) {
	e.record("SetImageResourceVideo", h, key, v)
}

func (e *Engine) SetFontResource(h engine.SceneHandle, family, path string) {
	e.record("SetFontResource", h, family, path)
}

func (e *Engine) UpdateVariableImage(id engine.InstanceID, index int, img image.Image) bool {
	e.record("UpdateVariableImage", id, index, img)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.UpdateResult
}

func (e *Engine) AddPlugin(id engine.InstanceID, p engine.PluginHandle, name string) {
	e.record("AddPlugin", id, p, name)
}

func (e *Engine) PrepareVideo(id engine.InstanceID, path, hash string, transparent, hwDecode bool, cb engine.VideoCallback) engine.VideoHandle {
	e.mu.Lock()
	mode := e.Video
	var v engine.VideoHandle
	if mode != VideoRefuse {
		e.nextVideo++
		v = engine.VideoHandle(500 + e.nextVideo)
		if mode == VideoManual {
			e.videos[v] = cb
		}
	}
	e.mu.Unlock()
	e.record("PrepareVideo", id, path, transparent, hwDecode, v)

	switch mode {
	case VideoSucceed:
		go cb(true, "")
	case VideoFail:
		go cb(false, "decoder unavailable")
	}
	return v
}

func (e *Engine) ReleaseVideo(v engine.VideoHandle) {
	e.mu.Lock()
	delete(e.videos, v)
	e.mu.Unlock()
	e.record("ReleaseVideo", v)
}

func (e *Engine) Version() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.EngineVersion
}

func (e *Engine) SetEventHandler(h engine.EventHandler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}
