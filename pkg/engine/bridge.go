package engine

import (
	"bytes"
	"image"
	"image/png"
	"log/slog"
	"sync"

	"github.com/go-drift/effects/pkg/errors"
	"github.com/go-drift/effects/pkg/platform"
)

// Channel names used by BridgeEngine.
const (
	MethodChannelName = "effects/engine"
	EventChannelName  = "effects/engine/events"
	VideoChannelName  = "effects/engine/video"
)

// BridgeEngine drives a native engine living on the other side of the
// platform bridge. Every operation is a method call on [MethodChannelName];
// events arrive on [EventChannelName] and video preparation results on
// [VideoChannelName].
type BridgeEngine struct {
	channel *platform.MethodChannel
	events  *platform.Stream[Event]
	videos  *platform.Stream[videoResult]
	logger  *slog.Logger

	mu             sync.Mutex
	handler        EventHandler
	unsubscribe    []func()
	videoListening bool
	pending        map[VideoHandle]VideoCallback
	early          map[VideoHandle]videoResult
}

type videoResult struct {
	Video   VideoHandle
	OK      bool
	Message string
}

// NewBridgeEngine registers the engine channels with the platform bridge.
func NewBridgeEngine() *BridgeEngine {
	b := &BridgeEngine{
		channel: platform.NewMethodChannel(MethodChannelName),
		events:  platform.NewStream(platform.NewEventChannel(EventChannelName), parseEvent),
		videos:  platform.NewStream(platform.NewEventChannel(VideoChannelName), parseVideoResult),
		logger:  slog.Default().With(slog.String("component", "engine")),
		pending: make(map[VideoHandle]VideoCallback),
		early:   make(map[VideoHandle]videoResult),
	}
	return b
}

func parseEvent(data any) (Event, error) {
	m, ok := data.(map[string]any)
	if !ok {
		return Event{}, &errors.ParseError{Field: EventChannelName, DataType: "Event", Got: data}
	}
	id, ok := platform.Int64(m["id"])
	if !ok {
		return Event{}, &errors.ParseError{Field: "id", DataType: "InstanceID", Got: m["id"]}
	}
	var kind EventKind
	switch t := m["type"].(type) {
	case string:
		kind, _ = ParseEventKind(t)
	default:
		n, _ := platform.Int64(t)
		kind = EventKind(n)
	}
	return Event{Instance: InstanceID(id), Kind: kind, Payload: platform.String(m["msg"])}, nil
}

func parseVideoResult(data any) (videoResult, error) {
	m, ok := data.(map[string]any)
	if !ok {
		return videoResult{}, &errors.ParseError{Field: VideoChannelName, DataType: "videoResult", Got: data}
	}
	v, ok := platform.Int64(m["video"])
	if !ok {
		return videoResult{}, &errors.ParseError{Field: "video", DataType: "VideoHandle", Got: m["video"]}
	}
	return videoResult{
		Video:   VideoHandle(v),
		OK:      platform.Bool(m["ok"]),
		Message: platform.String(m["msg"]),
	}, nil
}

func (b *BridgeEngine) call(method string, args map[string]any) any {
	result, err := b.channel.Invoke(method, args)
	if err != nil {
		errors.Report(&errors.Error{
			Op:   "engine." + method,
			Kind: errors.KindNative,
			Err:  err,
		})
		return nil
	}
	return result
}

func (b *BridgeEngine) handle(method string, args map[string]any) int64 {
	n, _ := platform.Int64(b.call(method, args))
	return n
}

func (b *BridgeEngine) Create(id InstanceID, opts Options) error {
	_, err := b.channel.Invoke("create", map[string]any{
		"id":           int64(id),
		"quality":      opts.Quality,
		"surfaceScale": opts.SurfaceScale,
		"fixTick":      opts.FixTick,
	})
	return err
}

func (b *BridgeEngine) Destroy(id InstanceID) {
	b.call("destroy", map[string]any{"id": int64(id)})
}

func (b *BridgeEngine) SetRepeatCount(id InstanceID, n int) {
	b.call("setRepeatCount", map[string]any{"id": int64(id), "count": n})
}

func (b *BridgeEngine) PlayFrameRange(id InstanceID, from, to int, token string, async bool) {
	b.call("playFrameRange", map[string]any{
		"id":    int64(id),
		"from":  from,
		"to":    to,
		"token": token,
		"async": async,
	})
}

func (b *BridgeEngine) Stop(id InstanceID)   { b.call("stop", map[string]any{"id": int64(id)}) }
func (b *BridgeEngine) Pause(id InstanceID)  { b.call("pause", map[string]any{"id": int64(id)}) }
func (b *BridgeEngine) Resume(id InstanceID) { b.call("resume", map[string]any{"id": int64(id)}) }

func (b *BridgeEngine) SetupSurface(id InstanceID, s Surface) {
	b.call("setupSurface", map[string]any{
		"id":      int64(id),
		"surface": s.Handle,
		"width":   s.Width,
		"height":  s.Height,
	})
}

func (b *BridgeEngine) ResizeSurface(id InstanceID, width, height int) {
	b.call("resizeSurface", map[string]any{"id": int64(id), "width": width, "height": height})
}

func (b *BridgeEngine) DestroySurface(id InstanceID) {
	b.call("destroySurface", map[string]any{"id": int64(id)})
}

func (b *BridgeEngine) CreateSceneData(data []byte) SceneHandle {
	return SceneHandle(b.handle("createSceneData", map[string]any{"data": data}))
}

func (b *BridgeEngine) CreateSceneDataFromPath(path string) SceneHandle {
	return SceneHandle(b.handle("createSceneDataFromPath", map[string]any{"path": path}))
}

func (b *BridgeEngine) DestroySceneData(h SceneHandle) {
	b.call("destroySceneData", map[string]any{"scene": int64(h)})
}

func (b *BridgeEngine) BindSceneData(id InstanceID, h SceneHandle) {
	b.call("bindSceneData", map[string]any{"id": int64(id), "scene": int64(h)})
}

func (b *BridgeEngine) SetImageResource(h SceneHandle, key string, data []byte) {
	b.call("setImageResource", map[string]any{"scene": int64(h), "key": key, "data": data})
}

func (b *BridgeEngine) SetImageResourceBitmap(h SceneHandle, key string, img image.Image) {
	data, err := encodePNG(img)
	if err != nil {
		errors.Report(&errors.Error{Op: "engine.setImageResourceBitmap", Kind: errors.KindNative, Source: key, Err: err})
		return
	}
	b.call("setImageResourceBitmap", map[string]any{"scene": int64(h), "key": key, "png": data})
}

func (b *BridgeEngine) SetImageResourceVideo(h SceneHandle, key string, v VideoHandle) {
	b.call("setImageResourceVideo", map[string]any{"scene": int64(h), "key": key, "video": int64(v)})
}

func (b *BridgeEngine) SetFontResource(h SceneHandle, family, path string) {
	b.call("setFontResource", map[string]any{"scene": int64(h), "family": family, "path": path})
}

func (b *BridgeEngine) UpdateVariableImage(id InstanceID, index int, img image.Image) bool {
	data, err := encodePNG(img)
	if err != nil {
		return false
	}
	return platform.Bool(b.call("updateVariableImage", map[string]any{"id": int64(id), "index": index, "png": data}))
}

func (b *BridgeEngine) AddPlugin(id InstanceID, p PluginHandle, name string) {
	b.call("addPlugin", map[string]any{"id": int64(id), "plugin": int64(p), "name": name})
}

func (b *BridgeEngine) PrepareVideo(id InstanceID, path, hash string, transparent, hwDecode bool, cb VideoCallback) VideoHandle {
	b.ensureVideoListener()

	v := VideoHandle(b.handle("prepareVideo", map[string]any{
		"id":          int64(id),
		"path":        path,
		"hash":        hash,
		"transparent": transparent,
		"hwDecode":    hwDecode,
	}))
	if !v.Valid() || cb == nil {
		return v
	}

	// The result may already have arrived while the call was in flight.
	b.mu.Lock()
	r, early := b.early[v]
	if early {
		delete(b.early, v)
	} else {
		b.pending[v] = cb
	}
	b.mu.Unlock()
	if early {
		cb(r.OK, r.Message)
	}
	return v
}

func (b *BridgeEngine) ReleaseVideo(v VideoHandle) {
	b.mu.Lock()
	delete(b.pending, v)
	delete(b.early, v)
	b.mu.Unlock()
	b.call("releaseVideo", map[string]any{"video": int64(v)})
}

func (b *BridgeEngine) Version() string {
	return platform.String(b.call("version", nil))
}

// SetEventHandler installs h and starts the native event stream. Passing nil
// stops delivery.
func (b *BridgeEngine) SetEventHandler(h EventHandler) {
	b.mu.Lock()
	b.handler = h
	needListen := h != nil && len(b.unsubscribe) == 0
	b.mu.Unlock()

	if needListen {
		unsub := b.events.Listen(b.dispatch)
		b.mu.Lock()
		b.unsubscribe = append(b.unsubscribe, unsub)
		b.mu.Unlock()
	}
}

func (b *BridgeEngine) dispatch(ev Event) {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	if h == nil {
		b.logger.Debug("event without handler", slog.String("event", ev.String()))
		return
	}
	h(ev)
}

func (b *BridgeEngine) ensureVideoListener() {
	b.mu.Lock()
	if b.videoListening {
		b.mu.Unlock()
		return
	}
	b.videoListening = true
	b.mu.Unlock()

	unsub := b.videos.Listen(b.completeVideo)
	b.mu.Lock()
	b.unsubscribe = append(b.unsubscribe, unsub)
	b.mu.Unlock()
}

func (b *BridgeEngine) completeVideo(r videoResult) {
	b.mu.Lock()
	cb, ok := b.pending[r.Video]
	if ok {
		delete(b.pending, r.Video)
	} else {
		b.early[r.Video] = r
	}
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("video result before registration", slog.Int64("video", int64(r.Video)))
		return
	}
	cb(r.OK, r.Message)
}

// Close stops listening for native events.
func (b *BridgeEngine) Close() {
	b.mu.Lock()
	unsubs := b.unsubscribe
	b.unsubscribe = nil
	b.handler = nil
	b.videoListening = false
	b.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

func encodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, ErrNilImage
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
