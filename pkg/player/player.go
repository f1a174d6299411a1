// Package player drives one native animation instance from creation to
// teardown.
//
// A Player owns the engine player handle and the scene data handle. All
// calls that touch either handle are serialized per instance, and teardown
// runs exactly once whether it is triggered by Destroy, by a downgrade or by
// the garbage collector. Engine events reach players through [Route], which
// re-homes them to the UI or background executor. Play completions are
// matched by token so a superseded play request never sees a completion.
package player

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/go-drift/effects/pkg/config"
	"github.com/go-drift/effects/pkg/downgrade"
	"github.com/go-drift/effects/pkg/engine"
	"github.com/go-drift/effects/pkg/errors"
	"github.com/go-drift/effects/pkg/platform"
	"github.com/go-drift/effects/pkg/resource"
	"github.com/go-drift/effects/pkg/scene"
	"github.com/go-drift/effects/pkg/telemetry"
)

// RepeatForever plays a frame range until Stop.
const RepeatForever = -1

// Params describe one animation.
type Params struct {
	// Source tags downloads with the caller's business type.
	Source string
	// URL identifies the animation; the source id is derived from it.
	URL string
	// Scene is the optional scene code used by the downgrade switches.
	Scene string
	// RepeatCount is the default repeat count; RepeatForever loops.
	RepeatCount int
	// TextOverrides replace image locators by key.
	TextOverrides map[string]string
	// ImageOverrides replace image payloads by key.
	ImageOverrides map[string]image.Image
	// FixTick renders with a fixed frame tick.
	FixTick bool
	// ShowPlaceholderFirst keeps the placeholder visible until the first frame.
	ShowPlaceholderFirst bool
}

// RenderSettings resolves per-resource creation flags. *config.Store
// implements it.
type RenderSettings interface {
	RenderLevel(level downgrade.DeviceLevel) int
	SurfaceScale(resourceID string) bool
	VideoHardDecode(resourceID string) bool
	FixTick() bool
}

// Bookkeeper records engine worker runs. *downgrade.Ledger implements it.
type Bookkeeper interface {
	RecordBegin(ctx context.Context, resourceID, thread string) error
	RecordFinish(ctx context.Context, resourceID, thread string) error
}

// Deps are the collaborators of a player. Only Engine is required.
type Deps struct {
	Engine engine.Engine
	// Switches gate creation. Nil never downgrades.
	Switches downgrade.Switches
	// Render defaults to the default configuration.
	Render RenderSettings
	// Loader defaults to a loader over Engine reading local files.
	Loader *resource.Loader
	// Ledger receives worker markers. Nil skips bookkeeping.
	Ledger Bookkeeper
	// Monitor defaults to telemetry.Nop.
	Monitor telemetry.Monitor
	// Tokens defaults to UUIDTokens.
	Tokens TokenSource
	// UI defaults to platform.UI.
	UI platform.Executor
	// Background defaults to platform.Background.
	Background platform.Executor
	Logger     *slog.Logger
}

// PreviewSize is the preview dimension declared by the scene.
type PreviewSize struct {
	Width  float64
	Height float64
}

// Player is one animation instance. All methods are safe for concurrent use.
type Player struct {
	params   Params
	sourceID string
	reason   string
	level    downgrade.DeviceLevel

	eng     engine.Engine
	render  RenderSettings
	loader  *resource.Loader
	ledger  Bookkeeper
	monitor telemetry.Monitor
	ui      platform.Executor
	bg      platform.Executor
	logger  *slog.Logger

	g          *guard
	tracker    *Tracker
	downgraded atomic.Bool
	cleanup    runtime.Cleanup

	mu                 sync.Mutex
	data               *scene.Data
	repeat             int
	initCb             func(error)
	listener           EventListener
	firstFrame         func()
	placeholder        Placeholder
	placeholderVisible bool
}

// New evaluates the downgrade switches and returns a player. When the
// switches fire, the player transitions to the downgraded state on the UI
// executor and refuses every request.
func New(params Params, deps Deps) *Player {
	p := &Player{
		params:             params,
		sourceID:           downgrade.SourceID(params.URL),
		eng:                deps.Engine,
		render:             deps.Render,
		loader:             deps.Loader,
		ledger:             deps.Ledger,
		monitor:            deps.Monitor,
		ui:                 deps.UI,
		bg:                 deps.Background,
		logger:             deps.Logger,
		tracker:            NewTracker(deps.Tokens),
		repeat:             params.RepeatCount,
		placeholderVisible: params.ShowPlaceholderFirst,
	}
	if p.render == nil {
		p.render = config.NewStore(nil)
	}
	if p.loader == nil {
		p.loader = &resource.Loader{Engine: deps.Engine}
	}
	if p.monitor == nil {
		p.monitor = telemetry.Nop{}
	}
	if p.ui == nil {
		p.ui = platform.UI
	}
	if p.bg == nil {
		p.bg = platform.Background
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With(slog.String("component", "player"), slog.String("source", p.sourceID))
	p.g = &guard{eng: deps.Engine}
	p.cleanup = runtime.AddCleanup(p, (*guard).teardown, p.g)
	deps.Engine.SetEventHandler(Route)

	out := downgrade.Evaluate(p.sourceID, params.Scene, deps.Switches)
	if out.ShouldDowngrade {
		p.reason = out.Reason
		p.logger.Info("downgrade decided", slog.String("reason", out.Reason))
		p.ui.Post(func() { p.applyDowngrade(out.Reason) })
	} else {
		p.level = out.DeviceLevel
	}
	return p
}

// SourceID returns the short identifier derived from the URL.
func (p *Player) SourceID() string { return p.sourceID }

// DowngradeReason returns the rule that downgraded the player at creation,
// or "" when the switches let it proceed.
func (p *Player) DowngradeReason() string { return p.reason }

// IsDowngraded reports whether the player fell back to its placeholder.
func (p *Player) IsDowngraded() bool {
	return p.reason != "" || p.downgraded.Load()
}

// State returns the lifecycle state of the native handles.
func (p *Player) State() State {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	return p.g.state
}

// AddExtension registers ext. Plugins are only collected at creation, so
// extensions should be added before Initialize.
func (p *Player) AddExtension(ext Extension) {
	if ext == nil {
		return
	}
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	if p.g.state == Destroying || p.g.state == Destroyed {
		return
	}
	p.g.extensions = append(p.g.extensions, ext)
}

// Initialize creates the native player, resolves every resource of data and
// binds the scene. cb is called once on the UI executor with nil on success.
func (p *Player) Initialize(ctx context.Context, data *scene.Data, cb func(error)) {
	if p.IsDowngraded() {
		p.postInit(cb, ErrDowngraded)
		return
	}
	if data == nil {
		p.postInit(cb, ErrNoScene)
		return
	}

	g := p.g
	g.mu.Lock()
	switch g.state {
	case Uninitialized:
	case Destroying, Destroyed:
		g.mu.Unlock()
		p.postInit(cb, ErrDestroyed)
		return
	default:
		g.mu.Unlock()
		p.postInit(cb, ErrDuplicateInit)
		return
	}
	g.state = Creating

	p.mu.Lock()
	p.data = data
	p.initCb = cb
	repeat := p.repeat
	p.mu.Unlock()

	// Registered before Create so no event is lost.
	id := nextInstanceID()
	register(id, p)
	g.id = id
	opts := engine.Options{
		Quality:      p.render.RenderLevel(p.level),
		SurfaceScale: p.render.SurfaceScale(p.sourceID),
		FixTick:      p.params.FixTick || p.render.FixTick(),
	}
	if err := p.eng.Create(id, opts); err != nil {
		unregister(id)
		g.id = 0
		g.mu.Unlock()
		p.logger.Error("create failed", slog.Int64("instance", int64(id)), slog.Any("error", err))
		p.failInit(errors.KindNative, errCreatePlayer)
		return
	}
	for _, ext := range g.extensions {
		if h, name := pluginOf(ext); h.Valid() {
			p.eng.AddPlugin(id, h, name)
		}
	}
	p.eng.SetRepeatCount(id, repeat)
	g.mu.Unlock()

	p.logger.Debug("player created", slog.Int64("instance", int64(id)), slog.Int("quality", opts.Quality))

	req := resource.Request{
		Instance:       id,
		Descriptors:    resource.Plan(data.Images, p.render.VideoHardDecode(p.sourceID)),
		BaseDir:        data.Dir,
		TextOverrides:  p.params.TextOverrides,
		ImageOverrides: p.params.ImageOverrides,
	}
	batch := p.loader.LoadAll(ctx, req, data.FontURLs(), p.resourcesLoaded)

	g.mu.Lock()
	if g.state == Creating && g.batch == nil {
		g.batch, batch = batch, nil
	}
	g.mu.Unlock()
	if batch != nil {
		// Already reported or torn down.
		batch.Abandon()
	}
}

// resourcesLoaded creates the scene data, commits the bundle and binds the
// scene to the player.
func (p *Player) resourcesLoaded(bundle *resource.Bundle, err error) {
	g := p.g
	g.mu.Lock()
	if g.state != Creating {
		g.mu.Unlock()
		bundle.ReleaseVideos(p.eng)
		return
	}
	g.batch = nil
	if err != nil {
		g.mu.Unlock()
		p.failInit(errors.KindFetch, err)
		return
	}

	p.mu.Lock()
	data := p.data
	p.mu.Unlock()

	var h engine.SceneHandle
	switch {
	case len(data.Bin) > 0:
		h = p.eng.CreateSceneData(data.Bin)
	case data.BinPath != "":
		h = p.eng.CreateSceneDataFromPath(data.BinPath)
	}
	if !h.Valid() {
		g.mu.Unlock()
		bundle.ReleaseVideos(p.eng)
		p.failInit(errors.KindNative, errCreateScene)
		return
	}
	g.scene = h

	for _, ext := range g.extensions {
		if err := sceneCreated(ext, h); err != nil {
			g.mu.Unlock()
			bundle.ReleaseVideos(p.eng)
			p.failInit(errors.KindCallback, err)
			return
		}
	}

	for key, payload := range bundle.Images {
		switch {
		case payload.IsVideo():
			p.eng.SetImageResourceVideo(h, key, payload.Video)
		case payload.Bytes != nil:
			p.eng.SetImageResource(h, key, payload.Bytes)
		case payload.Image != nil:
			p.eng.SetImageResourceBitmap(h, key, payload.Image)
		}
	}
	for _, f := range data.Fonts {
		if path, ok := bundle.Fonts[f.URL]; ok {
			p.eng.SetFontResource(h, f.Family, path)
		}
	}

	// The player owns the scene data from here on.
	p.eng.BindSceneData(g.id, h)
	g.scene = 0
	g.state = Ready
	id := g.id
	g.mu.Unlock()

	p.logger.Debug("player ready", slog.Int64("instance", int64(id)), slog.Int("images", bundle.Len()))
	p.mu.Lock()
	cb := p.initCb
	p.initCb = nil
	p.mu.Unlock()
	p.postInit(cb, nil)
}

func (p *Player) failInit(kind errors.ErrorKind, err error) {
	errors.Report(&errors.Error{
		Op:     "player.Initialize",
		Kind:   kind,
		Err:    err,
		Source: p.sourceID,
	})
	p.mu.Lock()
	cb := p.initCb
	p.initCb = nil
	p.mu.Unlock()
	p.Destroy()
	p.postInit(cb, err)
}

func (p *Player) postInit(cb func(error), err error) {
	if cb == nil {
		return
	}
	p.ui.Post(func() {
		errors.Guard("player.InitCallback", func() { cb(err) })
	})
}

// Play plays the whole scene with the default repeat count.
func (p *Player) Play(cb PlayCallback) {
	p.mu.Lock()
	repeat := p.repeat
	p.mu.Unlock()
	p.PlayFrames(0, p.FrameCount(), repeat, cb)
}

// PlayRepeat plays the whole scene n times; RepeatForever loops.
func (p *Player) PlayRepeat(n int, cb PlayCallback) {
	p.PlayFrames(0, p.FrameCount(), n, cb)
}

// PlayFrames plays frames [from, to] repeat times. It supersedes any
// earlier play request, whose callback will never be called. cb receives
// nil on completion, ErrDowngraded once downgraded, or a *RuntimeError.
func (p *Player) PlayFrames(from, to, repeat int, cb PlayCallback) {
	if p.IsDowngraded() {
		p.postPlay(cb, ErrDowngraded)
		return
	}
	p.mu.Lock()
	p.repeat = repeat
	p.mu.Unlock()

	g := p.g
	g.mu.Lock()
	if !g.live() {
		state := g.state
		g.mu.Unlock()
		if state == Uninitialized {
			p.postPlay(cb, ErrNotReady)
		} else {
			p.postPlay(cb, ErrDestroyed)
		}
		return
	}
	token := p.tracker.Begin(cb)
	p.eng.SetRepeatCount(g.id, repeat)
	p.eng.PlayFrameRange(g.id, from, to, token, true)
	g.mu.Unlock()
	p.logger.Debug("play", slog.Int("from", from), slog.Int("to", to), slog.Int("repeat", repeat), slog.String("token", token))
}

func (p *Player) postPlay(cb PlayCallback, err error) {
	if cb == nil {
		return
	}
	p.ui.Post(func() {
		errors.Guard("player.PlayCallback", func() { cb(err) })
	})
}

// Stop stops playback. No-op once downgraded or destroyed.
func (p *Player) Stop() {
	if p.IsDowngraded() {
		return
	}
	p.g.do(p.eng.Stop)
}

// Pause pauses playback. No-op once downgraded or destroyed.
func (p *Player) Pause() {
	if p.IsDowngraded() {
		return
	}
	p.g.do(p.eng.Pause)
}

// Resume resumes paused playback. No-op once downgraded or destroyed.
func (p *Player) Resume() {
	if p.IsDowngraded() {
		return
	}
	p.g.do(p.eng.Resume)
}

// SurfaceCreated hands a render target to the engine.
func (p *Player) SurfaceCreated(s engine.Surface) {
	p.g.do(func(id engine.InstanceID) { p.eng.SetupSurface(id, s) })
}

// SurfaceResized forwards a size change of the render target.
func (p *Player) SurfaceResized(width, height int) {
	p.g.do(func(id engine.InstanceID) { p.eng.ResizeSurface(id, width, height) })
}

// SurfaceDestroyed withdraws the render target.
func (p *Player) SurfaceDestroyed() {
	p.g.do(p.eng.DestroySurface)
}

// UpdateVariable swaps the image of the template slot declared under key.
// It reports false when img is nil, key is not a template slot, or the
// player is not live.
func (p *Player) UpdateVariable(key string, img image.Image) bool {
	if img == nil {
		p.logger.Warn("update variable without image", slog.String("key", key))
		return false
	}
	if p.IsDowngraded() {
		return false
	}
	p.mu.Lock()
	data := p.data
	p.mu.Unlock()
	if data == nil {
		return false
	}
	idx := data.TemplateIndex(key)
	if idx < 0 {
		p.logger.Warn("update variable without template", slog.String("key", key))
		return false
	}
	var ok bool
	p.g.do(func(id engine.InstanceID) { ok = p.eng.UpdateVariableImage(id, idx, img) })
	return ok
}

// Destroy tears down the native handles, notifies extensions and forgets
// every callback. It is idempotent and safe from any goroutine.
func (p *Player) Destroy() {
	exts, ok := p.g.destroy()
	if !ok {
		return
	}
	p.cleanup.Stop()
	notifyDestroy(exts)
	p.tracker.Clear()
	p.mu.Lock()
	p.initCb = nil
	p.listener = nil
	p.firstFrame = nil
	p.mu.Unlock()
	p.logger.Debug("player destroyed")
}

// applyDowngrade moves the player to the downgraded state. Only the first
// call has an effect. It runs on the UI executor.
func (p *Player) applyDowngrade(reason string) {
	if !p.downgraded.CompareAndSwap(false, true) {
		return
	}
	errors.Report(&errors.Error{
		Op:     "player.downgrade",
		Kind:   errors.KindDowngrade,
		Err:    fmt.Errorf("%s", reason),
		Source: p.sourceID,
	})
	p.showPlaceholder(true)

	p.mu.Lock()
	cb := p.initCb
	p.initCb = nil
	p.mu.Unlock()
	p.Destroy()
	if cb != nil {
		errors.Guard("player.InitCallback", func() { cb(ErrDowngraded) })
	}
}

// AspectRatio returns the scene aspect ratio, or 0 before Initialize.
func (p *Player) AspectRatio() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return 0
	}
	return p.data.Aspect
}

// PreviewSize returns the preview size declared by the scene.
func (p *Player) PreviewSize() PreviewSize {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return PreviewSize{}
	}
	return PreviewSize{Width: float64(p.data.PreviewSize[0]), Height: float64(p.data.PreviewSize[1])}
}

// DurationSeconds returns the scene duration.
func (p *Player) DurationSeconds() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return 0
	}
	return p.data.Duration
}

// FrameCount returns the number of engine frames in the scene.
func (p *Player) FrameCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data == nil {
		return 0
	}
	return p.data.FrameCount()
}

// SetEventListener installs the receiver of interactive item messages.
func (p *Player) SetEventListener(l EventListener) {
	p.mu.Lock()
	p.listener = l
	p.mu.Unlock()
}

// OnFirstFrame installs a callback run once on the UI executor when the
// first frame is on screen.
func (p *Player) OnFirstFrame(fn func()) {
	p.mu.Lock()
	p.firstFrame = fn
	p.mu.Unlock()
}

// SetPlaceholder installs the placeholder view and applies the current
// visibility to it.
func (p *Player) SetPlaceholder(v Placeholder) {
	p.mu.Lock()
	p.placeholder = v
	visible := p.placeholderVisible
	p.mu.Unlock()
	if v != nil {
		errors.Guard("player.Placeholder", func() { v.SetVisible(visible) })
	}
}

func (p *Player) showPlaceholder(visible bool) {
	p.mu.Lock()
	p.placeholderVisible = visible
	v := p.placeholder
	p.mu.Unlock()
	if v != nil {
		errors.Guard("player.Placeholder", func() { v.SetVisible(visible) })
	}
}
