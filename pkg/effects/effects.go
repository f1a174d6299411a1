// Package effects loads an animation scene from a URL and plays it.
//
// It is the high level entry point: one [Effects] value owns at most one
// [player.Player]. LoadScene fetches and extracts the scene package, parses
// its manifest and initializes the player; the playback methods forward to
// the player once it exists and are no-ops before.
//
//	fx := effects.New(effects.Params{URL: url}, effects.Options{})
//	fx.LoadScene(ctx, func(ok bool, msg string) {
//		if ok {
//			fx.Play(1, nil)
//		}
//	})
package effects

import (
	"context"
	"image"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-drift/effects/pkg/config"
	"github.com/go-drift/effects/pkg/downgrade"
	"github.com/go-drift/effects/pkg/engine"
	"github.com/go-drift/effects/pkg/errors"
	"github.com/go-drift/effects/pkg/fetch"
	"github.com/go-drift/effects/pkg/platform"
	"github.com/go-drift/effects/pkg/player"
	"github.com/go-drift/effects/pkg/resource"
	"github.com/go-drift/effects/pkg/scene"
	"github.com/go-drift/effects/pkg/telemetry"
)

// Biz tags every download issued by this package.
const Biz = "effects"

// Results reported by LoadScene before a player is involved.
const (
	MsgDuplicated = "loadScene duplicated"
	MsgNoURL      = "url is null"
)

// Callback receives a result: ok with an empty message, or the failure reason.
type Callback func(ok bool, msg string)

// Params describe the scene to load.
type Params struct {
	// URL is a zip package (http or https) or a local scene directory.
	URL string
	// Scene is the optional scene code for the downgrade switches.
	Scene string
	// Variables replace image locators by key, typically with text:// forms.
	Variables map[string]string
	// VariableImages replace image payloads by key.
	VariableImages map[string]image.Image
	// Placeholder is shown when the player downgrades.
	Placeholder player.Placeholder
	// ValidUntil is the package validity timestamp; a newer one forces a
	// fresh download.
	ValidUntil time.Time
	// MD5 verifies the downloaded package when set.
	MD5 string
	// RepeatCount is the default repeat count of Play.
	RepeatCount int
	FixTick     bool
}

// Options are the collaborators. All are optional.
type Options struct {
	// Engine defaults to an [engine.BridgeEngine] over the installed native
	// bridge, closed by Destroy.
	Engine engine.Engine
	// Config supplies switches and render settings. Defaults to built-in values.
	Config *config.Store
	// Files downloads network locators. Defaults to the default cache.
	Files *fetch.Files
	// Ledger backs the crash guard and receives worker markers.
	Ledger *downgrade.Ledger
	// Monitor defaults to telemetry.Nop.
	Monitor telemetry.Monitor
	// Extensions are added to the player before initialization.
	Extensions []player.Extension
	// Tokens defaults to UUIDTokens.
	Tokens     player.TokenSource
	UI         platform.Executor
	Background platform.Executor
	Logger     *slog.Logger
}

// Effects owns the player of one scene.
type Effects struct {
	params Params
	opts   Options
	logger *slog.Logger

	bridge *engine.BridgeEngine

	mu     sync.Mutex
	player *player.Player
}

// New returns an Effects for params. Nothing is loaded until LoadScene.
func New(params Params, opts Options) *Effects {
	var bridge *engine.BridgeEngine
	if opts.Engine == nil {
		bridge = engine.NewBridgeEngine()
		opts.Engine = bridge
	}
	if opts.Config == nil {
		opts.Config = config.NewStore(nil)
	}
	if opts.UI == nil {
		opts.UI = platform.UI
	}
	if opts.Background == nil {
		opts.Background = platform.Background
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Effects{
		params: params,
		opts:   opts,
		logger: opts.Logger.With(slog.String("component", "effects")),
		bridge: bridge,
	}
}

func (e *Effects) files() (*fetch.Files, error) {
	if e.opts.Files != nil {
		return e.opts.Files, nil
	}
	cfg := e.opts.Config.Current()
	cache, err := fetch.NewCache(cfg.Fetch.CacheDir)
	if err != nil {
		return nil, err
	}
	e.opts.Files = fetch.NewFiles(cache, fetch.NewDownloader(cfg.Fetch.Timeout))
	return e.opts.Files, nil
}

func (e *Effects) deps(files *fetch.Files) player.Deps {
	eng := e.opts.Engine
	policy := &downgrade.Policy{
		Settings:      e.opts.Config.PolicySettings,
		EngineVersion: eng.Version,
	}
	deps := player.Deps{
		Engine:   eng,
		Switches: downgrade.Sources{Flags: e.opts.Config, Decider: policy},
		Render:   e.opts.Config,
		Loader: &resource.Loader{
			Engine:     eng,
			Downloader: files,
			Biz:        Biz,
			Executor:   e.opts.Background,
		},
		Monitor:    e.opts.Monitor,
		Tokens:     e.opts.Tokens,
		UI:         e.opts.UI,
		Background: e.opts.Background,
		Logger:     e.opts.Logger,
	}
	if e.opts.Ledger != nil {
		policy.Ledger = e.opts.Ledger
		deps.Ledger = e.opts.Ledger
	}
	return deps
}

// LoadScene creates the player and initializes it with the scene at the
// configured URL. cb is called once on the UI executor.
func (e *Effects) LoadScene(ctx context.Context, cb Callback) {
	e.mu.Lock()
	if e.player != nil {
		e.mu.Unlock()
		e.post(cb, false, MsgDuplicated)
		return
	}
	if e.params.URL == "" {
		e.mu.Unlock()
		e.post(cb, false, MsgNoURL)
		return
	}
	files, err := e.files()
	if err != nil {
		e.mu.Unlock()
		e.post(cb, false, err.Error())
		return
	}
	p := player.New(player.Params{
		Source:         Biz,
		URL:            e.params.URL,
		Scene:          e.params.Scene,
		RepeatCount:    e.params.RepeatCount,
		TextOverrides:  e.params.Variables,
		ImageOverrides: e.params.VariableImages,
		FixTick:        e.params.FixTick,
	}, e.deps(files))
	for _, ext := range e.opts.Extensions {
		p.AddExtension(ext)
	}
	p.SetPlaceholder(e.params.Placeholder)
	e.player = p
	e.mu.Unlock()

	if p.IsDowngraded() {
		e.logger.Info("scene downgraded", slog.String("reason", p.DowngradeReason()))
		e.post(cb, false, player.ErrDowngraded.Error())
		return
	}

	e.opts.Background.Post(func() {
		data, err := e.resolve(ctx, files)
		if err != nil {
			e.logger.Error("load scene failed", slog.String("url", e.params.URL), slog.Any("error", err))
			p.Destroy()
			e.post(cb, false, err.Error())
			return
		}
		p.Initialize(ctx, data, func(err error) {
			if e.current() != p {
				return
			}
			if err != nil {
				e.call(cb, false, err.Error())
				return
			}
			e.call(cb, true, "")
		})
	})
}

// resolve makes the scene available on disk and parses its manifest.
func (e *Effects) resolve(ctx context.Context, files *fetch.Files) (*scene.Data, error) {
	dir := e.params.URL
	if strings.HasPrefix(dir, "http://") || strings.HasPrefix(dir, "https://") {
		var err error
		dir, err = fetch.NewPackages(files).Load(ctx, e.params.URL, Biz, e.params.ValidUntil, e.params.MD5)
		if err != nil {
			return nil, err
		}
	}
	return scene.LoadDir(dir)
}

func (e *Effects) current() *player.Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.player
}

func (e *Effects) post(cb Callback, ok bool, msg string) {
	if cb == nil {
		return
	}
	e.opts.UI.Post(func() { e.call(cb, ok, msg) })
}

func (e *Effects) call(cb Callback, ok bool, msg string) {
	if cb == nil {
		return
	}
	errors.Guard("effects.Callback", func() { cb(ok, msg) })
}

func (e *Effects) playCallback(cb Callback) player.PlayCallback {
	if cb == nil {
		return nil
	}
	return func(err error) {
		if err != nil {
			e.call(cb, false, err.Error())
			return
		}
		e.call(cb, true, "")
	}
}

// Player returns the underlying player, or nil before LoadScene.
func (e *Effects) Player() *player.Player { return e.current() }

// Play plays the whole scene repeat times.
func (e *Effects) Play(repeat int, cb Callback) {
	if p := e.current(); p != nil {
		p.PlayRepeat(repeat, e.playCallback(cb))
	}
}

// PlayFrames plays frames [from, to] repeat times.
func (e *Effects) PlayFrames(from, to, repeat int, cb Callback) {
	if p := e.current(); p != nil {
		p.PlayFrames(from, to, repeat, e.playCallback(cb))
	}
}

func (e *Effects) Pause() {
	if p := e.current(); p != nil {
		p.Pause()
	}
}

func (e *Effects) Resume() {
	if p := e.current(); p != nil {
		p.Resume()
	}
}

func (e *Effects) Stop() {
	if p := e.current(); p != nil {
		p.Stop()
	}
}

// Destroy tears the player down. A later LoadScene starts over.
func (e *Effects) Destroy() {
	e.mu.Lock()
	p := e.player
	e.player = nil
	e.mu.Unlock()
	if p != nil {
		p.Destroy()
	}
	if e.bridge != nil {
		e.bridge.Close()
	}
}

// AspectRatio returns the scene aspect ratio, or -1 before LoadScene.
func (e *Effects) AspectRatio() float64 {
	if p := e.current(); p != nil {
		return p.AspectRatio()
	}
	return -1
}

// FrameCount returns the scene length in 33ms frames, or -1 before
// LoadScene.
func (e *Effects) FrameCount() int {
	if p := e.current(); p != nil {
		return int(math.Floor(p.DurationSeconds() * 1000 / 33))
	}
	return -1
}
