// Package resource resolves the image, video and font dependencies of a
// scene in parallel and merges them into one bundle for the engine.
//
// Every independent descriptor is fetched on its own task. The batch reports
// exactly once: the merged bundle when all fetches succeed, otherwise the
// first failure. Alias descriptors never fetch; they rename an earlier peer,
// whose payload is then stored and overridden under the alias key.
package resource

import (
	"context"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-drift/effects/pkg/engine"
	"github.com/go-drift/effects/pkg/errors"
	"github.com/go-drift/effects/pkg/platform"
)

// AssetScheme prefixes locators served from the loader's asset filesystem.
const AssetScheme = "asset://"

// Downloader resolves network locators to local files. Timeouts and retries
// are its concern.
type Downloader interface {
	Download(ctx context.Context, url, biz string) (string, error)
}

// FetchError is the failure reported for a batch.
type FetchError struct {
	// Op is "loadFile" for images and videos, "loadFont" for fonts.
	Op      string
	Locator string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s(%s) fail,%v", e.Op, e.Locator, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Loader resolves descriptors. The zero value reads local files only.
type Loader struct {
	// Engine prepares videos and releases unused ones.
	Engine engine.Engine
	// Downloader fetches http(s) locators.
	Downloader Downloader
	// Assets serves asset:// locators.
	Assets fs.FS
	// Biz tags downloads.
	Biz string
	// Executor runs fetch tasks. Defaults to platform.Background.
	Executor platform.Executor
}

// Request is one image batch.
type Request struct {
	Instance    engine.InstanceID
	Descriptors []Descriptor
	// BaseDir resolves relative local locators.
	BaseDir string
	// TextOverrides replace the locator of the descriptor with that key.
	// A renamed peer is looked up by its alias key.
	TextOverrides map[string]string
	// ImageOverrides replace the payload of the descriptor with that key,
	// under the same lookup rule.
	ImageOverrides map[string]image.Image
}

// Batch is a handle on an in-flight load.
type Batch struct {
	gen       atomic.Uint64
	mu        sync.Mutex
	abandoned bool
	drains    []func()
}

// Abandon detaches the batch from its owner. Completions arriving later are
// dropped, videos they prepared are released, and the done callback is not
// invoked. Abandon after the outcome was reported has no effect on it.
func (b *Batch) Abandon() {
	b.mu.Lock()
	if b.abandoned {
		b.mu.Unlock()
		return
	}
	b.abandoned = true
	b.gen.Add(1)
	drains := b.drains
	b.drains = nil
	b.mu.Unlock()
	for _, d := range drains {
		d()
	}
}

// Abandoned reports whether Abandon was called.
func (b *Batch) Abandoned() bool {
	return b.gen.Load() != 0
}

func (b *Batch) track(drain func()) {
	b.mu.Lock()
	if b.abandoned {
		b.mu.Unlock()
		drain()
		return
	}
	b.drains = append(b.drains, drain)
	b.mu.Unlock()
}

func (l *Loader) executor() platform.Executor {
	if l.Executor != nil {
		return l.Executor
	}
	return platform.Background
}

func (l *Loader) logger() *slog.Logger {
	return slog.Default().With(slog.String("component", "resource"))
}

func (l *Loader) release(p Payload) {
	if p.IsVideo() && l.Engine != nil {
		l.Engine.ReleaseVideo(p.Video)
	}
}

// LoadBatch resolves the image and video descriptors of req. done is called
// exactly once unless the batch is abandoned first, on an arbitrary
// goroutine.
func (l *Loader) LoadBatch(ctx context.Context, req Request, done func(*Bundle, error)) *Batch {
	b := &Batch{}
	l.loadImages(ctx, b, req, done)
	return b
}

// LoadAll resolves the images of req, then the fonts. The bundle carries
// both; a font failure releases the prepared videos.
func (l *Loader) LoadAll(ctx context.Context, req Request, fontURLs []string, done func(*Bundle, error)) *Batch {
	b := &Batch{}
	l.loadImages(ctx, b, req, func(bundle *Bundle, err error) {
		if err != nil {
			done(nil, err)
			return
		}
		// The bundle belongs to the batch until it is handed to done.
		var handed atomic.Bool
		b.track(func() {
			if handed.CompareAndSwap(false, true) {
				bundle.ReleaseVideos(l.Engine)
			}
		})
		l.loadFonts(ctx, b, req.BaseDir, fontURLs, func(fonts map[string]string, err error) {
			if !handed.CompareAndSwap(false, true) {
				return
			}
			if err != nil {
				bundle.ReleaseVideos(l.Engine)
				done(nil, err)
				return
			}
			bundle.Fonts = fonts
			done(bundle, nil)
		})
	})
	return b
}

func (l *Loader) loadImages(ctx context.Context, b *Batch, req Request, done func(*Bundle, error)) {
	keys := l.keys(req.Descriptors)
	var fetchIdx []int
	for i, d := range req.Descriptors {
		if !d.IsAlias() {
			fetchIdx = append(fetchIdx, i)
		}
	}

	if len(fetchIdx) == 0 {
		l.executor().Post(func() {
			if !b.Abandoned() {
				done(&Bundle{Images: map[string]Payload{}}, nil)
			}
		})
		return
	}

	fan := newFanIn(len(fetchIdx), &b.gen, func(results []Payload, err error) {
		if err != nil {
			l.logger().Error("image batch failed", slog.Int64("instance", int64(req.Instance)), slog.Any("error", err))
			done(nil, err)
			return
		}
		done(merge(keys, fetchIdx, results), nil)
	}, l.release)
	b.track(fan.drain)

	for n, i := range fetchIdx {
		d, key := req.Descriptors[i], keys[i]
		var once sync.Once
		finish := func(p Payload, err error) {
			once.Do(func() { fan.complete(n, p, err) })
		}
		l.executor().Post(func() {
			defer errors.RecoverWithCallback("resource.fetch", func(r any) {
				finish(Payload{}, &FetchError{Op: "loadFile", Locator: d.Locator, Err: fmt.Errorf("panic: %v", r)})
			})
			if fan.abandoned() {
				finish(Payload{}, nil)
				return
			}
			l.resolve(ctx, req, key, d, finish)
		})
	}
}

// keys returns the engine key of every descriptor. An alias renames the
// independent descriptor it points at; when several aliases point at the
// same peer the last one wins.
func (l *Loader) keys(ds []Descriptor) []string {
	keys := make([]string, len(ds))
	for i, d := range ds {
		keys[i] = d.Key
	}
	for _, d := range ds {
		if !d.IsAlias() {
			continue
		}
		if d.TemplateIdx >= len(ds) || ds[d.TemplateIdx].IsAlias() {
			l.logger().Debug("alias peer absent", slog.String("key", d.Key), slog.Int("template", d.TemplateIdx))
			continue
		}
		keys[d.TemplateIdx] = d.Key
	}
	return keys
}

// merge builds the bundle from fetched payloads under their engine keys.
func merge(keys []string, fetchIdx []int, results []Payload) *Bundle {
	bundle := &Bundle{Images: make(map[string]Payload, len(fetchIdx))}
	for n, i := range fetchIdx {
		bundle.Images[keys[i]] = results[n]
	}
	return bundle
}

func isNetwork(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

// resolve fetches one independent descriptor stored under key and calls
// finish once.
func (l *Loader) resolve(ctx context.Context, req Request, key string, d Descriptor, finish func(Payload, error)) {
	if img := req.ImageOverrides[key]; img != nil {
		finish(Payload{Image: img}, nil)
		return
	}

	locator := d.Locator
	if t := req.TextOverrides[key]; t != "" {
		locator = t
	}
	fail := func(err error) {
		finish(Payload{}, &FetchError{Op: "loadFile", Locator: locator, Err: err})
	}

	switch {
	case locator == "":
		fail(fmt.Errorf("url is null"))
		return
	case strings.HasPrefix(locator, TextScheme):
		img, err := SynthesizeText(locator)
		if err != nil {
			fail(err)
			return
		}
		finish(Payload{Image: img}, nil)
		return
	}

	if d.Kind == KindVideo {
		path, err := l.videoPath(ctx, req.BaseDir, locator)
		if err != nil {
			fail(err)
			return
		}
		l.prepareVideo(req.Instance, path, d, finish, fail)
		return
	}

	data, err := l.readImage(ctx, req.BaseDir, locator)
	if err != nil {
		fail(err)
		return
	}
	p, err := Decode(data)
	if err != nil {
		fail(err)
		return
	}
	l.logger().Debug("image loaded", slog.String("locator", locator))
	finish(p, nil)
}

func (l *Loader) download(ctx context.Context, locator string) (string, error) {
	if l.Downloader == nil {
		return "", fmt.Errorf("no downloader configured")
	}
	return l.Downloader.Download(ctx, locator, l.Biz)
}

func (l *Loader) readImage(ctx context.Context, baseDir, locator string) ([]byte, error) {
	switch {
	case isNetwork(locator):
		path, err := l.download(ctx, locator)
		if err != nil {
			return nil, err
		}
		return os.ReadFile(path)
	case strings.HasPrefix(locator, AssetScheme):
		if l.Assets == nil {
			return nil, fmt.Errorf("no asset filesystem configured")
		}
		return fs.ReadFile(l.Assets, strings.TrimPrefix(locator, AssetScheme))
	default:
		return os.ReadFile(filepath.Join(baseDir, locator))
	}
}

func (l *Loader) videoPath(ctx context.Context, baseDir, locator string) (string, error) {
	if isNetwork(locator) {
		return l.download(ctx, locator)
	}
	path := filepath.Join(baseDir, locator)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return "", fmt.Errorf("read video file failed")
	}
	return path, nil
}
