package resource

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/go-drift/effects/pkg/engine"
	"github.com/go-drift/effects/pkg/engine/enginetest"
	"github.com/go-drift/effects/pkg/platform"
	"github.com/go-drift/effects/pkg/scene"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writePNG(t *testing.T, dir, name string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, pngBytes(t, 2, 2), 0o644))
}

// result collects batch outcomes and counts deliveries.
type result struct {
	mu     sync.Mutex
	calls  int
	bundle *Bundle
	err    error
	ch     chan struct{}
}

func newResult() *result { return &result{ch: make(chan struct{}, 8)} }

func (r *result) done(b *Bundle, err error) {
	r.mu.Lock()
	r.calls++
	r.bundle, r.err = b, err
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *result) wait(t *testing.T) (*Bundle, error) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not complete")
	}
	platform.WaitBackground()
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bundle, r.err
}

func (r *result) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// gatedDownloader serves every URL from a local PNG once its gate is released.
type gatedDownloader struct {
	mu    sync.Mutex
	path  string
	gates map[string]chan error
	calls []string
}

func newGatedDownloader(t *testing.T) *gatedDownloader {
	dir := t.TempDir()
	writePNG(t, dir, "img.png")
	return &gatedDownloader{path: filepath.Join(dir, "img.png"), gates: make(map[string]chan error)}
}

func (g *gatedDownloader) gate(url string) chan error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[url]
	if !ok {
		ch = make(chan error, 1)
		g.gates[url] = ch
	}
	return ch
}

func (g *gatedDownloader) release(url string, err error) { g.gate(url) <- err }

func (g *gatedDownloader) Download(ctx context.Context, url, biz string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, url)
	g.mu.Unlock()
	if err := <-g.gate(url); err != nil {
		return "", err
	}
	return g.path, nil
}

func (g *gatedDownloader) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

// instantDownloader serves every URL immediately.
type instantDownloader struct{ *gatedDownloader }

func (d instantDownloader) Download(ctx context.Context, url, biz string) (string, error) {
	d.mu.Lock()
	d.calls = append(d.calls, url)
	d.mu.Unlock()
	return d.path, nil
}

// queueExecutor holds tasks until Run is called.
type queueExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *queueExecutor) Post(fn func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
}

func (q *queueExecutor) PostDelayed(_ time.Duration, fn func()) { q.Post(fn) }

func (q *queueExecutor) Run() {
	q.mu.Lock()
	tasks := q.tasks
	q.tasks = nil
	q.mu.Unlock()
	for _, fn := range tasks {
		fn()
	}
}

func plain(locator string) Descriptor {
	return Descriptor{Key: locator, Locator: locator, Kind: KindImage, TemplateIdx: -1}
}

func TestPlan(t *testing.T) {
	images := []scene.ImageInfo{
		{URL: "a.png", TemplateIdx: -1},
		{URL: "b.png", ASTC: "b.astc", TemplateIdx: -1},
		{URL: "clip.mp4", Video: true, TransparentVideo: true, TemplateIdx: -1},
		{URL: "avatar", TemplateIdx: 0},
		{URL: "late.png", TemplateIdx: -1},
		{URL: "badge", TemplateIdx: 1},
	}
	got := Plan(images, true)

	assert.Equal(t, []Descriptor{
		{Key: "a.png", Locator: "a.png", Kind: KindImage, TemplateIdx: -1},
		{Key: "b.astc", Locator: "b.astc", Kind: KindImage, TemplateIdx: -1},
		{Key: "clip.mp4", Locator: "clip.mp4", Kind: KindVideo, Transparent: true, HWDecode: true, TemplateIdx: -1},
		{Key: "avatar", Locator: "avatar", Kind: KindImage, TemplateIdx: 0},
		{Key: "badge", Locator: "badge", Kind: KindImage, TemplateIdx: 1},
	}, got)
}

func TestPlan_HWDecodeOnlyForVideo(t *testing.T) {
	got := Plan([]scene.ImageInfo{{URL: "a.png", TemplateIdx: -1}}, true)
	assert.False(t, got[0].HWDecode)
	got = Plan([]scene.ImageInfo{{URL: "v.mp4", Video: true, TemplateIdx: -1}}, false)
	assert.False(t, got[0].HWDecode)
}

func TestLoadBatch_AllSucceed(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writePNG(t, dir, name)
	}
	descs := []Descriptor{plain("a.png"), plain("b.png"), plain("c.png"), {Key: "alias", Locator: "alias", TemplateIdx: 1}}

	r := newResult()
	l := &Loader{}
	l.LoadBatch(context.Background(), Request{Descriptors: descs, BaseDir: dir}, r.done)

	bundle, err := r.wait(t)
	require.NoError(t, err)
	assert.Equal(t, 1, r.count())
	assert.Equal(t, 3, bundle.Len())
	assert.Contains(t, bundle.Images, "alias")
	assert.NotContains(t, bundle.Images, "b.png")
	assert.Equal(t, image.Rect(0, 0, 2, 2), bundle.Images["a.png"].Image.Bounds())
}

func TestLoadBatch_FirstFailureWinsRegardlessOfOrder(t *testing.T) {
	urls := []string{"https://cdn.test/a.png", "https://cdn.test/b.png", "https://cdn.test/c.png"}
	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	for failing := range urls {
		for _, order := range orders {
			t.Run(fmt.Sprintf("fail%d_order%v", failing, order), func(t *testing.T) {
				g := newGatedDownloader(t)
				descs := make([]Descriptor, len(urls))
				for i, u := range urls {
					descs[i] = plain(u)
				}
				r := newResult()
				l := &Loader{Downloader: g}
				l.LoadBatch(context.Background(), Request{Descriptors: descs}, r.done)

				for _, i := range order {
					var err error
					if i == failing {
						err = fmt.Errorf("status 404")
					}
					g.release(urls[i], err)
				}

				bundle, err := r.wait(t)
				require.Error(t, err)
				assert.Nil(t, bundle)
				assert.Equal(t, fmt.Sprintf("loadFile(%s) fail,status 404", urls[failing]), err.Error())

				time.Sleep(10 * time.Millisecond)
				platform.WaitBackground()
				assert.Equal(t, 1, r.count())
			})
		}
	}
}

func TestLoadBatch_MultipleFailuresReportOnce(t *testing.T) {
	dir := t.TempDir()
	r := newResult()
	l := &Loader{}
	l.LoadBatch(context.Background(), Request{
		Descriptors: []Descriptor{plain("missing1.png"), plain("missing2.png"), plain("missing3.png")},
		BaseDir:     dir,
	}, r.done)

	_, err := r.wait(t)
	require.Error(t, err)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "loadFile", fe.Op)
	time.Sleep(10 * time.Millisecond)
	platform.WaitBackground()
	assert.Equal(t, 1, r.count())
}

func TestLoadBatch_AliasOrderingQuirk(t *testing.T) {
	g := newGatedDownloader(t)
	images := []scene.ImageInfo{
		{URL: "https://cdn.test/A.png", TemplateIdx: -1},
		{URL: "avatar", TemplateIdx: 0},
		{URL: "https://cdn.test/B.png", TemplateIdx: -1},
	}
	r := newResult()
	l := &Loader{Downloader: instantDownloader{g}}
	l.LoadBatch(context.Background(), Request{Descriptors: Plan(images, false)}, r.done)

	bundle, err := r.wait(t)
	require.NoError(t, err)
	assert.Equal(t, 1, bundle.Len())
	assert.Contains(t, bundle.Images, "avatar")
	assert.NotContains(t, bundle.Images, "https://cdn.test/A.png")
	assert.NotContains(t, bundle.Images, "https://cdn.test/B.png")
	assert.Equal(t, []string{"https://cdn.test/A.png"}, g.Calls())
}

func TestLoadBatch_TextOverrideOnTemplateKey(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png")
	images := []scene.ImageInfo{
		{URL: "a.png", TemplateIdx: -1},
		{URL: "slot", TemplateIdx: 0},
	}
	r := newResult()
	l := &Loader{}
	l.LoadBatch(context.Background(), Request{
		Descriptors:   Plan(images, false),
		BaseDir:       dir,
		TextOverrides: map[string]string{"slot": "text://10_10"},
	}, r.done)

	bundle, err := r.wait(t)
	require.NoError(t, err)
	assert.Equal(t, 1, bundle.Len())
	require.Contains(t, bundle.Images, "slot")
	assert.Equal(t, image.Rect(0, 0, 10, 10), bundle.Images["slot"].Image.Bounds())
	assert.NotContains(t, bundle.Images, "a.png")
}

func TestLoadBatch_LastAliasOfPeerWins(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png")
	r := newResult()
	l := &Loader{}
	l.LoadBatch(context.Background(), Request{
		Descriptors: []Descriptor{
			plain("a.png"),
			{Key: "first", TemplateIdx: 0},
			{Key: "second", TemplateIdx: 0},
		},
		BaseDir:       dir,
		TextOverrides: map[string]string{"first": "text://5_5", "second": "text://6_4"},
	}, r.done)

	bundle, err := r.wait(t)
	require.NoError(t, err)
	assert.Equal(t, 1, bundle.Len())
	require.Contains(t, bundle.Images, "second")
	assert.Equal(t, image.Rect(0, 0, 6, 4), bundle.Images["second"].Image.Bounds())
}

func TestLoadBatch_AliasOfAliasIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png")
	r := newResult()
	l := &Loader{}
	l.LoadBatch(context.Background(), Request{
		Descriptors: []Descriptor{
			plain("a.png"),
			{Key: "avatar", TemplateIdx: 0},
			{Key: "echo", TemplateIdx: 1},
		},
		BaseDir: dir,
	}, r.done)

	bundle, err := r.wait(t)
	require.NoError(t, err)
	assert.Equal(t, 1, bundle.Len())
	assert.Contains(t, bundle.Images, "avatar")
	assert.NotContains(t, bundle.Images, "echo")
}

func TestLoadBatch_AliasWithoutPeerIsSkipped(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png")
	r := newResult()
	l := &Loader{}
	l.LoadBatch(context.Background(), Request{
		Descriptors: []Descriptor{plain("a.png"), {Key: "ghost", TemplateIdx: 7}},
		BaseDir:     dir,
	}, r.done)

	bundle, err := r.wait(t)
	require.NoError(t, err)
	assert.Equal(t, 1, bundle.Len())
	assert.NotContains(t, bundle.Images, "ghost")
}

func TestLoadBatch_EmptyCompletesAsynchronously(t *testing.T) {
	q := &queueExecutor{}
	var calls int
	var got *Bundle
	l := &Loader{Executor: q}
	l.LoadBatch(context.Background(), Request{}, func(b *Bundle, err error) {
		calls++
		got = b
		assert.NoError(t, err)
	})
	assert.Zero(t, calls, "must not complete inline")

	q.Run()
	assert.Equal(t, 1, calls)
	require.NotNil(t, got)
	assert.Zero(t, got.Len())
}

func TestLoadBatch_Overrides(t *testing.T) {
	g := newGatedDownloader(t)
	override := image.NewNRGBA(image.Rect(0, 0, 9, 9))
	r := newResult()
	l := &Loader{Downloader: instantDownloader{g}}
	l.LoadBatch(context.Background(), Request{
		Descriptors: []Descriptor{
			plain("https://cdn.test/photo.png"),
			plain("https://cdn.test/label.png"),
			plain("https://cdn.test/frame.png"),
			{Key: "slot", TemplateIdx: 2},
		},
		TextOverrides:  map[string]string{"https://cdn.test/label.png": "text://label_40_20"},
		ImageOverrides: map[string]image.Image{"https://cdn.test/photo.png": override, "slot": override},
	}, r.done)

	bundle, err := r.wait(t)
	require.NoError(t, err)
	assert.Empty(t, g.Calls(), "overridden descriptors must not fetch")
	assert.Equal(t, 3, bundle.Len())
	assert.Same(t, override, bundle.Images["https://cdn.test/photo.png"].Image)
	assert.Same(t, override, bundle.Images["slot"].Image)
	assert.NotContains(t, bundle.Images, "https://cdn.test/frame.png")
	assert.Equal(t, image.Rect(0, 0, 40, 20), bundle.Images["https://cdn.test/label.png"].Image.Bounds())
}

func TestLoadBatch_Assets(t *testing.T) {
	assets := fstest.MapFS{"effects/star.png": {Data: pngBytes(t, 3, 3)}}
	r := newResult()
	l := &Loader{Assets: assets}
	l.LoadBatch(context.Background(), Request{Descriptors: []Descriptor{plain("asset://effects/star.png")}}, r.done)

	bundle, err := r.wait(t)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 3), bundle.Images["asset://effects/star.png"].Image.Bounds())
}

func TestLoadBatch_NullLocator(t *testing.T) {
	r := newResult()
	l := &Loader{}
	l.LoadBatch(context.Background(), Request{Descriptors: []Descriptor{{Key: "k", TemplateIdx: -1}}}, r.done)
	_, err := r.wait(t)
	assert.EqualError(t, err, "loadFile() fail,url is null")
}

func TestSynthesizeText(t *testing.T) {
	img, err := SynthesizeText("text://title_120_48")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 120, 48), img.Bounds())
	_, _, _, a := img.At(5, 5).RGBA()
	assert.Zero(t, a)

	img, err = SynthesizeText("text://64.5_32")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 32), img.Bounds())

	_, err = SynthesizeText("text://a_b_c_d")
	assert.EqualError(t, err, "url is wrong, text://xx_xx_xx expected.")
	_, err = SynthesizeText("text://name_x_10")
	assert.EqualError(t, err, "url is text://xx_xx_xx, but failed to get width, height or bitmap.")
	_, err = SynthesizeText("text://name_0_10")
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	ktx := append([]byte{0xAB, 'K', 'T', 'X', ' ', '1', '1', 0xBB, '\r', '\n', 0x1A, '\n'}, 1, 2, 3)
	p, err := Decode(ktx)
	require.NoError(t, err)
	assert.Equal(t, ktx, p.Bytes)
	assert.Nil(t, p.Image)

	astc := []byte{0x13, 0xAB, 0xA1, 0x5C, 4, 4, 1}
	assert.True(t, IsCompressedTexture(astc))

	p, err = Decode(pngBytes(t, 4, 1))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 1), p.Image.Bounds())

	_, err = Decode([]byte("not an image"))
	assert.Error(t, err)
	_, err = Decode(nil)
	assert.Error(t, err)
}

func TestLoadBatch_Video(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("mp4"), 0o644))
	video := Descriptor{Key: "clip.mp4", Locator: "clip.mp4", Kind: KindVideo, Transparent: true, TemplateIdx: -1}

	t.Run("prepared", func(t *testing.T) {
		eng := enginetest.New()
		r := newResult()
		l := &Loader{Engine: eng}
		l.LoadBatch(context.Background(), Request{Instance: 7, Descriptors: []Descriptor{video}, BaseDir: dir}, r.done)

		bundle, err := r.wait(t)
		require.NoError(t, err)
		p := bundle.Images["clip.mp4"]
		assert.True(t, p.IsVideo())
		calls := eng.Find("PrepareVideo")
		require.Len(t, calls, 1)
		assert.Equal(t, engine.InstanceID(7), calls[0].Args[0])
		assert.Equal(t, filepath.Join(dir, "clip.mp4"), calls[0].Args[1])
		assert.Equal(t, true, calls[0].Args[2])
	})

	t.Run("decoder failure", func(t *testing.T) {
		eng := enginetest.New()
		eng.Video = enginetest.VideoFail
		r := newResult()
		l := &Loader{Engine: eng}
		l.LoadBatch(context.Background(), Request{Descriptors: []Descriptor{video}, BaseDir: dir}, r.done)

		_, err := r.wait(t)
		assert.EqualError(t, err, "loadFile(clip.mp4) fail,decoder unavailable")
		assert.Equal(t, 1, eng.Count("ReleaseVideo"))
	})

	t.Run("refused", func(t *testing.T) {
		eng := enginetest.New()
		eng.Video = enginetest.VideoRefuse
		r := newResult()
		l := &Loader{Engine: eng}
		l.LoadBatch(context.Background(), Request{Descriptors: []Descriptor{video}, BaseDir: dir}, r.done)

		_, err := r.wait(t)
		assert.EqualError(t, err, "loadFile(clip.mp4) fail,create video context fail")
	})

	t.Run("missing file", func(t *testing.T) {
		eng := enginetest.New()
		r := newResult()
		l := &Loader{Engine: eng}
		missing := video
		missing.Locator = "nope.mp4"
		l.LoadBatch(context.Background(), Request{Descriptors: []Descriptor{missing}, BaseDir: dir}, r.done)

		_, err := r.wait(t)
		assert.EqualError(t, err, "loadFile(nope.mp4) fail,read video file failed")
		assert.Zero(t, eng.Count("PrepareVideo"))
	})
}

func TestBatch_AbandonDropsLateVideo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("mp4"), 0o644))
	eng := enginetest.New()
	eng.Video = enginetest.VideoManual

	var calls atomic.Int32
	l := &Loader{Engine: eng}
	b := l.LoadBatch(context.Background(), Request{
		Descriptors: []Descriptor{{Key: "clip.mp4", Locator: "clip.mp4", Kind: KindVideo, TemplateIdx: -1}},
		BaseDir:     dir,
	}, func(*Bundle, error) { calls.Add(1) })

	require.Eventually(t, func() bool { return len(eng.PendingVideos()) == 1 }, 2*time.Second, 5*time.Millisecond)
	pending := eng.PendingVideos()[0]

	b.Abandon()
	b.Abandon()
	assert.True(t, b.Abandoned())
	assert.True(t, eng.CompleteVideo(pending, true, ""))
	platform.WaitBackground()

	assert.Zero(t, calls.Load())
	released := eng.Find("ReleaseVideo")
	require.Len(t, released, 1)
	assert.Equal(t, pending, released[0].Args[0])
}

func writeFont(t *testing.T, dir, name string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, goregular.TTF, 0o644))
}

func TestLoadFonts(t *testing.T) {
	dir := t.TempDir()
	writeFont(t, dir, "fonts/title.ttf")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.ttf"), []byte("nope"), 0o644))

	run := func(urls []string) (map[string]string, error) {
		type out struct {
			m   map[string]string
			err error
		}
		ch := make(chan out, 4)
		l := &Loader{}
		l.LoadFonts(context.Background(), dir, urls, func(m map[string]string, err error) { ch <- out{m, err} })
		select {
		case o := <-ch:
			return o.m, o.err
		case <-time.After(5 * time.Second):
			t.Fatal("fonts did not complete")
			return nil, nil
		}
	}

	m, err := run([]string{"fonts/title.ttf"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"fonts/title.ttf": filepath.Join(dir, "fonts/title.ttf")}, m)

	m, err = run(nil)
	require.NoError(t, err)
	assert.Empty(t, m)

	_, err = run([]string{"fonts/title.ttf", "missing.ttf"})
	assert.EqualError(t, err, "loadFont(missing.ttf) fail,read font file failed")

	_, err = run([]string{"bad.ttf"})
	assert.ErrorContains(t, err, "invalid font")
}

func TestLoadAll_ChainsFonts(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "a.png")
	writeFont(t, dir, "f.ttf")

	r := newResult()
	l := &Loader{}
	l.LoadAll(context.Background(), Request{Descriptors: []Descriptor{plain("a.png")}, BaseDir: dir}, []string{"f.ttf"}, r.done)

	bundle, err := r.wait(t)
	require.NoError(t, err)
	assert.Equal(t, 1, bundle.Len())
	assert.Equal(t, filepath.Join(dir, "f.ttf"), bundle.Fonts["f.ttf"])
}

func TestLoadAll_FontFailureReleasesVideos(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("mp4"), 0o644))
	eng := enginetest.New()

	r := newResult()
	l := &Loader{Engine: eng}
	l.LoadAll(context.Background(), Request{
		Descriptors: []Descriptor{{Key: "clip.mp4", Locator: "clip.mp4", Kind: KindVideo, TemplateIdx: -1}},
		BaseDir:     dir,
	}, []string{"missing.ttf"}, r.done)

	_, err := r.wait(t)
	assert.EqualError(t, err, "loadFont(missing.ttf) fail,read font file failed")
	assert.Equal(t, 1, eng.Count("ReleaseVideo"))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "image", KindImage.String())
	assert.Equal(t, "video", KindVideo.String())
	assert.Equal(t, "font", KindFont.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
