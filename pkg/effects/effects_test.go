package effects

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/effects/pkg/config"
	"github.com/go-drift/effects/pkg/engine"
	"github.com/go-drift/effects/pkg/engine/enginetest"
	"github.com/go-drift/effects/pkg/fetch"
	"github.com/go-drift/effects/pkg/platform"
	"github.com/go-drift/effects/pkg/player"
)

const manifest = `{
  "aspect": 0.75,
  "duration": 2.5,
  "bin": "scene.bin",
  "images": [{"url": "bg.png"}, {"url": "avatar", "templateIdx": 0}]
}`

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func sceneFiles(t *testing.T) map[string][]byte {
	return map[string][]byte{
		"scene.json": []byte(manifest),
		"scene.bin":  []byte("bin"),
		"bg.png":     pngBytes(t),
	}
}

func writeScene(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range sceneFiles(t) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir
}

func testOptions(t *testing.T, eng *enginetest.Engine) Options {
	t.Helper()
	cache, err := fetch.NewCache(t.TempDir())
	require.NoError(t, err)
	return Options{
		Engine:     eng,
		Files:      fetch.NewFiles(cache, fetch.NewDownloader(5*time.Second)),
		Tokens:     player.SequenceTokens{},
		UI:         platform.SyncExecutor{},
		Background: platform.SyncExecutor{},
	}
}

type outcome struct {
	calls int
	ok    bool
	msg   string
}

func (o *outcome) record(ok bool, msg string) {
	o.calls++
	o.ok, o.msg = ok, msg
}

func TestEffects_LoadLocalScene(t *testing.T) {
	eng := enginetest.New()
	fx := New(Params{URL: writeScene(t)}, testOptions(t, eng))
	t.Cleanup(fx.Destroy)

	assert.Equal(t, -1.0, fx.AspectRatio())
	assert.Equal(t, -1, fx.FrameCount())
	fx.Play(1, nil)
	assert.Empty(t, eng.Calls())

	var res outcome
	fx.LoadScene(context.Background(), res.record)
	require.Equal(t, 1, res.calls)
	assert.True(t, res.ok, res.msg)
	assert.Empty(t, res.msg)

	assert.InDelta(t, 0.75, fx.AspectRatio(), 1e-9)
	assert.Equal(t, 75, fx.FrameCount())
	assert.Equal(t, 1, eng.Count("CreateSceneDataFromPath"))
	assert.Equal(t, 1, eng.Count("SetImageResourceBitmap"))
	assert.Equal(t, 1, eng.Count("BindSceneData"))
}

func TestEffects_DefaultsToBridgeEngine(t *testing.T) {
	bridge := platform.SetupTestBridge(t.Cleanup)
	opts := testOptions(t, enginetest.New())
	opts.Engine = nil
	fx := New(Params{URL: writeScene(t)}, opts)
	t.Cleanup(fx.Destroy)
	require.IsType(t, &engine.BridgeEngine{}, fx.opts.Engine)

	var res outcome
	fx.LoadScene(context.Background(), res.record)
	assert.Equal(t, 1, res.calls)

	var created bool
	for _, c := range bridge.Calls() {
		if c.Channel == engine.MethodChannelName && c.Method == "create" {
			created = true
		}
	}
	assert.True(t, created, "player created over the native bridge")
}

func TestEffects_LoadSceneRejections(t *testing.T) {
	t.Run("empty url", func(t *testing.T) {
		fx := New(Params{}, testOptions(t, enginetest.New()))
		var res outcome
		fx.LoadScene(context.Background(), res.record)
		assert.Equal(t, outcome{calls: 1, msg: MsgNoURL}, res)
	})

	t.Run("duplicate", func(t *testing.T) {
		fx := New(Params{URL: writeScene(t)}, testOptions(t, enginetest.New()))
		t.Cleanup(fx.Destroy)
		var first, second outcome
		fx.LoadScene(context.Background(), first.record)
		fx.LoadScene(context.Background(), second.record)
		assert.True(t, first.ok)
		assert.Equal(t, outcome{calls: 1, msg: MsgDuplicated}, second)
	})

	t.Run("missing manifest", func(t *testing.T) {
		eng := enginetest.New()
		fx := New(Params{URL: t.TempDir()}, testOptions(t, eng))
		var res outcome
		fx.LoadScene(context.Background(), res.record)
		assert.False(t, res.ok)
		assert.Contains(t, res.msg, "read manifest")
		assert.Zero(t, eng.Count("Create"))
	})

	t.Run("downgraded", func(t *testing.T) {
		cfg := config.Default()
		cfg.Downgrade.Force = true
		eng := enginetest.New()
		opts := testOptions(t, eng)
		opts.Config = config.NewStore(cfg)
		fx := New(Params{URL: writeScene(t)}, opts)
		var res outcome
		fx.LoadScene(context.Background(), res.record)
		assert.Equal(t, outcome{calls: 1, msg: "downgrade"}, res)
		assert.True(t, fx.Player().IsDowngraded())
		assert.Empty(t, eng.Calls())
	})
}

func zipScene(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range sceneFiles(t) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestEffects_LoadPackage(t *testing.T) {
	archive := zipScene(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(archive)
	}))
	defer srv.Close()

	eng := enginetest.New()
	fx := New(Params{URL: srv.URL + "/fx.zip"}, testOptions(t, eng))
	t.Cleanup(fx.Destroy)

	var res outcome
	fx.LoadScene(context.Background(), res.record)
	require.Equal(t, 1, res.calls)
	assert.True(t, res.ok, res.msg)
	assert.Equal(t, 1, eng.Count("BindSceneData"))
}

func TestEffects_PackageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	eng := enginetest.New()
	fx := New(Params{URL: srv.URL + "/fx.zip"}, testOptions(t, eng))
	var res outcome
	fx.LoadScene(context.Background(), res.record)
	assert.False(t, res.ok)
	assert.Contains(t, res.msg, "404")
	assert.Equal(t, player.Destroyed, fx.Player().State())
}

func TestEffects_PlayCallbacks(t *testing.T) {
	eng := enginetest.New()
	fx := New(Params{URL: writeScene(t)}, testOptions(t, eng))
	t.Cleanup(fx.Destroy)
	var res outcome
	fx.LoadScene(context.Background(), res.record)
	require.True(t, res.ok)
	id := eng.Find("Create")[0].Args[0].(engine.InstanceID)

	var played outcome
	fx.Play(2, played.record)
	token := eng.Find("PlayFrameRange")[0].Args[3].(string)
	eng.Emit(engine.Event{Instance: id, Kind: engine.EventAnimationEnd, Payload: token})
	assert.Equal(t, outcome{calls: 1, ok: true}, played)

	fx.PlayFrames(0, 10, 1, func(bool, string) { panic("caller bug") })
	token = eng.Find("PlayFrameRange")[1].Args[3].(string)
	assert.NotPanics(t, func() {
		eng.Emit(engine.Event{Instance: id, Kind: engine.EventAnimationEnd, Payload: token})
	})

	var failed outcome
	fx.Play(1, failed.record)
	eng.Emit(engine.Event{Instance: id, Kind: engine.EventRuntimeError, Payload: "context lost"})
	assert.Equal(t, outcome{calls: 1, msg: "context lost"}, failed)

	var after outcome
	fx.Play(1, after.record)
	assert.Equal(t, outcome{calls: 1, msg: "downgrade"}, after)
}

func TestEffects_DestroyAllowsReload(t *testing.T) {
	eng := enginetest.New()
	fx := New(Params{URL: writeScene(t)}, testOptions(t, eng))
	var res outcome
	fx.LoadScene(context.Background(), res.record)
	require.True(t, res.ok)

	fx.Pause()
	fx.Resume()
	fx.Stop()
	fx.Destroy()
	fx.Destroy()
	assert.Equal(t, 1, eng.Count("Destroy"))
	assert.Equal(t, -1, fx.FrameCount())

	fx.LoadScene(context.Background(), res.record)
	assert.Equal(t, 2, res.calls)
	assert.True(t, res.ok)
	t.Cleanup(fx.Destroy)
}
