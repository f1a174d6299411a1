package engine

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/effects/pkg/platform"
)

func TestBridgeEngine_Create(t *testing.T) {
	bridge := platform.SetupTestBridge(t.Cleanup)
	e := NewBridgeEngine()
	defer e.Close()

	require.NoError(t, e.Create(4, Options{Quality: 2, SurfaceScale: true}))

	calls := bridge.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, MethodChannelName, calls[0].Channel)
	assert.Equal(t, "create", calls[0].Method)
	assert.Equal(t, map[string]any{
		"id":           float64(4),
		"quality":      float64(2),
		"surfaceScale": true,
		"fixTick":      false,
	}, calls[0].Args)
}

func TestBridgeEngine_CreateError(t *testing.T) {
	bridge := platform.SetupTestBridge(t.Cleanup)
	bridge.SetError("create", platform.NewChannelError("NO_GL", "no context"))
	e := NewBridgeEngine()
	defer e.Close()

	err := e.Create(1, Options{})
	assert.EqualError(t, err, "NO_GL: no context")
}

func TestBridgeEngine_SceneHandles(t *testing.T) {
	bridge := platform.SetupTestBridge(t.Cleanup)
	bridge.SetResult("createSceneData", 77)
	e := NewBridgeEngine()
	defer e.Close()

	h := e.CreateSceneData([]byte{1, 2, 3})
	assert.Equal(t, SceneHandle(77), h)
	assert.True(t, h.Valid())

	assert.False(t, e.CreateSceneDataFromPath("/missing").Valid())
}

func TestBridgeEngine_BitmapEncodedAsPNG(t *testing.T) {
	bridge := platform.SetupTestBridge(t.Cleanup)
	e := NewBridgeEngine()
	defer e.Close()

	e.SetImageResourceBitmap(5, "img_0", image.NewNRGBA(image.Rect(0, 0, 2, 2)))
	e.SetImageResourceBitmap(5, "img_1", nil)

	calls := bridge.Calls()
	require.Len(t, calls, 1)
	args := calls[0].Args.(map[string]any)
	assert.Equal(t, "img_0", args["key"])
	// []byte travels as base64 in JSON.
	assert.NotEmpty(t, args["png"])
}

func TestBridgeEngine_Events(t *testing.T) {
	platform.SetupTestBridge(t.Cleanup)
	e := NewBridgeEngine()
	defer e.Close()

	var got []Event
	e.SetEventHandler(func(ev Event) { got = append(got, ev) })

	require.NoError(t, platform.HandleEvent(EventChannelName, []byte(`{"id":3,"type":"animation_end","msg":"p1"}`)))
	require.NoError(t, platform.HandleEvent(EventChannelName, []byte(`{"id":3,"type":1,"msg":"true_3"}`)))
	require.NoError(t, platform.HandleEvent(EventChannelName, []byte(`{"type":"start"}`)))
	require.NoError(t, platform.HandleEvent(EventChannelName, []byte(`{"id":3,"type":"future_kind"}`)))

	assert.Equal(t, []Event{
		{Instance: 3, Kind: EventAnimationEnd, Payload: "p1"},
		{Instance: 3, Kind: EventStatistics, Payload: "true_3"},
		{Instance: 3, Kind: EventUnknown},
	}, got)
}

func TestBridgeEngine_VideoCompletion(t *testing.T) {
	bridge := platform.SetupTestBridge(t.Cleanup)
	bridge.SetResult("prepareVideo", 9)
	e := NewBridgeEngine()
	defer e.Close()

	var results []string
	v := e.PrepareVideo(1, "/tmp/a.mp4", "hash", true, false, func(ok bool, msg string) {
		results = append(results, map[bool]string{true: "ok", false: "fail:" + msg}[ok])
	})
	require.Equal(t, VideoHandle(9), v)

	require.NoError(t, platform.HandleEvent(VideoChannelName, []byte(`{"video":9,"ok":true}`)))
	require.NoError(t, platform.HandleEvent(VideoChannelName, []byte(`{"video":9,"ok":false,"msg":"late"}`)))

	assert.Equal(t, []string{"ok"}, results)
}

func TestBridgeEngine_VideoRefused(t *testing.T) {
	platform.SetupTestBridge(t.Cleanup)
	e := NewBridgeEngine()
	defer e.Close()

	called := false
	v := e.PrepareVideo(1, "/tmp/a.mp4", "hash", false, false, func(bool, string) { called = true })
	assert.False(t, v.Valid())
	assert.False(t, called)
}

func TestBridgeEngine_Version(t *testing.T) {
	bridge := platform.SetupTestBridge(t.Cleanup)
	bridge.SetResult("version", "v2.3.1")
	e := NewBridgeEngine()
	defer e.Close()

	assert.Equal(t, "v2.3.1", e.Version())
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "runtime_error", EventRuntimeError.String())
	assert.Equal(t, "EventKind(42)", EventKind(42).String())

	k, ok := ParseEventKind("interact_begin")
	assert.True(t, ok)
	assert.Equal(t, EventInteractBegin, k)

	_, ok = ParseEventKind("unknown")
	assert.False(t, ok)

	assert.True(t, EventSurfaceInitError.Fatal())
	assert.False(t, EventStart.Fatal())
}

func TestHandles_Valid(t *testing.T) {
	assert.False(t, SceneHandle(0).Valid())
	assert.False(t, SceneHandle(-1).Valid())
	assert.True(t, SceneHandle(12).Valid())
	assert.False(t, VideoHandle(0).Valid())
	assert.True(t, PluginHandle(3).Valid())
}
