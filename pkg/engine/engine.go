// Package engine describes the opaque native rendering engine that the
// effects player drives.
//
// The engine renders frames, decodes scene graphs and prepares video; none of
// that happens in Go. This package only fixes the contract: the operations the
// player may call, the handle types it receives back, and the events the
// engine emits on its own threads. [BridgeEngine] implements the contract over
// the platform channel bridge; enginetest provides a recording fake.
package engine

import (
	"fmt"
	"image"
)

// ErrNilImage is reported when a nil image is passed where pixels are required.
var ErrNilImage = fmt.Errorf("engine: nil image")

// InstanceID identifies one player instance. Zero means no instance.
type InstanceID int64

// SceneHandle references engine-resident scene data.
type SceneHandle int64

// Valid reports whether h references live scene data. Both 0 and -1 are
// returned by the engine to mean "no scene".
func (h SceneHandle) Valid() bool { return h != 0 && h != -1 }

// VideoHandle references a prepared native video context.
type VideoHandle int64

// Valid reports whether h references a prepared video context.
func (h VideoHandle) Valid() bool { return h != 0 && h != -1 }

// PluginHandle references a native plugin contributed by an extension.
type PluginHandle int64

// Valid reports whether h references a plugin.
func (h PluginHandle) Valid() bool { return h != 0 && h != -1 }

// Surface describes a native render target handed over by the host view.
type Surface struct {
	// Handle is the platform's native window or texture reference.
	Handle int64
	Width  int
	Height int
}

// VideoCallback receives the outcome of an asynchronous video preparation.
// It may be called on any thread, at most once.
type VideoCallback func(ok bool, message string)

// Options carries the per-instance creation flags.
type Options struct {
	// Quality is the render level resolved from the device tier.
	Quality int
	// SurfaceScale enables scaled rendering surfaces.
	SurfaceScale bool
	// FixTick renders with a fixed frame tick instead of wall-clock time.
	FixTick bool
}

// Engine is the native rendering engine. Implementations must be safe for
// concurrent use; the player serializes calls per instance but not across
// instances.
type Engine interface {
	// Create allocates the native player for id.
	Create(id InstanceID, opts Options) error
	// Destroy releases the native player for id.
	Destroy(id InstanceID)

	SetRepeatCount(id InstanceID, n int)
	// PlayFrameRange plays frames [from, to]. The engine reports completion
	// with an AnimationEnd event carrying token.
	PlayFrameRange(id InstanceID, from, to int, token string, async bool)
	Stop(id InstanceID)
	Pause(id InstanceID)
	Resume(id InstanceID)

	SetupSurface(id InstanceID, s Surface)
	ResizeSurface(id InstanceID, width, height int)
	DestroySurface(id InstanceID)

	// CreateSceneData parses a binary scene. An invalid handle means failure.
	CreateSceneData(data []byte) SceneHandle
	// CreateSceneDataFromPath parses a binary scene stored on disk.
	CreateSceneDataFromPath(path string) SceneHandle
	DestroySceneData(h SceneHandle)
	// BindSceneData hands ownership of h to the player id.
	BindSceneData(id InstanceID, h SceneHandle)

	// SetImageResource attaches compressed texture bytes (KTX or ASTC).
	SetImageResource(h SceneHandle, key string, data []byte)
	// SetImageResourceBitmap attaches a decoded image.
	SetImageResourceBitmap(h SceneHandle, key string, img image.Image)
	// SetImageResourceVideo attaches a prepared video. Ownership of v passes
	// to the scene data.
	SetImageResourceVideo(h SceneHandle, key string, v VideoHandle)
	// SetFontResource registers a font file for a family name used by the scene.
	SetFontResource(h SceneHandle, family, path string)
	// UpdateVariableImage swaps the image of a template slot while playing.
	UpdateVariableImage(id InstanceID, index int, img image.Image) bool

	AddPlugin(id InstanceID, p PluginHandle, name string)

	// PrepareVideo starts preparing a video for playback. An invalid handle
	// means preparation could not start and cb will not be called.
	PrepareVideo(id InstanceID, path, hash string, transparent, hwDecode bool, cb VideoCallback) VideoHandle
	// ReleaseVideo frees a prepared video that was never attached to a scene.
	ReleaseVideo(v VideoHandle)

	// Version reports the engine build version in semver form ("v1.4.0").
	Version() string

	// SetEventHandler installs the single process-wide event sink. The
	// handler is invoked on engine threads.
	SetEventHandler(h EventHandler)
}

// EventHandler receives engine events on an arbitrary thread.
type EventHandler func(Event)

// Event is one engine-originated notification.
type Event struct {
	Instance InstanceID
	Kind     EventKind
	Payload  string
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%d,%q)", e.Kind, e.Instance, e.Payload)
}
