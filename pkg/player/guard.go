package player

import (
	"sync"

	"github.com/go-drift/effects/pkg/engine"
	"github.com/go-drift/effects/pkg/resource"
)

// State is the lifecycle state of the native handles of one player.
type State int

const (
	Uninitialized State = iota
	Creating
	Ready
	Destroying
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Creating:
		return "creating"
	case Ready:
		return "ready"
	case Destroying:
		return "destroying"
	case Destroyed:
		return "destroyed"
	}
	return "unknown"
}

// guard owns the native handles of one player. Every handle-mutating call
// runs under mu. It must not reference the Player: it is the argument of
// the player's cleanup.
type guard struct {
	mu         sync.Mutex
	eng        engine.Engine
	state      State
	id         engine.InstanceID
	scene      engine.SceneHandle
	extensions []Extension
	batch      *resource.Batch
}

// live reports whether the native player exists.
func (g *guard) live() bool {
	return g.id != 0 && (g.state == Creating || g.state == Ready)
}

// do runs fn with the instance id while the native player exists. It
// reports false, without calling fn, otherwise.
func (g *guard) do(fn func(id engine.InstanceID)) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.live() {
		return false
	}
	fn(g.id)
	return true
}

// destroy tears the handles down once. It returns the extensions to notify
// and whether this call performed the teardown.
func (g *guard) destroy() ([]Extension, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.destroyLocked()
}

func (g *guard) destroyLocked() ([]Extension, bool) {
	if g.state == Destroying || g.state == Destroyed {
		return nil, false
	}
	g.state = Destroying
	if g.id != 0 {
		g.eng.Destroy(g.id)
		unregister(g.id)
		g.id = 0
	}
	if g.scene.Valid() {
		g.eng.DestroySceneData(g.scene)
	}
	g.scene = 0
	exts := g.extensions
	g.extensions = nil
	if g.batch != nil {
		g.batch.Abandon()
		g.batch = nil
	}
	g.state = Destroyed
	return exts, true
}

// teardown is the cleanup path for players collected without Destroy.
func (g *guard) teardown() {
	exts, ok := g.destroy()
	if ok {
		notifyDestroy(exts)
	}
}
