package player

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/go-drift/effects/pkg/engine"
)

// The registry maps live instance ids to their players. The lock covers
// register, unregister and lookup only; events are dispatched after it is
// released. Entries are weak so registration never keeps a player alive.
var registry = struct {
	mu      sync.RWMutex
	players map[engine.InstanceID]weak.Pointer[Player]
}{players: make(map[engine.InstanceID]weak.Pointer[Player])}

var lastInstance atomic.Int64

func nextInstanceID() engine.InstanceID {
	return engine.InstanceID(lastInstance.Add(1))
}

func register(id engine.InstanceID, p *Player) {
	registry.mu.Lock()
	registry.players[id] = weak.Make(p)
	registry.mu.Unlock()
}

func unregister(id engine.InstanceID) {
	if id == 0 {
		return
	}
	registry.mu.Lock()
	delete(registry.players, id)
	registry.mu.Unlock()
}

func lookup(id engine.InstanceID) *Player {
	registry.mu.RLock()
	wp, ok := registry.players[id]
	registry.mu.RUnlock()
	if !ok {
		return nil
	}
	return wp.Value()
}

// Registered returns how many instance ids are currently registered.
func Registered() int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return len(registry.players)
}

// Route is the process-wide engine event handler. It resolves the target
// player and hands the event over; events for ids that are not registered,
// or whose player was collected, are dropped.
func Route(ev engine.Event) {
	p := lookup(ev.Instance)
	if p == nil {
		slog.Debug("event for unknown instance",
			slog.String("component", "player"),
			slog.String("event", ev.String()))
		return
	}
	p.handleEvent(ev)
}
