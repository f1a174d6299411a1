package player

import (
	"fmt"

	"github.com/go-drift/effects/pkg/engine"
	"github.com/go-drift/effects/pkg/errors"
)

// Extension contributes native plugins and reacts to scene creation.
// Hooks run while the player holds its handle lock and must not call back
// into the player.
type Extension interface {
	// Plugin returns a native plugin to attach when the player is created.
	// An invalid handle means the extension has none.
	Plugin() (h engine.PluginHandle, name string)
	// SceneDataCreated is called after the scene data is parsed and before
	// resources are committed. A non-nil error fails initialization with
	// its message.
	SceneDataCreated(h engine.SceneHandle) error
	// OnDestroy is called once when the player is torn down.
	OnDestroy()
}

// EventListener receives interactive item messages.
type EventListener interface {
	OnMessageItem(itemName, phrase string)
}

// EventListenerFunc adapts a function to EventListener.
type EventListenerFunc func(itemName, phrase string)

func (f EventListenerFunc) OnMessageItem(itemName, phrase string) { f(itemName, phrase) }

// Phrases passed to EventListener.
const (
	PhraseBegin = "MESSAGE_ITEM_PHRASE_BEGIN"
	PhraseEnd   = "MESSAGE_ITEM_PHRASE_END"
)

// Placeholder is the static view shown instead of the animation until the
// first frame, and for good once the player downgrades.
type Placeholder interface {
	SetVisible(visible bool)
}

func pluginOf(ext Extension) (h engine.PluginHandle, name string) {
	errors.Guard("player.Extension.Plugin", func() {
		h, name = ext.Plugin()
	})
	return h, name
}

func sceneCreated(ext Extension, h engine.SceneHandle) (err error) {
	if !errors.Guard("player.Extension.SceneDataCreated", func() {
		err = ext.SceneDataCreated(h)
	}) {
		err = fmt.Errorf("extension panicked")
	}
	return err
}

func notifyDestroy(exts []Extension) {
	for _, ext := range exts {
		errors.Guard("player.Extension.OnDestroy", ext.OnDestroy)
	}
}
