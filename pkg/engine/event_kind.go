package engine

import "strconv"

// EventKind is the type of an engine event. The numeric values are the ones
// the native layer puts on the wire.
type EventKind int

const (
	EventUnknown EventKind = iota
	// EventStatistics reports GPU capabilities as "<compressed>_<gles>".
	EventStatistics
	// EventStart fires when the first frame is on screen.
	EventStart
	// EventThreadStart marks the render worker entering a run; payload is the thread name.
	EventThreadStart
	// EventThreadEnd marks the render worker leaving a run.
	EventThreadEnd
	// EventAnimationEnd carries the play token of the finished frame range.
	EventAnimationEnd
	// EventInteractBegin carries the name of an interactive item entering its phrase.
	EventInteractBegin
	// EventInteractEnd carries the name of an interactive item leaving its phrase.
	EventInteractEnd
	// EventSurfaceInitError reports a failed EGL/surface initialization.
	EventSurfaceInitError
	// EventRuntimeError reports an unrecoverable engine failure.
	EventRuntimeError
)

var eventKindNames = [...]string{
	EventUnknown:          "unknown",
	EventStatistics:       "statistics",
	EventStart:            "start",
	EventThreadStart:      "thread_start",
	EventThreadEnd:        "thread_end",
	EventAnimationEnd:     "animation_end",
	EventInteractBegin:    "interact_begin",
	EventInteractEnd:      "interact_end",
	EventSurfaceInitError: "surface_init_error",
	EventRuntimeError:     "runtime_error",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "EventKind(" + strconv.Itoa(int(k)) + ")"
}

// Fatal reports whether the event means the instance cannot continue.
func (k EventKind) Fatal() bool {
	return k == EventSurfaceInitError || k == EventRuntimeError
}

// ParseEventKind maps a wire name back to its kind. Unrecognized names yield
// EventUnknown and false.
func ParseEventKind(name string) (EventKind, bool) {
	for i, n := range eventKindNames {
		if i != int(EventUnknown) && n == name {
			return EventKind(i), true
		}
	}
	return EventUnknown, false
}
