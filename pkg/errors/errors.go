// Package errors provides structured error reporting for the effects player.
//
// Failures inside the player are never thrown out of public entry points. They
// are delivered to the relevant asynchronous callback and, in parallel, reported
// here so hosts can route them to their own logging or crash collection.
package errors

import (
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindDowngrade indicates a deliberate switch to the static fallback.
	KindDowngrade
	// KindFetch indicates a resource download or read failure.
	KindFetch
	// KindNative indicates a native engine handle failure.
	KindNative
	// KindRuntime indicates an error reported by the engine while playing.
	KindRuntime
	// KindCallback indicates a failure inside caller supplied code.
	KindCallback
	// KindParsing indicates a malformed payload or manifest.
	KindParsing
	// KindConfig indicates a configuration load failure.
	KindConfig
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindDowngrade:
		return "downgrade"
	case KindFetch:
		return "fetch"
	case KindNative:
		return "native"
	case KindRuntime:
		return "runtime"
	case KindCallback:
		return "callback"
	case KindParsing:
		return "parsing"
	case KindConfig:
		return "config"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Error represents a structured error in the effects player.
type Error struct {
	// Op is the operation that failed (e.g., "player.Initialize").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// Instance is the player instance identity, if applicable.
	Instance int64
	// Source is the formatted source id of the animation, if applicable.
	Source string
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *Error) Error() string {
	switch {
	case e.Instance != 0 && e.Source != "":
		return fmt.Sprintf("%s [%s] instance=%d source=%s: %v", e.Op, e.Kind, e.Instance, e.Source, e.Err)
	case e.Instance != 0:
		return fmt.Sprintf("%s [%s] instance=%d: %v", e.Op, e.Kind, e.Instance, e.Err)
	case e.Source != "":
		return fmt.Sprintf("%s [%s] source=%s: %v", e.Op, e.Kind, e.Source, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "player.PlayCallback.OnFinish").
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// ParseError represents a failure to parse an engine payload or manifest field.
type ParseError struct {
	// Field is the payload or manifest field being parsed.
	Field string
	// DataType is the expected type name.
	DataType string
	// Got is the actual data received.
	Got any
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s from %s: got %T(%v)", e.DataType, e.Field, e.Got, e.Got)
}

// Handler receives errors reported by the player.
type Handler interface {
	// HandleError is called when an error occurs.
	HandleError(err *Error)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}
