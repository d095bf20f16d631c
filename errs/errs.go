// Package errs
// Author: momentics <momentics@gmail.com>
//
// Structured error taxonomy for the ingestion engine: startup failures,
// per-packet hot-path failures, and controller-misuse errors all carry a
// Kind so callers can branch without string matching.
package errs

import "fmt"

// Kind classifies an error into one of the engine's recognized failure modes.
type Kind int

const (
	KindOK Kind = iota
	KindTopologyUnavailable
	KindAllocationFailed
	KindPortInvalid
	KindPortConfigFailed
	KindAlreadyRunning
	KindNoCores
	KindExtractionFailed
	KindHandlerPanic
)

func (k Kind) String() string {
	switch k {
	case KindTopologyUnavailable:
		return "TopologyUnavailable"
	case KindAllocationFailed:
		return "AllocationFailed"
	case KindPortInvalid:
		return "PortInvalid"
	case KindPortConfigFailed:
		return "PortConfigFailed"
	case KindAlreadyRunning:
		return "AlreadyRunning"
	case KindNoCores:
		return "NoCores"
	case KindExtractionFailed:
		return "ExtractionFailed"
	case KindHandlerPanic:
		return "HandlerPanic"
	default:
		return "OK"
	}
}

// Error is a structured error with a kind and free-form context, mirroring
// the shape used throughout this codebase's api package.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (context: %+v)", e.Kind, e.Message, e.Context)
}

// New creates a structured error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a structured error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithContext attaches a key/value pair to the error and returns it for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// PortConfigFailed tags a port bring-up failure with the step that failed,
// so callers can tell apart a dev_configure failure from a queue setup one.
func PortConfigFailed(step string, cause error) *Error {
	return Newf(KindPortConfigFailed, "port configuration step %q failed: %v", step, cause).
		WithContext("step", step)
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
