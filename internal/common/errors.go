// Package common holds the error taxonomy, value types and small
// interfaces shared across every subsystem of the engine.
package common

import (
	"errors"
	"fmt"
)

// Kind is the stable error taxonomy from the engine's error-handling design.
// Every fallible operation returns an *Error (or wraps one) carrying one of
// these kinds; callers switch on Kind rather than on error strings.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "not_found"
	KindAlreadyExists       Kind = "already_exists"
	KindConstraintViolation Kind = "constraint_violation"
	KindConcurrencyError    Kind = "concurrency_error"
	KindCorruptState        Kind = "corrupt_state"
	KindIOError             Kind = "io_error"
	KindClusterError        Kind = "cluster_error"
	KindShutdown            Kind = "shutdown"
	KindUnsupported         Kind = "unsupported"
)

// Error is the engine's concrete error type. It is never used for
// control-flow via panic/recover: every fallible function returns one
// explicitly.
type Error struct {
	Kind      Kind
	Message   string
	Retriable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, New(KindNotFound, "")) style matching on Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs a non-retriable *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind that wraps cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Retry marks an error as retriable (used for deadlock / serialization
// failures per §7 propagation policy).
func Retry(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Retriable: true}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Sentinel errors kept for the leaf storage primitives, mirrored on the
// teacher's common/errors.go (ErrKeyNotFound, ErrClosed, ErrKeyEmpty...).
// Higher layers translate these into *Error via Wrap when they cross a
// subsystem boundary.
var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrKeyEmpty     = errors.New("key cannot be empty")
	ErrClosed       = errors.New("storage engine closed")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrPageFull     = errors.New("page is full")
)
