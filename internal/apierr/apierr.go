// Package apierr defines the error kinds surfaced by the recognition core,
// decoupled from HTTP so they can be tested and logged without a router.
package apierr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure the core can report.
type Kind string

const (
	InvalidImage      Kind = "invalid_image"
	NoFace            Kind = "no_face"
	FaceTooSmall      Kind = "face_too_small"
	FaceTooLarge      Kind = "face_too_large"
	LowQuality        Kind = "low_quality"
	Duplicate         Kind = "duplicate"
	NotFound          Kind = "not_found"
	CapacityExceeded  Kind = "capacity_exceeded"
	NotInitialized    Kind = "not_initialized"
	Timeout           Kind = "timeout"
	Internal          Kind = "internal"
)

// Error wraps a Kind with a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind and message to an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal for anything
// that isn't an *Error produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err (or anything it wraps) carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
