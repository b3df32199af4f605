package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures so the HTTP boundary can map each one
// to its own status code and message.
type ErrorKind string

const (
	KindOversize         ErrorKind = "oversize"
	KindInvalidParameter ErrorKind = "invalid-parameter"
	KindUnsupportedType  ErrorKind = "unsupported-type"
	KindDecodeFailure    ErrorKind = "decode-failure"
	KindInternal         ErrorKind = "internal"
)

var (
	// ErrOversize signals that an upload exceeds the size ceiling.
	ErrOversize = errors.New("upload too large")
	// ErrInvalidParameter signals a malformed or missing form field.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrUnsupportedType signals an upload whose extension is not recognised.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrDecodeFailure signals a corrupt upload or an encode error.
	ErrDecodeFailure = errors.New("decode failure")
	// ErrInternal signals any other unexpected failure.
	ErrInternal = errors.New("internal error")
)

var sentinels = map[ErrorKind]error{
	KindOversize:         ErrOversize,
	KindInvalidParameter: ErrInvalidParameter,
	KindUnsupportedType:  ErrUnsupportedType,
	KindDecodeFailure:    ErrDecodeFailure,
	KindInternal:         ErrInternal,
}

// Error is the typed result every pipeline stage returns on failure.
type Error struct {
	Kind ErrorKind
	File string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.File != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.File, e.Err)
	case e.File != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.File)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match an *Error against the sentinel of its kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func newError(kind ErrorKind, file string, err error) *Error {
	return &Error{Kind: kind, File: file, Err: err}
}

// Oversize reports that file exceeds limit bytes.
func Oversize(file string, limit int64) *Error {
	return newError(KindOversize, file, fmt.Errorf("exceeds %d bytes", limit))
}

// InvalidParameter reports a bad form field or request shape.
func InvalidParameter(format string, args ...any) *Error {
	return newError(KindInvalidParameter, "", fmt.Errorf(format, args...))
}

// InvalidFile reports a per-file parameter violation, such as too many PDF pages.
func InvalidFile(file string, err error) *Error {
	return newError(KindInvalidParameter, file, err)
}

// Unsupported reports an upload that classification rejected.
func Unsupported(file string) *Error {
	return newError(KindUnsupportedType, file, nil)
}

// DecodeFailure wraps a decode, rasterize or encode error for file.
func DecodeFailure(file string, err error) *Error {
	return newError(KindDecodeFailure, file, err)
}

// Internal wraps an unexpected error.
func Internal(err error) *Error {
	return newError(KindInternal, "", err)
}

// KindOf returns the kind of err, treating untyped errors as internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
