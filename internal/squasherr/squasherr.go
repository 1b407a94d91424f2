// Package squasherr defines the typed error kinds that cross the
// boundary between the SquashFS core and the top-level driver.
package squasherr

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind classifies an Error for the top-level driver's exit-status logic.
type Kind int

const (
	// KindIO covers mmap, open, read, write, seek, fork, exec, dup and
	// wait failures.
	KindIO Kind = iota
	// KindFormat covers bad magic, unsupported version, malformed
	// metadata headers and other on-disk structural violations.
	KindFormat
	// KindConfigMismatch covers the two images disagreeing on compressor.
	KindConfigMismatch
	// KindUnsupported covers a compression algorithm with no built-in decompressor.
	KindUnsupported
	// KindChildFailure covers the external delta tool exiting non-zero.
	KindChildFailure
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindFormat:
		return "format"
	case KindConfigMismatch:
		return "config-mismatch"
	case KindUnsupported:
		return "unsupported"
	case KindChildFailure:
		return "child-failure"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the Kind the driver needs to
// pick a diagnostic and exit status.
type Error struct {
	Kind Kind
	Msg  string
	Errno int // populated for KindIO when the cause is a syscall errno
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.cause }

// New constructs an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an Error of the given kind around a cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}

// IO wraps an I/O failure, carrying the errno when the cause exposes one.
func IO(msg string, cause error) *Error {
	e := &Error{Kind: KindIO, Msg: msg, cause: cause}
	var errno syscall.Errno
	if errors.As(cause, &errno) {
		e.Errno = int(errno)
	}
	return e
}

// Format wraps a structural/on-disk violation.
func Format(msg string) *Error {
	return &Error{Kind: KindFormat, Msg: msg}
}

// Formatf wraps a structural/on-disk violation with formatting.
func Formatf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindFormat, Msg: fmt.Sprintf(format, args...)}
}

// ConfigMismatch reports the two images disagreeing on some shared setting.
func ConfigMismatch(msg string) *Error {
	return &Error{Kind: KindConfigMismatch, Msg: msg}
}

// Unsupported reports a compression algorithm with no built-in decompressor.
func Unsupported(msg string) *Error {
	return &Error{Kind: KindUnsupported, Msg: msg}
}

// ChildFailure wraps an external delta tool's non-zero exit.
func ChildFailure(msg string, cause error) *Error {
	return &Error{Kind: KindChildFailure, Msg: msg, cause: cause}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
