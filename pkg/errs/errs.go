// Package errs implements the pipeline engine's error taxonomy (spec §7):
// type_mismatch, invalid_configuration, parse_error, logic_error,
// unspecified, and the silent sentinel used to suppress diagnostic cascade
// noise once an error has already been reported.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for propagation-policy decisions (spec §7).
type Kind int

const (
	TypeMismatch Kind = iota
	InvalidConfiguration
	ParseError
	LogicError
	Unspecified
	// Silent marks an error whose underlying failure was already reported
	// as a diagnostic; callers must not re-report it.
	Silent
)

func (k Kind) String() string {
	switch k {
	case TypeMismatch:
		return "type_mismatch"
	case InvalidConfiguration:
		return "invalid_configuration"
	case ParseError:
		return "parse_error"
	case LogicError:
		return "logic_error"
	case Unspecified:
		return "unspecified"
	case Silent:
		return "silent"
	default:
		return "unknown"
	}
}

// Error is a taxonomy-tagged, wrappable error.
type Error struct {
	Kind Kind
	Op   string // operator or component name, for diagnostics
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind and an operator/component name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf is New with fmt.Errorf-style formatting of the wrapped message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// ErrAborted is the silent sentinel a node's abort latch is set with when
// it is aborting because the diagnostic bus already reported the cause
// elsewhere (spec §4.2, §7) — not because this node discovered a new
// error of its own.
var ErrAborted = errors.New("aborted: cause already reported")

// AsSilent rewraps err as a Silent-kind error: the underlying cause is
// preserved for logging, but propagation code must not emit a second
// diagnostic for it. A nil err is replaced with ErrAborted.
func AsSilent(err error) *Error {
	if err == nil {
		err = ErrAborted
	}
	return &Error{Kind: Silent, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, defaulting to Unspecified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unspecified
}

// IsSilent reports whether err has already been diagnostically reported
// and should not trigger a second diagnostic.
func IsSilent(err error) bool {
	return KindOf(err) == Silent
}
