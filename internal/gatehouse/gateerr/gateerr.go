// Package gateerr defines the error taxonomy shared by the gate services and
// the transports that expose them.
package gateerr

import (
	"errors"
	"fmt"
)

// Kind classifies a gate error.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindAccessDenied Kind = "access_denied"
	KindBlacklisted  Kind = "blacklisted"
	KindInvalidState Kind = "invalid_state"
	KindUnauthorized Kind = "unauthorized"
	KindInvalid      Kind = "invalid"
)

// Error is a classified gate error.  Reason is the human-readable text shown
// to the guard or resident; Err is an optional underlying cause.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, gateerr.ErrAccessDenied) works for any
// access denial.  A blacklist denial is also an access denial.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind == t.Kind {
		return true
	}
	return e.Kind == KindBlacklisted && t.Kind == KindAccessDenied
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrAccessDenied = &Error{Kind: KindAccessDenied}
	ErrBlacklisted  = &Error{Kind: KindBlacklisted}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrInvalid      = &Error{Kind: KindInvalid}
)

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func NotFound(reason string) *Error     { return New(KindNotFound, reason) }
func AccessDenied(reason string) *Error { return New(KindAccessDenied, reason) }
func Blacklisted(reason string) *Error  { return New(KindBlacklisted, reason) }
func InvalidState(reason string) *Error { return New(KindInvalidState, reason) }
func Unauthorized(reason string) *Error { return New(KindUnauthorized, reason) }
func Invalid(reason string) *Error      { return New(KindInvalid, reason) }

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// is not a gate error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// ReasonOf returns the reason of the first *Error in err's chain, falling back
// to err.Error().
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var ge *Error
	if errors.As(err, &ge) && ge.Reason != "" {
		return ge.Reason
	}
	return err.Error()
}
