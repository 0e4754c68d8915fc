// Package apperr classifies failures so the CLI can map each one to a
// stable exit code. Every outbound call and the config resolver tag their
// errors with a Kind at the boundary where the failure is first seen.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the failure class of an Error.
type Kind int

const (
	// KindUnknown is the zero value; errors without a kind map here.
	KindUnknown Kind = iota
	// KindConfig is a missing or invalid input parameter.
	KindConfig
	// KindNetwork is a transport-level failure, including timeouts.
	KindNetwork
	// KindAuth is a rejected credential (401/403 from the API).
	KindAuth
	// KindAPI is any other non-success status from GitLab or the webhook.
	KindAPI
	// KindDecode is a response body that does not match the expected shape.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "configuration error"
	case KindNetwork:
		return "network error"
	case KindAuth:
		return "auth error"
	case KindAPI:
		return "api error"
	case KindDecode:
		return "decode error"
	default:
		return "error"
	}
}

// ExitCode returns the process exit code for the kind. Distinct codes keep
// cron wrappers able to tell credential problems from flaky networking.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfig:
		return 2
	case KindNetwork:
		return 3
	case KindAuth:
		return 4
	case KindAPI:
		return 5
	case KindDecode:
		return 6
	default:
		return 1
	}
}

// Error is a kinded error. Msg describes the failing operation; Err is the
// underlying cause, if any.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a kinded error with a formatted message and no cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a kinded error around cause. A nil cause returns a nil error,
// so call sites can wrap unconditionally; the untyped return keeps that nil
// usable through the error interface.
func Wrap(kind Kind, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the kind from err, unwrapping as needed. Errors that carry
// no kind report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ExitCode returns the exit code for err: 0 for nil, the kind's code for
// kinded errors, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
