package engine

import (
	"errors"
	"fmt"
)

// Kind classifies session failures.
type Kind int

const (
	KindUnknown Kind = iota
	DeviceNotConfigured
	CredentialsMissing
	AuthenticationFailed
	ConnectionFailed
	EngineError
	Cancelled
	AlreadyRunning
	UnknownMode
)

func (k Kind) String() string {
	switch k {
	case DeviceNotConfigured:
		return "DeviceNotConfigured"
	case CredentialsMissing:
		return "CredentialsMissing"
	case AuthenticationFailed:
		return "AuthenticationFailed"
	case ConnectionFailed:
		return "ConnectionFailed"
	case EngineError:
		return "EngineError"
	case Cancelled:
		return "Cancelled"
	case AlreadyRunning:
		return "AlreadyRunning"
	case UnknownMode:
		return "UnknownMode"
	default:
		return "Unknown"
	}
}

// Error is a classified session failure with a human-readable reason.
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

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: Cancelled})
// works regardless of reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError builds an *Error.
func NewError(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf returns the reason of the first *Error in err's chain, or
// err.Error() for other errors.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return err.Error()
}
