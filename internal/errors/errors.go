package errors

import (
	"errors"
	"fmt"
)

// Kind represents the type of error
type Kind int

const (
	ErrInternal Kind = iota
	ErrNotFound
	ErrUser
	ErrForbidden
	ErrUnauthorized
	ErrDataIntegrity
	ErrBackend
)

func (k Kind) String() string {
	switch k {
	case ErrNotFound:
		return "not found"
	case ErrUser:
		return "user error"
	case ErrForbidden:
		return "forbidden"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrDataIntegrity:
		return "data integrity"
	case ErrBackend:
		return "backend"
	default:
		return "internal"
	}
}

// Error is an application-level error with a kind for classification
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Constructor functions for common error types

func NotFound(msg string) *Error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// User reports a request that is well-formed but cannot be honored,
// such as an identifier that is already taken.
func User(msg string) *Error {
	return &Error{Kind: ErrUser, Message: msg}
}

func Userf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrUser, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: ErrForbidden, Message: msg}
}

func Forbiddenf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrForbidden, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: ErrUnauthorized, Message: msg}
}

func DataIntegrity(msg string) *Error {
	return &Error{Kind: ErrDataIntegrity, Message: msg}
}

func DataIntegrityf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrDataIntegrity, Message: fmt.Sprintf(format, args...)}
}

// Backend wraps a storage or transport failure.
func Backend(err error, msg string) *Error {
	return &Error{Kind: ErrBackend, Message: msg, Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: ErrInternal, Message: "internal error", Err: err}
}

func Internalf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with additional context
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain,
// or ErrInternal when there is none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ErrInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
