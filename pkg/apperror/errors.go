package apperror

import (
	"context"
	"errors"
	"fmt"
)

type Kind string

const (
	KindInput           Kind = "input"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindPolicy          Kind = "policy"
	KindTransient       Kind = "transient"
	KindTimeout         Kind = "timeout"
	KindTenantIsolation Kind = "tenant_isolation"
	KindInternal        Kind = "internal"
)

// Error is the application error carried from repositories and services up to the HTTP boundary.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
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

// Is matches two application errors by code so wrapped sentinels compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap returns a copy of sentinel carrying cause.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: cause}
}

// WithMessage returns a copy of sentinel with a more specific message.
func WithMessage(sentinel *Error, format string, args ...interface{}) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: fmt.Sprintf(format, args...)}
}

func Input(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInput, Code: "invalid_input", Message: fmt.Sprintf(format, args...)}
}

func Transient(message string, cause error) *Error {
	return &Error{Kind: KindTransient, Code: "transient", Message: message, Err: cause}
}

func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: message, Err: cause}
}

// KindOf reports the kind of err. Context deadline errors count as timeouts.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// CodeOf returns the machine readable code of err, or "" when it has none.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsRetryable reports whether the operation that produced err may succeed if attempted again.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindTimeout:
		return true
	}
	return false
}
