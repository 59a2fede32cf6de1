// Package apperr holds the error taxonomy shared by the register core and
// the command backend.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error.
type Kind int

const (
	// KindValidation is raised locally before any command is dispatched.
	KindValidation Kind = iota
	// KindBackend is a structured error returned by the backend (code + message).
	KindBackend
	// KindUnknown wraps a backend failure that could not be parsed.
	KindUnknown
	// KindTransport indicates the command never got a response.
	KindTransport
	// KindIntegrity flags data the backend should never have produced.
	KindIntegrity
	// KindConflict rejects an operation that overlaps one already running.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBackend:
		return "backend"
	case KindUnknown:
		return "unknown"
	case KindTransport:
		return "transport"
	case KindIntegrity:
		return "integrity"
	case KindConflict:
		return "conflict"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Backend error codes.
const (
	CodeNotFound            = "not_found"
	CodeInvalidRequest      = "invalid_request"
	CodeInsufficientStock   = "insufficient_stock"
	CodeConflict            = "conflict"
	CodeCreditLimitExceeded = "credit_limit_exceeded"
	CodeUnauthorized        = "unauthorized"
	CodeForbidden           = "forbidden"
	CodeUnknownCommand      = "unknown_command"
	CodeInternal            = "internal"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Backend(code string, msg string) *Error {
	return &Error{Kind: KindBackend, Code: code, Message: msg}
}

// Unknown keeps the raw backend message so nothing is swallowed.
func Unknown(raw string) *Error {
	return &Error{Kind: KindUnknown, Message: raw}
}

func Transport(err error) *Error {
	return &Error{Kind: KindTransport, Message: "command transport failed", Cause: err}
}

func Integrity(msg string) *Error {
	return &Error{Kind: KindIntegrity, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsKind(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

func IsValidation(err error) bool {
	return IsKind(err, KindValidation)
}

func IsConflict(err error) bool {
	return IsKind(err, KindConflict)
}

// HasCode reports whether err is a backend error carrying code.
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == KindBackend && appErr.Code == code
}
