// Package errors is the project error type: a code for machines, a message for
// people, and optional field and operation tags.
// Import it as perr
package errors

import (
	stderrs "errors"
	"fmt"
)

// Error is the structured error carried through every layer
type Error struct {
	orig  error
	msg   string
	code  ErrorCode
	field string
	op    string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.msg
	if e.op != "" {
		msg = e.op + ": " + msg
	}
	if e.orig != nil {
		return msg + ": " + e.orig.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field returns the offending input field, if any
func (e *Error) Field() string { return e.field }

// Op returns the operation label, if any
func (e *Error) Op() string { return e.op }

// New returns an error with code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns an error with code and a formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns an error with code and message around orig
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf is Wrap with a formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// As returns the outermost *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf returns err's code, or ErrorCodeUnknown for foreign errors
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err carries code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// HTTPStatus returns the mapped http status for any error
func HTTPStatus(err error) int { return HTTPStatusCode(CodeOf(err)) }

// with copies e and applies fn. Foreign errors pass through untouched
func with(err error, fn func(*Error)) error {
	e, ok := As(err)
	if !ok {
		return err
	}
	c := *e
	fn(&c)
	return &c
}

// WithField tags err with the offending input field
func WithField(err error, field string) error { return with(err, func(e *Error) { e.field = field }) }

// WithOp tags err with the operation that failed, e.g. "tms.GetOrder"
func WithOp(err error, op string) error { return with(err, func(e *Error) { e.op = op }) }

// Wire is the JSON form of an error in API bodies and report rows
type Wire struct {
	Code    ErrorCode `json:"code"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

// WireFrom converts any error into its Wire form
func WireFrom(err error) Wire {
	if err == nil {
		return Wire{}
	}
	e, ok := As(err)
	if !ok {
		return Wire{Code: ErrorCodeUnknown, Kind: ErrorCodeUnknown.String(), Message: err.Error()}
	}
	return Wire{Code: e.code, Kind: e.code.String(), Message: e.Error(), Field: e.field}
}

// Retryable reports whether err deserves another attempt: a transient transport
// code, or Postgres contention
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := As(err); ok && IsTransient(e.code) {
		return true
	}
	return IsRetryable(err)
}

func NotFoundf(format string, a ...any) error     { return Newf(ErrorCodeNotFound, format, a...) }
func InvalidArgf(format string, a ...any) error   { return Newf(ErrorCodeInvalidArgument, format, a...) }
func Validationf(format string, a ...any) error   { return Newf(ErrorCodeValidation, format, a...) }
func JSONErrf(format string, a ...any) error      { return Newf(ErrorCodeJSON, format, a...) }
func PanicErrf(format string, a ...any) error     { return Newf(ErrorCodePanic, format, a...) }
func Unauthorizedf(format string, a ...any) error { return Newf(ErrorCodeUnauthorized, format, a...) }
func Conflictf(format string, a ...any) error     { return Newf(ErrorCodeConflict, format, a...) }
func InvalidStatef(format string, a ...any) error { return Newf(ErrorCodeInvalidState, format, a...) }
func Contractf(format string, a ...any) error     { return Newf(ErrorCodeContractStore, format, a...) }
