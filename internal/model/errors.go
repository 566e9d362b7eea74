package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures at stage boundaries
type ErrorKind string

const (
	KindSchema    ErrorKind = "schema_error"
	KindPolicy    ErrorKind = "policy_error"
	KindRetrieval ErrorKind = "retrieval_error"
	KindValidator ErrorKind = "validator_error"
	KindTimeout   ErrorKind = "timeout"
	KindInput     ErrorKind = "input_error"
	KindInternal  ErrorKind = "internal"
)

// Error is a classified failure. Err carries internal detail that is logged
// for operators but never returned to external callers.
type Error struct {
	Kind    ErrorKind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Field != "" {
		msg += " [" + e.Field + "]"
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PublicError is the caller-facing form of an Error
type PublicError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
}

// Public strips the wrapped cause
func (e *Error) Public() PublicError {
	if e.Kind == KindInternal {
		return PublicError{Kind: KindInternal, Message: "internal error"}
	}
	return PublicError{Kind: e.Kind, Message: e.Message, Field: e.Field}
}

// Fatal reports whether errors of this kind abort a run
func (k ErrorKind) Fatal() bool {
	switch k {
	case KindRetrieval, KindValidator:
		return false
	}
	return true
}

// SchemaError builds a schema_error
func SchemaError(field, format string, args ...any) *Error {
	return &Error{Kind: KindSchema, Field: field, Message: fmt.Sprintf(format, args...)}
}

// PolicyError builds a policy_error
func PolicyError(field, format string, args ...any) *Error {
	return &Error{Kind: KindPolicy, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind
func Wrap(kind ErrorKind, field, message string, err error) *Error {
	return &Error{Kind: kind, Field: field, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError returns err as an *Error, classifying unknown errors as internal
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}
