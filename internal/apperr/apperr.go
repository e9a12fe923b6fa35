package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindNotFound        Kind = "not_found"
	KindPermission      Kind = "permission"
	KindPaymentProvider Kind = "payment_provider"
)

// Error is a domain failure that the HTTP layer knows how to render.
// Validation errors carry Fields keyed by request field name; the other
// kinds carry a single Message.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case len(e.Fields) > 0:
		return fmt.Sprintf("%s: %v", e.Kind, e.Fields)
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind and message, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message && t.Fields == nil
}

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Fields: map[string]string{field: msg}}
}

func ValidationFields(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Fields: fields}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Permission(msg string) *Error {
	return &Error{Kind: KindPermission, Message: msg}
}

func PaymentProvider(err error) *Error {
	return &Error{Kind: KindPaymentProvider, Message: "payment provider unavailable", Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As is a shorthand for errors.As into *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
