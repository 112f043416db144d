// Package apperr defines the caller-visible error taxonomy of the request core.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers
type Kind string

const (
	KindValidation         Kind = "VALIDATION"
	KindInvalidState       Kind = "INVALID_STATE"
	KindForbidden          Kind = "FORBIDDEN"
	KindNotFound           Kind = "NOT_FOUND"
	KindTransactionFailure Kind = "TRANSACTION_FAILURE"
)

// Sentinels so callers can match with errors.Is
var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidState       = errors.New("invalid state")
	ErrIllegalTransition  = errors.New("illegal transition")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrTransactionFailure = errors.New("transaction failed")
)

var kindSentinels = map[Kind]error{
	KindValidation:         ErrValidation,
	KindInvalidState:       ErrInvalidState,
	KindForbidden:          ErrForbidden,
	KindNotFound:           ErrNotFound,
	KindTransactionFailure: ErrTransactionFailure,
}

// Error is a typed core error. Details identify the violated rule
// (current status, attempted action, offending ids) without internals.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Details map[string]any

	illegalTransition bool
	cause             error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches the kind sentinels
func (e *Error) Is(target error) bool {
	if target == ErrIllegalTransition {
		return e.illegalTransition
	}
	return kindSentinels[e.Kind] == target
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a rule detail and returns the error for chaining
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Validation reports malformed or missing input
func Validation(op, format string, args ...any) *Error {
	return newError(KindValidation, op, format, args...)
}

// InvalidState reports an action that is illegal for the current status
func InvalidState(op, format string, args ...any) *Error {
	return newError(KindInvalidState, op, format, args...)
}

// IllegalTransition reports a status with no mapped next state for an action
func IllegalTransition(op string, current, action string) *Error {
	e := newError(KindInvalidState, op, "action %s is not permitted from status %s", action, current)
	e.illegalTransition = true
	return e.WithDetail("current_status", current).WithDetail("action", action)
}

// Forbidden reports a missing capability
func Forbidden(op, format string, args ...any) *Error {
	return newError(KindForbidden, op, format, args...)
}

// NotFound reports a missing entity
func NotFound(op, entity string, id any) *Error {
	return newError(KindNotFound, op, "%s %v not found", entity, id).
		WithDetail("entity", entity).
		WithDetail("id", id)
}

// TransactionFailure wraps an aborted persistence transaction
func TransactionFailure(op string, cause error) *Error {
	e := newError(KindTransactionFailure, op, "transaction aborted")
	e.cause = cause
	return e
}

// KindOf returns the kind of the first *Error in the chain
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Retryable reports whether the caller may retry the operation as-is
func Retryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindTransactionFailure
}

// AsTransactionFailure leaves typed errors untouched and wraps anything else
func AsTransactionFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := KindOf(err); ok {
		return err
	}
	return TransactionFailure(op, err)
}
