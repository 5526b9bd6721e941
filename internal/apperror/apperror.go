// Package apperror defines the typed failures returned by the booking core.
// Every failure carries a stable Kind and a human-readable detail; handlers
// map kinds to transport status codes.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure.
type Kind string

const (
	KindInvalidRequest    Kind = "invalid_request"
	KindNotFound          Kind = "not_found"
	KindCapacityExceeded  Kind = "capacity_exceeded"
	KindSlotTaken         Kind = "slot_taken"
	KindLockConflict      Kind = "lock_conflict"
	KindForbidden         Kind = "forbidden"
	KindAlreadySeated     Kind = "already_seated"
	KindInvalidTransition Kind = "invalid_transition"
	KindInvalidStatus     Kind = "invalid_status"
	KindUnavailable       Kind = "unavailable"
	KindInternal          Kind = "internal"
)

// Error is a typed failure.  RetryAfter is only set for lock conflicts.
type Error struct {
	Kind       Kind
	Detail     string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so that errors.Is(err, ErrSlotTaken) works for any
// slot_taken failure regardless of detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidRequest    = &Error{Kind: KindInvalidRequest}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrCapacityExceeded  = &Error{Kind: KindCapacityExceeded}
	ErrSlotTaken         = &Error{Kind: KindSlotTaken}
	ErrLockConflict      = &Error{Kind: KindLockConflict}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrAlreadySeated     = &Error{Kind: KindAlreadySeated}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrInvalidStatus     = &Error{Kind: KindInvalidStatus}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
	ErrInternal          = &Error{Kind: KindInternal}
)

// New returns a failure of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf is New with a formatted detail.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and detail to an underlying error.
func Wrap(kind Kind, err error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// LockConflict reports a table held by someone else for remaining more.
func LockConflict(remaining time.Duration) *Error {
	secs := int(remaining / time.Second)
	if remaining%time.Second > 0 {
		secs++
	}
	return &Error{
		Kind:       KindLockConflict,
		Detail:     fmt.Sprintf("table is locked, retry in %d seconds", secs),
		RetryAfter: time.Duration(secs) * time.Second,
	}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RetryAfterSeconds returns the wait hint carried by err in whole seconds.
func RetryAfterSeconds(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return int(e.RetryAfter / time.Second)
	}
	return 0
}
