package services

import (
	"errors"
	"fmt"
)

// Kind 錯誤分類，handler 依此對應 HTTP 狀態碼
type Kind string

const (
	KindNotFound       Kind = "NOT_FOUND"
	KindConflict       Kind = "CONFLICT"
	KindUnauthorized   Kind = "UNAUTHORIZED"
	KindStorageFailure Kind = "STORAGE_FAILURE"
	KindInvalid        Kind = "INVALID"
)

// Error carries a Kind plus a user-facing reason and the underlying cause.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare sentinels below by kind, so errors.Is(err, ErrConflict) holds for any conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Reason != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrUnauthorized   = &Error{Kind: KindUnauthorized}
	ErrStorageFailure = &Error{Kind: KindStorageFailure}
	ErrInvalid        = &Error{Kind: KindInvalid}
)

func newError(kind Kind, reason string, err error) error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func notFound(format string, args ...interface{}) error {
	return newError(KindNotFound, fmt.Sprintf(format, args...), nil)
}

func conflict(reason string) error {
	return newError(KindConflict, reason, nil)
}

func storageFailure(reason string, err error) error {
	return newError(KindStorageFailure, reason, err)
}

// KindOf extracts the Kind of err, or "" when err did not come from this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the user-facing reason attached to err.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return ""
}
