// Package dberr defines the stable error taxonomy shared by every shelfdb
// component. Every error a caller can observe from the core maps to one of
// the named codes here, so the wire layer can report a stable code plus a
// human message without inspecting error strings.
package dberr

import "fmt"

// Code is a stable, user-visible error identifier.
type Code string

const (
	InvalidQuery                  Code = "InvalidQuery"
	InvalidQueryOp                Code = "InvalidQueryOp"
	InvalidQueryOpCombo            Code = "InvalidQueryOpCombo"
	InvalidQueryCollationMismatch  Code = "InvalidQueryCollationMismatch"

	KindNotRegistered Code = "KindNotRegistered"
	KindConflict      Code = "KindConflict"
	AccessDenied      Code = "AccessDenied"

	ObjectNotFound   Code = "ObjectNotFound"
	RevisionConflict Code = "RevisionConflict"

	InvalidShardID Code = "InvalidShardId"
	ShardInactive  Code = "ShardInactive"

	InconsistentIndex   Code = "InconsistentIndex"
	InternalIndexOnFind Code = "InternalIndexOnFind"

	InvalidEncoding Code = "InvalidEncoding"
	UnknownToken    Code = "UnknownToken"
	StorageCorrupt  Code = "StorageCorrupt"
	StorageIO       Code = "StorageIO"

	QuotaExceeded Code = "QuotaExceeded"

	InvalidAggregateType Code = "InvalidAggregateType"
	AggregateDeprecated  Code = "AggregateDeprecated"

	AppProfileDisabled         Code = "AppProfileDisabled"
	AppProfileAdminRestriction Code = "AppProfileAdminRestriction"

	NotOpen Code = "NotOpen"
)

// Error is a dberr-tagged error: a stable code, a human message, and an
// optional wrapped cause for %w-based unwrapping.
type Error struct {
	code    Code
	message string
	cause   error
}

// New builds an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error that carries an underlying cause for errors.Is/As.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Code returns the stable error code.
func (e *Error) Code() Code { return e.code }

// Message returns the human-readable message, without the code prefix.
func (e *Error) Message() string { return e.message }

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether err is a dberr.Error carrying the given code.
func Is(err error, code Code) bool {
	var de *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			de = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return de != nil && de.code == code
}

// CodeOf extracts the stable code from err, or "" if err is not a
// dberr.Error.
func CodeOf(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.code
	}
	return ""
}
