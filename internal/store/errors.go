package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeDuplicateID indicates a batch contained an id already in the store.
	ErrCodeDuplicateID ErrorCode = "DUPLICATE_ID"

	// ErrCodeDependencyNotFound indicates a batch referenced a required id
	// that was not in the store when the edge was written.
	ErrCodeDependencyNotFound ErrorCode = "DEPENDENCY_NOT_FOUND"

	// ErrCodeNotFound indicates an update or lookup of an unknown id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidRecord indicates a record failed tx.Record.Validate.
	ErrCodeInvalidRecord ErrorCode = "INVALID_RECORD"

	// ErrCodeInvalidTransition indicates an update that does not follow
	// a permitted lifecycle edge.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrCodeStatusConflict indicates a compare-and-swap update found a
	// different status than expected.
	ErrCodeStatusConflict ErrorCode = "STATUS_CONFLICT"

	// ErrCodeStorageUnavailable indicates an I/O failure or corrupt data in
	// the underlying database.
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
)

// Error is returned by every Store operation that fails.
type Error struct {
	Code    ErrorCode
	Message string

	// TxID identifies the affected transaction, when known.
	TxID string

	// Err is the underlying cause, when there is one.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.TxID != "" {
		msg = fmt.Sprintf("%s (tx=%s)", msg, e.TxID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of a store error, or "" for other errors.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsDuplicateID reports whether err is a duplicate id rejection.
func IsDuplicateID(err error) bool { return CodeOf(err) == ErrCodeDuplicateID }

// IsDependencyNotFound reports whether err is a missing dependency rejection.
func IsDependencyNotFound(err error) bool { return CodeOf(err) == ErrCodeDependencyNotFound }

// IsNotFound reports whether err is an unknown id.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsInvalidRecord reports whether err is a record validation failure.
func IsInvalidRecord(err error) bool { return CodeOf(err) == ErrCodeInvalidRecord }

// IsInvalidTransition reports whether err is a forbidden status change.
func IsInvalidTransition(err error) bool { return CodeOf(err) == ErrCodeInvalidTransition }

// IsStatusConflict reports whether a compare-and-swap update lost a race.
func IsStatusConflict(err error) bool { return CodeOf(err) == ErrCodeStatusConflict }

// IsStorageUnavailable reports whether err is an I/O or corruption failure.
func IsStorageUnavailable(err error) bool { return CodeOf(err) == ErrCodeStorageUnavailable }

// IsRejection reports whether err means the request itself is malformed.
// Rejections must not be retried.
func IsRejection(err error) bool {
	switch CodeOf(err) {
	case ErrCodeDuplicateID, ErrCodeDependencyNotFound, ErrCodeInvalidRecord:
		return true
	}
	return false
}

func unavailable(op, txID string, err error) *Error {
	return &Error{
		Code:    ErrCodeStorageUnavailable,
		Message: op,
		TxID:    txID,
		Err:     err,
	}
}

func notFound(txID string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: "transaction does not exist",
		TxID:    txID,
	}
}

// classifyInsert maps a driver error from an INSERT into the store taxonomy.
// Constraint errors the pre-checks missed still surface with the right code.
func classifyInsert(op, txID string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return unavailable(op, txID, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return &Error{Code: ErrCodeDuplicateID, Message: "id already exists", TxID: txID, Err: err}
		case sqlite3.ErrConstraintForeignKey:
			return &Error{Code: ErrCodeDependencyNotFound, Message: "required transaction does not exist", TxID: txID, Err: err}
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintNotNull:
			return &Error{Code: ErrCodeInvalidRecord, Message: "record violates schema", TxID: txID, Err: err}
		}
	}
	return unavailable(op, txID, err)
}
