package store

import (
	"errors"
	"fmt"
)

// Kind classifies a store-level error. Validation errors (pkg/valerr)
// are surfaced verbatim alongside these, not folded into this taxonomy.
type Kind string

const (
	KindLogNotFound        Kind = "log-not-found"
	KindRecordNotFound     Kind = "record-not-found"
	KindRecordNotPending   Kind = "record-not-pending"
	KindCheckpointNotFound Kind = "checkpoint-not-found"
	KindRejected           Kind = "rejected"
	KindDuplicateRecord    Kind = "duplicate-record"
)

// Error is a typed data store failure: every method is fallible with a
// typed error, and errors never silently convert to success.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %s", e.Kind, e.Detail)
}

func newError(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func ErrLogNotFound(logID string) *Error {
	return newError(KindLogNotFound, "no such log: "+logID)
}

func ErrRecordNotFound(recordID string) *Error {
	return newError(KindRecordNotFound, "no such record: "+recordID)
}

func ErrRecordNotPending(recordID string) *Error {
	return newError(KindRecordNotPending, "record is not pending: "+recordID)
}

func ErrCheckpointNotFound(checkpointID string) *Error {
	return newError(KindCheckpointNotFound, "no such checkpoint: "+checkpointID)
}

func ErrRejected(reason string) *Error {
	return newError(KindRejected, reason)
}

func ErrDuplicateRecord(recordID string) *Error {
	return newError(KindDuplicateRecord, "record already stored: "+recordID)
}

// Is supports errors.Is between *Error values: two errors match when
// their Kinds are equal, matching the registry package's error-wrapping
// style.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}
