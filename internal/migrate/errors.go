package migrate

import (
	"errors"
	"fmt"

	"photomigrate/internal/cdn"
)

// ErrKind classifies record and job failures.
type ErrKind int

const (
	// KindTransientIO covers network or store failures during a
	// download, upload or database write. Not retried within a run.
	KindTransientIO ErrKind = iota

	// KindShapeViolation covers data that does not match any expected
	// legacy shape. Non-retryable.
	KindShapeViolation

	// KindLockConflict means another job holds the date lock. Fatal for
	// the whole job, no records processed.
	KindLockConflict

	// KindRateLimited means the CDN metadata endpoint rejected the
	// fallback lookup. The record is requeued, the date continues.
	KindRateLimited
)

func (k ErrKind) String() string {
	switch k {
	case KindShapeViolation:
		return "shape violation"
	case KindLockConflict:
		return "lock conflict"
	case KindRateLimited:
		return "rate limited"
	default:
		return "transient io"
	}
}

// Error carries a failure kind alongside the cause.
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ShapeViolation builds a shape-violation error.
func ShapeViolation(format string, args ...any) *Error {
	return &Error{Kind: KindShapeViolation, Err: fmt.Errorf(format, args...)}
}

// LockConflict builds a lock-conflict error naming the current holder.
func LockConflict(date, holder string) *Error {
	return &Error{Kind: KindLockConflict, Err: fmt.Errorf("date %s already locked by job %s", date, holder)}
}

// KindOf resolves the failure kind of an arbitrary error.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, cdn.ErrRateLimited) {
		return KindRateLimited
	}
	return KindTransientIO
}
