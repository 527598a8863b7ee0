package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrTxnTransient marks storage failures worth rerunning from scratch:
	// deadlocks and lock-wait timeouts. The mysql layer wraps driver errors
	// with this sentinel so the retry wrapper stays driver-agnostic.
	ErrTxnTransient = errors.New("transient concurrency failure")
)

// IsTransient reports whether err should be retried with a fresh transaction.
func IsTransient(err error) bool { return errors.Is(err, ErrTxnTransient) }

// ValidationError rejects malformed input before any lock is acquired.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError means an active booking already covers part of the requested
// range. Never retried: the caller must pick different dates or a different room.
type ConflictError struct {
	RoomID   int64
	CheckIn  time.Time
	CheckOut time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("room %d already booked within [%s, %s)",
		e.RoomID, e.CheckIn.Format(DateLayout), e.CheckOut.Format(DateLayout))
}

// StaleVersionError means a concurrent writer won the optimistic race on a
// room edit. Never retried automatically: the client must refetch and resubmit.
type StaleVersionError struct {
	RoomID   int64
	Expected int64
}

func (e *StaleVersionError) Error() string {
	return fmt.Sprintf("room %d: lock_version %d is stale", e.RoomID, e.Expected)
}

// ConcurrencyExhaustedError surfaces after the retry budget is spent on
// back-to-back deadlocks. Indicates abnormal contention, not a business outcome.
type ConcurrencyExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ConcurrencyExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ConcurrencyExhaustedError) Unwrap() error { return e.Last }
