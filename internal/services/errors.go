package services

import (
	"errors"
	"fmt"
)

// Sentinel errors for ledger operations. Use with errors.Is().
var (
	// ErrInvalidAmount is returned for non-positive amounts or fees that
	// exceed the gross amount. Never retried, user-correctable.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds is returned when a withdrawal exceeds the
	// available balance. Business rule, not retried.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrExecutionFailed is returned when an external rail declines or
	// errors. The caller may retry the whole operation; the same
	// idempotency reference keeps the rail from double-spending.
	ErrExecutionFailed = errors.New("transfer execution failed")

	// ErrDuplicateID is returned when a transaction record id already
	// exists in the log. Indicates a bug, not a user error.
	ErrDuplicateID = errors.New("duplicate transaction id")

	// ErrStoreUnavailable is returned for infrastructure faults. The
	// operation aborts with no partial state; the caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ExecutionError carries the rail's failure detail. Pending reports whether
// the outcome is unknown (timeout): the reservation stays held and the
// reconciler settles the record later.
type ExecutionError struct {
	Executor string
	Reason   string
	Pending  bool
}

func (e *ExecutionError) Error() string {
	if e.Pending {
		return fmt.Sprintf("execution outcome unknown on %s: %s", e.Executor, e.Reason)
	}
	return fmt.Sprintf("execution failed on %s: %s", e.Executor, e.Reason)
}

func (e *ExecutionError) Unwrap() error {
	return ErrExecutionFailed
}

// InsufficientFundsError reports how short the account is.
type InsufficientFundsError struct {
	AccountID string
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}
