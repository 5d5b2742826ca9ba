package domain

import (
	"errors"
	"fmt"
)

var (
	ErrItemNotFound  = errors.New("magazine item not found")
	ErrOrderNotFound = errors.New("purchase order not found")
	ErrUserNotFound  = errors.New("user not found")

	// ErrInvalidSignature means a payment claim failed HMAC verification.
	// Security-relevant: the claim did not originate from the gateway.
	ErrInvalidSignature = errors.New("invalid payment signature")

	// ErrGatewayUnavailable means the provider could not be reached or timed
	// out. The outcome of the remote call is unknown; orders stay pending.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrStateConflict means an operation was attempted against a purchase
	// in an incompatible state (refund of a non-completed order, etc).
	ErrStateConflict = errors.New("purchase is not in a valid state for this operation")
)

// ValidationError is a caller mistake: bad amount, bad email, malformed input.
// Never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ReconciliationError means a remote action succeeded but the matching local
// write failed. Money or access is already out of sync with the ledger, so
// blind retry is forbidden; an operator must apply a compensating action.
type ReconciliationError struct {
	Op  string
	Ref string
	Err error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation required after %s (ref %s): %v", e.Op, e.Ref, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
