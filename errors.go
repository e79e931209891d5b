package ledgerbridge

import (
	"errors"
	"fmt"
)

// Error codes attached to GateError and SubmissionError values.
const (
	ErrCodeWalletUnsynced      = "wallet_unsynced"
	ErrCodeInsufficientFunds   = "insufficient_funds"
	ErrCodeDryRunRejected      = "dry_run_rejected"
	ErrCodeSubmissionRejected  = "submission_rejected"
	ErrCodeTransactionInFlight = "transaction_in_flight"
)

// Sentinel errors surfaced by the queue and gate.
var (
	// ErrDuplicateCorrelationKey is returned by Enqueue when the key has
	// already been accepted.
	ErrDuplicateCorrelationKey = errors.New("correlation key already enqueued")

	// ErrSyncWaitTimeout is returned by WaitUntilSynced when a sync ceiling
	// is configured and the wallet did not catch up in time.
	ErrSyncWaitTimeout = errors.New("wallet sync wait exceeded ceiling")

	// ErrConfirmationTimeout marks a submitted transaction that was not
	// observed on chain within the confirmation window. It is logged, never
	// returned to the queue: resubmitting would double-spend.
	ErrConfirmationTimeout = errors.New("transaction not observed within confirmation window")
)

// GateError reports a transient wallet condition (desync, missing fee
// asset). It is never surfaced to the caller; the queue re-runs the
// operation after backoff.
type GateError struct {
	Code    string
	Message string
	Err     error
}

func (e *GateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GateError) Unwrap() error { return e.Err }

// NewGateError creates a transient gate error.
func NewGateError(code, message string, err error) *GateError {
	return &GateError{Code: code, Message: message, Err: err}
}

// SubmissionError reports a ledger rejection of a dry run or a real submit.
// Like GateError it is retried by the queue.
type SubmissionError struct {
	Code    string
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// NewSubmissionError creates a submission error.
func NewSubmissionError(code, message string, err error) *SubmissionError {
	return &SubmissionError{Code: code, Message: message, Err: err}
}

// ProtocolError reports a malformed operation: an unknown name or arguments
// the calling convention cannot encode. Retrying cannot help, so the queue
// dead-letters these instead of rotating them forever.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "malformed operation: " + e.Message
}

// Retryable reports whether the queue should re-append the operation after
// backoff. Gate and submission failures are retryable; protocol errors are
// not.
func Retryable(err error) bool {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return false
	}
	var ge *GateError
	var se *SubmissionError
	return errors.As(err, &ge) || errors.As(err, &se)
}
