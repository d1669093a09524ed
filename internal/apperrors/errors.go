package apperrors

import "errors"

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrConflict indicates the resource is in a state that forbids the requested change.
var ErrConflict = errors.New("resource state conflict")

// ErrCurrencyMismatch indicates that amounts of different currencies were combined.
// This is a programming-error class failure and is never retryable.
var ErrCurrencyMismatch = errors.New("currency mismatch")

// ErrUnbalancedTransaction indicates that a proposed ledger transaction's debits
// do not equal its credits. Rejected before any write.
var ErrUnbalancedTransaction = errors.New("ledger transaction debits do not equal credits")

// ErrDuplicateClaim indicates an identical request is already in flight.
// Surfaced to callers as "processing, retry shortly", not as a failure.
var ErrDuplicateClaim = errors.New("identical request already in progress")

// ErrDuplicateRefund indicates a refund already references the original payment.
var ErrDuplicateRefund = errors.New("payment already refunded")

// ErrGatewayTimeout indicates the gateway call exceeded its deadline; the
// outcome is unknown and must be resolved by the webhook reconciler.
var ErrGatewayTimeout = errors.New("gateway call timed out")

// ErrGatewayDeclined indicates the gateway definitively rejected the charge.
var ErrGatewayDeclined = errors.New("gateway declined the charge")

// ErrLedgerWrite indicates a storage failure during the atomic ledger commit.
// The orchestrator retries the whole step with the same external reference.
var ErrLedgerWrite = errors.New("ledger write failed")
