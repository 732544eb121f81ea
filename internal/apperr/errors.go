// Package apperr defines the stable error kinds surfaced at the command
// boundary. Domain code returns *Error values; transports map Kind to their
// own status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

type Kind string

const (
	InvalidInput           Kind = "invalid-input"
	TenantScopeViolation   Kind = "tenant-scope-violation"
	NotFound               Kind = "not-found"
	InvalidStateTransition Kind = "invalid-state-transition"
	PeriodClosed           Kind = "period-closed"
	UnbalancedEntry        Kind = "unbalanced-entry"
	RoundingMismatch       Kind = "rounding-mismatch"
	CurrencyMismatch       Kind = "currency-mismatch"
	InsufficientStock      Kind = "insufficient-stock"
	Overpayment            Kind = "overpayment"
	IdempotencyKeyMissing  Kind = "idempotency-key-missing"
	IdempotencyKeyReuse    Kind = "idempotency-key-reuse"
	LockContention         Kind = "lock-contention"
	Internal               Kind = "internal"
)

// Error is the boundary error shape: {kind, message, details?}.
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// E builds an *Error with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches structured context to the error and returns it.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// KindOf extracts the Kind from err, or Internal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// SQLSTATE codes Postgres raises when a transaction loses a concurrency
// race: serialization_failure and deadlock_detected.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Transient reports whether the error is safe to retry with the same
// idempotency key: lock contention and database serialization conflicts.
// Validation and state-machine errors are not.
func Transient(err error) bool {
	if Is(err, LockContention) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput, UnbalancedEntry, RoundingMismatch, CurrencyMismatch,
		InsufficientStock, Overpayment, IdempotencyKeyMissing:
		return http.StatusBadRequest
	case TenantScopeViolation:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case InvalidStateTransition, PeriodClosed, IdempotencyKeyReuse, LockContention:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
