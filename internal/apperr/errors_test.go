package apperr

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwraps(t *testing.T) {
	err := fmt.Errorf("posting failed: %w", E(Overpayment, "amount exceeds remaining"))
	assert.Equal(t, Overpayment, KindOf(err))
	assert.Equal(t, Internal, KindOf(fmt.Errorf("plain failure")))
}

func TestTransientClassification(t *testing.T) {
	assert.True(t, Transient(E(LockContention, "document busy")))
	assert.False(t, Transient(E(InvalidInput, "missing date")))
	assert.False(t, Transient(nil))

	serialization := fmt.Errorf("failed to commit transaction: %w",
		&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	assert.True(t, Transient(serialization))

	deadlock := fmt.Errorf("failed to lock document: %w",
		&pgconn.PgError{Code: "40P01", Message: "deadlock detected"})
	assert.True(t, Transient(deadlock))

	uniqueViolation := fmt.Errorf("failed to insert: %w",
		&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	assert.False(t, Transient(uniqueViolation))
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, 400, HTTPStatus(InvalidInput))
	assert.Equal(t, 403, HTTPStatus(TenantScopeViolation))
	assert.Equal(t, 404, HTTPStatus(NotFound))
	assert.Equal(t, 409, HTTPStatus(PeriodClosed))
	assert.Equal(t, 409, HTTPStatus(LockContention))
	assert.Equal(t, 500, HTTPStatus(Internal))
}
