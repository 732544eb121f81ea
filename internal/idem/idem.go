// Package idem gives every mutating command at-most-once effect. The
// committed response is recorded in the same transaction as the domain
// writes and replayed verbatim on retry; reusing a key with a different
// request is rejected.
package idem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"accounting-core/internal/apperr"
	"accounting-core/internal/outbox"
)

// Fingerprint canonicalizes a request payload and hashes it. Two retries of
// the same command under the same key must produce the same fingerprint.
func Fingerprint(payload any) string {
	body, err := json.Marshal(payload)
	if err != nil {
		body = []byte(fmt.Sprintf("%#v", payload))
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Outcome is the result of running a command under an idempotency key.
type Outcome struct {
	// Replayed is true when the stored response of an earlier commit was
	// returned and fn did not run.
	Replayed bool
	Response json.RawMessage
	// Events produced by fn, already persisted to the outbox. Empty on
	// replay: the original request's fast path or the poller owns them.
	Events []outbox.Event
}

type Runner struct {
	pool *pgxpool.Pool
}

func NewRunner(pool *pgxpool.Pool) *Runner {
	return &Runner{pool: pool}
}

// Run executes fn exactly once per (companyID, key). fn receives the open
// transaction; its response, its outbox events, and the idempotency record
// commit atomically. First committer wins: a concurrent duplicate rolls its
// own writes back and observes the winner's response.
func (r *Runner) Run(ctx context.Context, companyID int, key, fingerprint string,
	fn func(tx pgx.Tx) (any, []outbox.Event, error)) (*Outcome, error) {

	if key == "" {
		return nil, apperr.E(apperr.IdempotencyKeyMissing, "idempotency key is required for this operation")
	}

	if out, err := r.lookup(ctx, companyID, key, fingerprint); err != nil || out != nil {
		return out, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	response, events, err := fn(tx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command response: %w", err)
	}

	if err := outbox.InsertAllTx(ctx, tx, events); err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO idempotency_records (company_id, key, request_fingerprint, response, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (company_id, key) DO NOTHING
	`, companyID, key, fingerprint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to record idempotent response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// A concurrent request with the same key committed first. Drop our
		// writes and surface the stored response.
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return nil, fmt.Errorf("failed to roll back losing duplicate: %w", rbErr)
		}
		out, err := r.lookup(ctx, companyID, key, fingerprint)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, apperr.E(apperr.LockContention, "idempotency record for key %q vanished, retry", key)
		}
		return out, nil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &Outcome{Response: body, Events: events}, nil
}

// lookup returns the stored outcome for (companyID, key), nil when absent.
func (r *Runner) lookup(ctx context.Context, companyID int, key, fingerprint string) (*Outcome, error) {
	var storedFingerprint string
	var response json.RawMessage
	err := r.pool.QueryRow(ctx, `
		SELECT request_fingerprint, response
		FROM idempotency_records
		WHERE company_id = $1 AND key = $2
	`, companyID, key).Scan(&storedFingerprint, &response)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency record: %w", err)
	}
	if storedFingerprint != fingerprint {
		return nil, apperr.E(apperr.IdempotencyKeyReuse,
			"idempotency key %q was already used for a different request", key)
	}
	return &Outcome{Replayed: true, Response: response}, nil
}
