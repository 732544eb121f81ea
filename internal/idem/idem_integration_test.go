package idem

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounting-core/internal/apperr"
	"accounting-core/internal/outbox"
)

func setupRunnerDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE idempotency_records, outbox_events, items, companies CASCADE;
		INSERT INTO companies (id, name, base_currency, time_zone) VALUES (1, 'Test Company', 'USD', 'UTC');
	`)
	require.NoError(t, err)
	return pool
}

// insertMarker is the command body under test: one side-effect row whose
// count tells us how many transactions actually committed.
func insertMarker(pool *pgxpool.Pool) func(tx pgx.Tx) (any, []outbox.Event, error) {
	return func(tx pgx.Tx) (any, []outbox.Event, error) {
		var id int
		err := tx.QueryRow(context.Background(), `
			INSERT INTO items (company_id, code, name, is_inventory_tracked)
			VALUES (1, 'MARKER', 'Marker', false)
			RETURNING id
		`).Scan(&id)
		if err != nil {
			return nil, nil, err
		}
		return map[string]any{"itemId": id}, nil, nil
	}
}

func TestConcurrentDuplicatesCommitOnce(t *testing.T) {
	pool := setupRunnerDB(t)
	defer pool.Close()
	ctx := context.Background()

	runner := NewRunner(pool)
	fingerprint := Fingerprint(map[string]string{"op": "marker"})

	// Two identical commands race on the same key. The loser's insert blocks
	// on the winner's in-flight unique insert, loses at commit, rolls back,
	// and replays the winner's stored response.
	const workers = 2
	outcomes := make([]*Outcome, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = runner.Run(ctx, 1, "race-key", fingerprint, insertMarker(pool))
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i], "worker %d", i)
		require.NotNil(t, outcomes[i], "worker %d", i)
	}

	var markers int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT count(*) FROM items WHERE code = 'MARKER'").Scan(&markers))
	assert.Equal(t, 1, markers, "exactly one transaction's writes survive")

	var records int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT count(*) FROM idempotency_records WHERE key = 'race-key'").Scan(&records))
	assert.Equal(t, 1, records)

	assert.JSONEq(t, string(outcomes[0].Response), string(outcomes[1].Response),
		"both callers observe the winner's response")
	assert.NotEqual(t, outcomes[0].Replayed, outcomes[1].Replayed,
		"one fresh commit, one replay")

	// A later sequential retry replays without running fn again.
	third, err := runner.Run(ctx, 1, "race-key", fingerprint, insertMarker(pool))
	require.NoError(t, err)
	assert.True(t, third.Replayed)
	assert.JSONEq(t, string(outcomes[0].Response), string(third.Response))
}

func TestKeyReuseWithDifferentPayloadRejected(t *testing.T) {
	pool := setupRunnerDB(t)
	defer pool.Close()
	ctx := context.Background()

	runner := NewRunner(pool)

	first, err := runner.Run(ctx, 1, "reuse-key",
		Fingerprint(map[string]string{"amount": "100.00"}), insertMarker(pool))
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	_, err = runner.Run(ctx, 1, "reuse-key",
		Fingerprint(map[string]string{"amount": "100.01"}), insertMarker(pool))
	require.Error(t, err)
	assert.Equal(t, apperr.IdempotencyKeyReuse, apperr.KindOf(err))

	var markers int
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT count(*) FROM items WHERE code = 'MARKER'").Scan(&markers))
	assert.Equal(t, 1, markers, "the mismatched retry must not run the command")
}
