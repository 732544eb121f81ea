// verify-db runs read-only consistency checks against a live database:
// journal entry balance, document totals versus lines, settled amounts
// versus settlement rows, and cached inventory balances versus the stock
// move timeline. Exit status is non-zero when any check fails.
//
// Usage: go run ./cmd/verify-db
package main

import (
	"context"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"accounting-core/internal/config"
	"accounting-core/internal/db"
)

var failures int

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer pool.Close()

	checkBalancedEntries(ctx, pool)
	checkDocumentTotals(ctx, pool)
	checkSettledAmounts(ctx, pool)
	checkInventoryBalances(ctx, pool)
	reportUnpublishedEvents(ctx, pool)

	if failures > 0 {
		log.Printf("[FAIL] %d check(s) failed", failures)
		os.Exit(1)
	}
	log.Println("[OK] all checks passed")
}

func fail(format string, args ...any) {
	failures++
	log.Printf("[FAIL] "+format, args...)
}

// checkBalancedEntries verifies that every journal entry's debits equal its
// credits.
func checkBalancedEntries(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `
		SELECT journal_entry_id, SUM(debit) - SUM(credit) AS diff
		FROM journal_lines
		GROUP BY journal_entry_id
		HAVING SUM(debit) <> SUM(credit)
	`)
	if err != nil {
		log.Fatalf("[ERROR] balanced entries query: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var entryID int
		var diff string
		if err := rows.Scan(&entryID, &diff); err != nil {
			log.Fatalf("[ERROR] scan: %v", err)
		}
		fail("journal entry %d is unbalanced by %s", entryID, diff)
		count++
	}
	if count == 0 {
		log.Println("[OK] all journal entries balance")
	}
}

// checkDocumentTotals verifies that each document header total equals the
// sum of its line totals plus line taxes.
func checkDocumentTotals(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `
		SELECT d.id, d.total, COALESCE(SUM(dl.line_total + dl.tax_amount), 0) AS line_sum
		FROM documents d
		LEFT JOIN document_lines dl ON dl.document_id = d.id
		GROUP BY d.id, d.total
		HAVING d.total <> COALESCE(SUM(dl.line_total + dl.tax_amount), 0)
	`)
	if err != nil {
		log.Fatalf("[ERROR] document totals query: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id int
		var total, lineSum string
		if err := rows.Scan(&id, &total, &lineSum); err != nil {
			log.Fatalf("[ERROR] scan: %v", err)
		}
		fail("document %d header total %s, lines sum to %s", id, total, lineSum)
		count++
	}
	if count == 0 {
		log.Println("[OK] document totals match their lines")
	}
}

// checkSettledAmounts verifies that amount_settled on each document equals
// the sum of its settlement rows.
func checkSettledAmounts(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `
		SELECT d.id, d.amount_settled, COALESCE(SUM(s.amount), 0) AS settled_sum
		FROM documents d
		LEFT JOIN settlements s ON s.document_id = d.id
		GROUP BY d.id, d.amount_settled
		HAVING d.amount_settled <> COALESCE(SUM(s.amount), 0)
	`)
	if err != nil {
		log.Fatalf("[ERROR] settled amounts query: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id int
		var settled, settledSum string
		if err := rows.Scan(&id, &settled, &settledSum); err != nil {
			log.Fatalf("[ERROR] scan: %v", err)
		}
		fail("document %d amount_settled %s, settlements sum to %s", id, settled, settledSum)
		count++
	}
	if count == 0 {
		log.Println("[OK] settled amounts match settlement rows")
	}
}

// checkInventoryBalances verifies the cached per-item balance against the
// signed sum of its stock moves.
func checkInventoryBalances(ctx context.Context, pool *pgxpool.Pool) {
	rows, err := pool.Query(ctx, `
		SELECT b.company_id, b.location_id, b.item_id, b.quantity_on_hand, b.total_value,
		       COALESCE(m.qty, 0), COALESCE(m.value, 0)
		FROM inventory_balances b
		LEFT JOIN (
			SELECT company_id, location_id, item_id,
			       SUM(CASE WHEN direction = 'IN' THEN quantity ELSE -quantity END) AS qty,
			       SUM(CASE WHEN direction = 'IN' THEN total_cost_applied ELSE -total_cost_applied END) AS value
			FROM stock_moves
			GROUP BY company_id, location_id, item_id
		) m ON m.company_id = b.company_id AND m.location_id = b.location_id AND m.item_id = b.item_id
		WHERE b.quantity_on_hand <> COALESCE(m.qty, 0) OR b.total_value <> COALESCE(m.value, 0)
	`)
	if err != nil {
		log.Fatalf("[ERROR] inventory balances query: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var companyID, locationID, itemID int
		var qty, value, moveQty, moveValue string
		if err := rows.Scan(&companyID, &locationID, &itemID, &qty, &value, &moveQty, &moveValue); err != nil {
			log.Fatalf("[ERROR] scan: %v", err)
		}
		fail("item %d at location %d (company %d): cached qty %s value %s, moves sum to qty %s value %s",
			itemID, locationID, companyID, qty, value, moveQty, moveValue)
		count++
	}
	if count == 0 {
		log.Println("[OK] inventory balances match stock moves")
	}
}

// reportUnpublishedEvents is informational: a growing backlog means the
// fast-path publisher is failing and no poller is draining the outbox.
func reportUnpublishedEvents(ctx context.Context, pool *pgxpool.Pool) {
	var count int
	if err := pool.QueryRow(ctx,
		"SELECT count(*) FROM outbox_events WHERE published_at IS NULL").Scan(&count); err != nil {
		log.Fatalf("[ERROR] outbox query: %v", err)
	}
	log.Printf("[INFO] %d unpublished outbox event(s)", count)
}
