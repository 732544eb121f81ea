// restore-seed provisions a demo company with a minimal chart of accounts,
// one location, and two items, then points the company's system account
// references at the inserted rows. Re-running it against the same database
// creates another demo company.
//
// Usage: go run ./cmd/restore-seed
package main

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"accounting-core/internal/config"
	"accounting-core/internal/db"
)

type seedAccount struct {
	code, name, accType, normal string
	banking                     bool
}

var chart = []seedAccount{
	{"1100", "Bank Account", "ASSET", "DEBIT", true},
	{"1200", "Accounts Receivable", "ASSET", "DEBIT", false},
	{"1400", "Inventory", "ASSET", "DEBIT", false},
	{"1450", "Purchase Tax Receivable", "ASSET", "DEBIT", false},
	{"1500", "Vendor Prepayments", "ASSET", "DEBIT", false},
	{"2000", "Accounts Payable", "LIABILITY", "CREDIT", false},
	{"2100", "Tax Payable", "LIABILITY", "CREDIT", false},
	{"2200", "Customer Advances", "LIABILITY", "CREDIT", false},
	{"3100", "Retained Earnings", "EQUITY", "CREDIT", false},
	{"4000", "Sales Revenue", "INCOME", "CREDIT", false},
	{"5000", "Cost of Goods Sold", "EXPENSE", "DEBIT", false},
}

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

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	log.Println("creating company...")
	var companyID int
	err = tx.QueryRow(ctx, `
		INSERT INTO companies (name, base_currency, time_zone)
		VALUES ('Demo Trading Co', 'USD', 'UTC')
		RETURNING id
	`).Scan(&companyID)
	if err != nil {
		log.Fatalf("failed to create company: %v", err)
	}

	log.Println("creating location...")
	var locationID int
	err = tx.QueryRow(ctx, `
		INSERT INTO locations (company_id, name) VALUES ($1, 'Main Warehouse')
		RETURNING id
	`, companyID).Scan(&locationID)
	if err != nil {
		log.Fatalf("failed to create location: %v", err)
	}

	log.Println("creating chart of accounts...")
	accountID := insertChart(ctx, tx, companyID)

	log.Println("linking system accounts...")
	_, err = tx.Exec(ctx, `
		UPDATE companies SET
			default_location_id    = $2,
			accounts_receivable_id = $3,
			accounts_payable_id    = $4,
			inventory_asset_id     = $5,
			sales_income_id        = $6,
			tax_payable_id         = $7,
			purchase_tax_id        = $8,
			cogs_id                = $9,
			retained_earnings_id   = $10,
			customer_advances_id   = $11,
			vendor_prepayment_id   = $12
		WHERE id = $1
	`, companyID, locationID,
		accountID["1200"], accountID["2000"], accountID["1400"], accountID["4000"],
		accountID["2100"], accountID["1450"], accountID["5000"], accountID["3100"],
		accountID["2200"], accountID["1500"])
	if err != nil {
		log.Fatalf("failed to link system accounts: %v", err)
	}

	log.Println("creating items...")
	_, err = tx.Exec(ctx, `
		INSERT INTO items (company_id, code, name, is_inventory_tracked) VALUES
			($1, 'WIDGET', 'Standard Widget', true),
			($1, 'FREIGHT', 'Inbound Freight', false)
	`, companyID)
	if err != nil {
		log.Fatalf("failed to create items: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("failed to commit: %v", err)
	}

	log.Printf("seed complete: company %d, location %d", companyID, locationID)
}

func insertChart(ctx context.Context, tx pgx.Tx, companyID int) map[string]int {
	ids := make(map[string]int, len(chart))
	for _, a := range chart {
		var id int
		err := tx.QueryRow(ctx, `
			INSERT INTO accounts (company_id, code, name, type, normal_balance, is_banking)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, companyID, a.code, a.name, a.accType, a.normal, a.banking).Scan(&id)
		if err != nil {
			log.Fatalf("failed to create account %s: %v", a.code, err)
		}
		ids[a.code] = id
	}
	return ids
}
