package core_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"accounting-core/internal/apperr"
	"accounting-core/internal/core"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE settlements, purchase_bill_landed_cost_allocations, stock_moves,
			inventory_balances, document_lines, documents, document_sequences,
			journal_lines, journal_entries, period_closes, idempotency_records,
			outbox_events, items, accounts, locations, companies CASCADE;

		INSERT INTO companies (id, name, base_currency, time_zone) VALUES (1, 'Test Company', 'USD', 'UTC');
		INSERT INTO locations (id, company_id, name) VALUES (1, 1, 'Main Warehouse');

		INSERT INTO accounts (id, company_id, code, name, type, normal_balance, is_banking, is_credit_card) VALUES
		(1, 1, '1200', 'Accounts Receivable', 'ASSET', 'DEBIT', false, false),
		(2, 1, '2100', 'Accounts Payable', 'LIABILITY', 'CREDIT', false, false),
		(3, 1, '1400', 'Inventory', 'ASSET', 'DEBIT', false, false),
		(4, 1, '4000', 'Sales Income', 'INCOME', 'CREDIT', false, false),
		(5, 1, '2200', 'Tax Payable', 'LIABILITY', 'CREDIT', false, false),
		(6, 1, '1300', 'Purchase Tax Receivable', 'ASSET', 'DEBIT', false, false),
		(7, 1, '5000', 'Cost of Goods Sold', 'EXPENSE', 'DEBIT', false, false),
		(8, 1, '3900', 'Retained Earnings', 'EQUITY', 'CREDIT', false, false),
		(9, 1, '2300', 'Customer Advances', 'LIABILITY', 'CREDIT', false, false),
		(10, 1, '1350', 'Vendor Prepayments', 'ASSET', 'DEBIT', false, false),
		(11, 1, '1000', 'Main Bank', 'ASSET', 'DEBIT', true, false),
		(12, 1, '2400', 'Company Card', 'LIABILITY', 'CREDIT', true, true);
		SELECT setval(pg_get_serial_sequence('accounts', 'id'), 100);

		UPDATE companies SET
			default_location_id = 1, accounts_receivable_id = 1, accounts_payable_id = 2,
			inventory_asset_id = 3, sales_income_id = 4, tax_payable_id = 5, purchase_tax_id = 6,
			cogs_id = 7, retained_earnings_id = 8, customer_advances_id = 9, vendor_prepayment_id = 10
		WHERE id = 1;

		INSERT INTO items (id, company_id, code, name, is_inventory_tracked) VALUES
		(1, 1, 'WIDGET', 'Widget', true),
		(2, 1, 'FREIGHT', 'Freight Service', false);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

func inTx(t *testing.T, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) {
	t.Helper()
	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		t.Fatalf("Transaction body failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
}

func seedStock(t *testing.T, pool *pgxpool.Pool, inv *core.InventoryService, qty, unitCost string) {
	t.Helper()
	inTx(t, pool, func(tx pgx.Tx) error {
		_, err := inv.ApplyStockMoveTx(context.Background(), tx, &core.StockMove{
			CompanyID: 1, LocationID: 1, ItemID: 1,
			Date:            time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			Type:            core.MoveAdjustment,
			Direction:       core.DirectionIn,
			Quantity:        decimal.RequireFromString(qty),
			UnitCostApplied: decimal.RequireFromString(unitCost),
		}, core.MoveOptions{})
		return err
	})
}

func TestInvoiceLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	ledger := core.NewLedger(pool)
	inv := core.NewInventoryService(pool)
	invoices := core.NewInvoiceService(pool, ledger, inv)
	settlements := core.NewSettlementService(pool, ledger)

	seedStock(t, pool, inv, "10", "5")

	itemID, taxed := 1, decimal.RequireFromString("0.10")
	var invoiceID int
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := invoices.CreateTx(ctx, tx, core.InvoiceInput{
			CompanyID: 1,
			Date:      time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			Lines: []core.LineInputSpec{
				{ItemID: &itemID, Quantity: decimal.RequireFromString("4"), UnitPrice: decimal.RequireFromString("50"), TaxRate: taxed},
			},
		})
		if err != nil {
			return err
		}
		invoiceID = res.Document.ID
		return nil
	})

	var posted *core.DocumentResult
	inTx(t, pool, func(tx pgx.Tx) error {
		var err error
		posted, err = invoices.PostTx(ctx, tx, 1, invoiceID, time.Time{}, "corr-1", nil)
		return err
	})

	if posted.Document.Status != core.StatusPosted {
		t.Errorf("Expected POSTED, got %s", posted.Document.Status)
	}
	if posted.Document.Number == nil || *posted.Document.Number != "INV-0000001" {
		t.Errorf("Unexpected invoice number: %v", posted.Document.Number)
	}
	if !posted.Document.Total.Equal(decimal.RequireFromString("220")) {
		t.Errorf("Expected total 220, got %s", posted.Document.Total)
	}

	// 4 units at WAC 5 is 20 of COGS; entry must balance.
	totalDebit, totalCredit := decimal.Zero, decimal.Zero
	cogs := decimal.Zero
	for _, l := range posted.Entry.Lines {
		totalDebit = totalDebit.Add(l.Debit)
		totalCredit = totalCredit.Add(l.Credit)
		if l.AccountID == 7 {
			cogs = cogs.Add(l.Debit)
		}
	}
	if !totalDebit.Equal(totalCredit) {
		t.Errorf("Entry unbalanced: %s vs %s", totalDebit, totalCredit)
	}
	if !cogs.Equal(decimal.RequireFromString("20")) {
		t.Errorf("Expected COGS 20, got %s", cogs)
	}

	// Partial payment moves to PARTIAL.
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := settlements.RecordPaymentTx(ctx, tx, core.PaymentInput{
			CompanyID: 1, DocumentID: invoiceID,
			Date:   time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
			Amount: decimal.RequireFromString("100"), BankAccountID: 11,
		})
		if err != nil {
			return err
		}
		if res.Document.Status != core.StatusPartial {
			t.Errorf("Expected PARTIAL, got %s", res.Document.Status)
		}
		return nil
	})

	// Overpayment of the remainder is rejected.
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = settlements.RecordPaymentTx(ctx, tx, core.PaymentInput{
		CompanyID: 1, DocumentID: invoiceID,
		Date:   time.Date(2025, 2, 11, 0, 0, 0, 0, time.UTC),
		Amount: decimal.RequireFromString("120.01"), BankAccountID: 11,
	})
	tx.Rollback(ctx)
	if apperr.KindOf(err) != apperr.Overpayment {
		t.Errorf("Expected overpayment error, got %v", err)
	}

	// Paying the exact remainder closes the invoice.
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := settlements.RecordPaymentTx(ctx, tx, core.PaymentInput{
			CompanyID: 1, DocumentID: invoiceID,
			Date:   time.Date(2025, 2, 12, 0, 0, 0, 0, time.UTC),
			Amount: decimal.RequireFromString("120"), BankAccountID: 11,
		})
		if err != nil {
			return err
		}
		if res.Document.Status != core.StatusPaid {
			t.Errorf("Expected PAID, got %s", res.Document.Status)
		}
		return nil
	})

	// A settled invoice cannot be voided.
	tx, err = pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = invoices.VoidTx(ctx, tx, 1, invoiceID, time.Date(2025, 2, 13, 0, 0, 0, 0, time.UTC), "test", "corr-2", nil)
	tx.Rollback(ctx)
	if apperr.KindOf(err) != apperr.InvalidStateTransition {
		t.Errorf("Expected invalid state transition, got %v", err)
	}
}

func TestReceiptBillFlow(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	ledger := core.NewLedger(pool)
	inv := core.NewInventoryService(pool)
	receipts := core.NewPurchaseReceiptService(pool, ledger, inv)
	bills := core.NewPurchaseBillService(pool, ledger, inv)

	itemID, freightAccount := 1, 7

	var receiptID int
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := receipts.CreateTx(ctx, tx, core.PurchaseReceiptInput{
			CompanyID: 1,
			Date:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			Lines: []core.LineInputSpec{
				{ItemID: &itemID, Quantity: decimal.RequireFromString("10"), UnitPrice: decimal.RequireFromString("5")},
			},
		})
		if err != nil {
			return err
		}
		receiptID = res.Document.ID
		return nil
	})
	inTx(t, pool, func(tx pgx.Tx) error {
		_, err := receipts.PostTx(ctx, tx, 1, receiptID, time.Time{}, "corr-r", nil)
		return err
	})

	// GRNI was provisioned and credited for the receipt total.
	var grni int
	if err := pool.QueryRow(ctx, "SELECT grni_account_id FROM companies WHERE id = 1").Scan(&grni); err != nil || grni == 0 {
		t.Fatalf("GRNI account not provisioned: %v", err)
	}

	// Bill the receipt at 5.50 with 10.00 freight: PPV 5, landed cost 10.
	var billID int
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := bills.CreateTx(ctx, tx, core.PurchaseBillInput{
			CompanyID: 1,
			Date:      time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
			Lines: []core.LineInputSpec{
				{ItemID: &itemID, Quantity: decimal.RequireFromString("10"), UnitPrice: decimal.RequireFromString("5.50")},
				{AccountID: &freightAccount, Description: "Freight", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("10")},
			},
			LinkedReceiptID: &receiptID,
		})
		if err != nil {
			return err
		}
		billID = res.Document.ID
		return nil
	})
	inTx(t, pool, func(tx pgx.Tx) error {
		_, err := bills.PostTx(ctx, tx, 1, billID, time.Time{}, "corr-b", nil)
		return err
	})

	var qty, value, wac decimal.Decimal
	err := pool.QueryRow(ctx, `
		SELECT quantity_on_hand, total_value, wac FROM inventory_balances
		WHERE company_id = 1 AND location_id = 1 AND item_id = 1
	`).Scan(&qty, &value, &wac)
	if err != nil {
		t.Fatalf("Failed to read inventory balance: %v", err)
	}
	if !qty.Equal(decimal.RequireFromString("10")) {
		t.Errorf("Expected quantity 10, got %s", qty)
	}
	if !value.Equal(decimal.RequireFromString("60")) {
		t.Errorf("Expected value 60 (50 receipt + 10 landed), got %s", value)
	}
	if !wac.Equal(decimal.RequireFromString("6")) {
		t.Errorf("Expected WAC 6, got %s", wac)
	}

	// GRNI nets to zero once the bill clears the accrual.
	nets, err := core.GetAccountNets(ctx, pool, 1)
	if err != nil {
		t.Fatalf("Failed to load account nets: %v", err)
	}
	for _, n := range nets {
		if n.AccountID == grni && !n.Net.IsZero() {
			t.Errorf("Expected GRNI to net to zero, got %s", n.Net)
		}
	}

	// Billing the same receipt twice is rejected.
	var secondBill int
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := bills.CreateTx(ctx, tx, core.PurchaseBillInput{
			CompanyID: 1,
			Date:      time.Date(2025, 3, 6, 0, 0, 0, 0, time.UTC),
			Lines: []core.LineInputSpec{
				{ItemID: &itemID, Quantity: decimal.RequireFromString("10"), UnitPrice: decimal.RequireFromString("5")},
			},
			LinkedReceiptID: &receiptID,
		})
		if err != nil {
			return err
		}
		secondBill = res.Document.ID
		return nil
	})
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = bills.PostTx(ctx, tx, 1, secondBill, time.Time{}, "corr-b2", nil)
	tx.Rollback(ctx)
	if apperr.KindOf(err) != apperr.InvalidStateTransition {
		t.Errorf("Expected rejection of double billing, got %v", err)
	}
}

func TestPeriodCloseBlocksPosting(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	ledger := core.NewLedger(pool)
	periods := core.NewPeriodService(ledger)

	// Post revenue inside January, then close it.
	inTx(t, pool, func(tx pgx.Tx) error {
		_, err := ledger.PostJournalEntryTx(ctx, tx, core.PostEntryInput{
			CompanyID: 1,
			Date:      time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			Lines: []core.LineInput{
				{AccountID: 11, Debit: decimal.RequireFromString("500")},
				{AccountID: 4, Credit: decimal.RequireFromString("500")},
			},
		})
		return err
	})
	inTx(t, pool, func(tx pgx.Tx) error {
		_, _, err := periods.CloseTx(ctx, tx, 1,
			time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC), nil)
		return err
	})

	// Income moved to retained earnings.
	nets, err := core.GetAccountNets(ctx, pool, 1)
	if err != nil {
		t.Fatalf("Failed to load nets: %v", err)
	}
	for _, n := range nets {
		switch n.AccountID {
		case 4:
			if !n.Net.IsZero() {
				t.Errorf("Expected income zeroed, got %s", n.Net)
			}
		case 8:
			if !n.Net.Equal(decimal.RequireFromString("-500")) {
				t.Errorf("Expected retained earnings -500, got %s", n.Net)
			}
		}
	}

	// Posting into the closed window is rejected.
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = ledger.PostJournalEntryTx(ctx, tx, core.PostEntryInput{
		CompanyID: 1,
		Date:      time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC),
		Lines: []core.LineInput{
			{AccountID: 11, Debit: decimal.RequireFromString("10")},
			{AccountID: 4, Credit: decimal.RequireFromString("10")},
		},
	})
	tx.Rollback(ctx)
	if apperr.KindOf(err) != apperr.PeriodClosed {
		t.Errorf("Expected period-closed error, got %v", err)
	}

	// Re-closing an overlapping window is rejected.
	tx, err = pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, _, err = periods.CloseTx(ctx, tx, 1,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), nil)
	tx.Rollback(ctx)
	if apperr.KindOf(err) != apperr.InvalidStateTransition {
		t.Errorf("Expected overlap rejection, got %v", err)
	}
}
