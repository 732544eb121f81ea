package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"accounting-core/internal/apperr"
	"accounting-core/internal/core"
)

func TestCustomerAdvanceFlow(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	ledger := core.NewLedger(pool)
	inv := core.NewInventoryService(pool)
	invoices := core.NewInvoiceService(pool, ledger, inv)
	advances := core.NewAdvanceService(pool, ledger)
	settlements := core.NewSettlementService(pool, ledger)

	seedStock(t, pool, inv, "10", "5")
	customerID := 301

	// Money in: Dr bank, Cr customer advances liability.
	var advanceID int
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := advances.CreateTx(ctx, tx, core.AdvanceInput{
			CompanyID: 1, Kind: core.KindCustomerAdvance,
			Date:      time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			ContactID: &customerID,
			Amount:    decimal.RequireFromString("150"), BankAccountID: 11,
		})
		if err != nil {
			return err
		}
		advanceID = res.Document.ID
		return nil
	})
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := advances.PostTx(ctx, tx, 1, advanceID, core.KindCustomerAdvance, time.Time{}, "corr-a", nil)
		if err != nil {
			return err
		}
		for _, l := range res.Entry.Lines {
			if l.AccountID == 11 && !l.Debit.Equal(decimal.RequireFromString("150")) {
				t.Errorf("Expected bank debit 150, got %s", l.Debit)
			}
			if l.AccountID == 9 && !l.Credit.Equal(decimal.RequireFromString("150")) {
				t.Errorf("Expected advance liability credit 150, got %s", l.Credit)
			}
		}
		return nil
	})

	itemID := 1
	var invoiceID int
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := invoices.CreateTx(ctx, tx, core.InvoiceInput{
			CompanyID: 1,
			Date:      time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC),
			CustomerID: &customerID,
			Lines: []core.LineInputSpec{
				{ItemID: &itemID, Quantity: decimal.RequireFromString("2"), UnitPrice: decimal.RequireFromString("100")},
			},
		})
		if err != nil {
			return err
		}
		invoiceID = res.Document.ID
		return nil
	})
	inTx(t, pool, func(tx pgx.Tx) error {
		_, err := invoices.PostTx(ctx, tx, 1, invoiceID, time.Time{}, "corr-i", nil)
		return err
	})

	// Partial application leaves both documents PARTIAL.
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := settlements.ApplyAdvanceTx(ctx, tx, core.ApplyAdvanceInput{
			CompanyID: 1, DocumentID: invoiceID, AdvanceID: advanceID,
			Date:   time.Date(2025, 4, 6, 0, 0, 0, 0, time.UTC),
			Amount: decimal.RequireFromString("100"),
		})
		if err != nil {
			return err
		}
		if res.Document.Status != core.StatusPartial {
			t.Errorf("Expected invoice PARTIAL, got %s", res.Document.Status)
		}
		return nil
	})

	var advStatus string
	var advSettled decimal.Decimal
	if err := pool.QueryRow(ctx,
		"SELECT status, amount_settled FROM documents WHERE id = $1", advanceID).
		Scan(&advStatus, &advSettled); err != nil {
		t.Fatalf("Failed to read advance: %v", err)
	}
	if advStatus != string(core.StatusPartial) || !advSettled.Equal(decimal.RequireFromString("100")) {
		t.Errorf("Expected advance PARTIAL with 100 consumed, got %s / %s", advStatus, advSettled)
	}

	// A partly applied advance cannot be voided.
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = advances.VoidTx(ctx, tx, 1, advanceID, core.KindCustomerAdvance,
		time.Date(2025, 4, 7, 0, 0, 0, 0, time.UTC), "test", "corr-v", nil)
	tx.Rollback(ctx)
	if apperr.KindOf(err) != apperr.InvalidStateTransition {
		t.Errorf("Expected void rejection, got %v", err)
	}

	// Applying more than the advance has left is an overpayment.
	tx, err = pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = settlements.ApplyAdvanceTx(ctx, tx, core.ApplyAdvanceInput{
		CompanyID: 1, DocumentID: invoiceID, AdvanceID: advanceID,
		Date:   time.Date(2025, 4, 8, 0, 0, 0, 0, time.UTC),
		Amount: decimal.RequireFromString("50.01"),
	})
	tx.Rollback(ctx)
	if apperr.KindOf(err) != apperr.Overpayment {
		t.Errorf("Expected overpayment, got %v", err)
	}
}

func TestVendorCreditFlow(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	ledger := core.NewLedger(pool)
	inv := core.NewInventoryService(pool)
	bills := core.NewPurchaseBillService(pool, ledger, inv)
	credits := core.NewVendorCreditService(pool, ledger)
	settlements := core.NewSettlementService(pool, ledger)

	vendorID, expenseAccount := 401, 7

	// Tracked items cannot ride on a credit note.
	itemID := 1
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = credits.CreateTx(ctx, tx, core.VendorCreditInput{
		CompanyID: 1,
		Date:      time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		VendorID:  &vendorID,
		Lines: []core.LineInputSpec{
			{ItemID: &itemID, Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("5")},
		},
	})
	tx.Rollback(ctx)
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("Expected tracked item rejection, got %v", err)
	}

	// Standalone bill for 80 of services.
	var billID int
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := bills.CreateTx(ctx, tx, core.PurchaseBillInput{
			CompanyID: 1,
			Date:      time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
			VendorID:  &vendorID,
			Lines: []core.LineInputSpec{
				{AccountID: &expenseAccount, Description: "Consulting", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("80")},
			},
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

	// Credit note for 30 against the same expense.
	var creditID int
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := credits.CreateTx(ctx, tx, core.VendorCreditInput{
			CompanyID: 1,
			Date:      time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC),
			VendorID:  &vendorID,
			Lines: []core.LineInputSpec{
				{AccountID: &expenseAccount, Description: "Rebate", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("30")},
			},
		})
		if err != nil {
			return err
		}
		creditID = res.Document.ID
		return nil
	})
	inTx(t, pool, func(tx pgx.Tx) error {
		_, err := credits.PostTx(ctx, tx, 1, creditID, time.Time{}, "corr-c", nil)
		return err
	})

	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := settlements.ApplyCreditTx(ctx, tx, core.ApplyCreditInput{
			CompanyID: 1, BillID: billID, VendorCreditID: creditID,
			Date:   time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC),
			Amount: decimal.RequireFromString("30"),
		})
		if err != nil {
			return err
		}
		if res.Document.Status != core.StatusPartial {
			t.Errorf("Expected bill PARTIAL, got %s", res.Document.Status)
		}
		return nil
	})

	// Fully consumed credit lands on PAID.
	var creditStatus string
	if err := pool.QueryRow(ctx, "SELECT status FROM documents WHERE id = $1", creditID).Scan(&creditStatus); err != nil {
		t.Fatalf("Failed to read credit: %v", err)
	}
	if creditStatus != string(core.StatusPaid) {
		t.Errorf("Expected credit PAID, got %s", creditStatus)
	}

	// AP position: 80 billed less 30 credited.
	nets, err := core.GetAccountNets(ctx, pool, 1)
	if err != nil {
		t.Fatalf("Failed to load nets: %v", err)
	}
	for _, n := range nets {
		if n.AccountID == 2 && !n.Net.Equal(decimal.RequireFromString("-50")) {
			t.Errorf("Expected AP net -50, got %s", n.Net)
		}
	}
}

func TestInvoiceAdjustThenVoid(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	ledger := core.NewLedger(pool)
	inv := core.NewInventoryService(pool)
	invoices := core.NewInvoiceService(pool, ledger, inv)

	seedStock(t, pool, inv, "10", "5")
	itemID := 1

	var invoiceID int
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := invoices.CreateTx(ctx, tx, core.InvoiceInput{
			CompanyID: 1,
			Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			Lines: []core.LineInputSpec{
				{ItemID: &itemID, Quantity: decimal.RequireFromString("4"), UnitPrice: decimal.RequireFromString("50")},
			},
		})
		if err != nil {
			return err
		}
		invoiceID = res.Document.ID
		return nil
	})
	inTx(t, pool, func(tx pgx.Tx) error {
		_, err := invoices.PostTx(ctx, tx, 1, invoiceID, time.Time{}, "corr-i", nil)
		return err
	})

	// Reprice 50 → 60 with the stock content unchanged: the adjustment
	// entry carries only the 40 delta.
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := invoices.AdjustTx(ctx, tx, 1, invoiceID,
			time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
			[]core.LineInputSpec{
				{ItemID: &itemID, Quantity: decimal.RequireFromString("4"), UnitPrice: decimal.RequireFromString("60")},
			}, "corr-adj", nil)
		if err != nil {
			return err
		}
		if !res.Document.Total.Equal(decimal.RequireFromString("240")) {
			t.Errorf("Expected adjusted total 240, got %s", res.Document.Total)
		}
		if res.Entry == nil {
			t.Fatal("Expected an adjustment entry")
		}
		var arDebit decimal.Decimal
		for _, l := range res.Entry.Lines {
			if l.AccountID == 1 {
				arDebit = arDebit.Add(l.Debit)
			}
		}
		if !arDebit.Equal(decimal.RequireFromString("40")) {
			t.Errorf("Expected AR delta 40, got %s", arDebit)
		}
		return nil
	})

	// Changing the item quantity through adjust is rejected.
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = invoices.AdjustTx(ctx, tx, 1, invoiceID,
		time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		[]core.LineInputSpec{
			{ItemID: &itemID, Quantity: decimal.RequireFromString("5"), UnitPrice: decimal.RequireFromString("60")},
		}, "corr-adj2", nil)
	tx.Rollback(ctx)
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("Expected stock content rejection, got %v", err)
	}

	// Void unwinds the adjustment, the original entry, and the stock issue.
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := invoices.VoidTx(ctx, tx, 1, invoiceID,
			time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC), "customer cancelled", "corr-v", nil)
		if err != nil {
			return err
		}
		if res.Document.Status != core.StatusVoid {
			t.Errorf("Expected VOID, got %s", res.Document.Status)
		}
		return nil
	})

	var qty, value decimal.Decimal
	err = pool.QueryRow(ctx, `
		SELECT quantity_on_hand, total_value FROM inventory_balances
		WHERE company_id = 1 AND location_id = 1 AND item_id = 1
	`).Scan(&qty, &value)
	if err != nil {
		t.Fatalf("Failed to read inventory balance: %v", err)
	}
	if !qty.Equal(decimal.RequireFromString("10")) || !value.Equal(decimal.RequireFromString("50")) {
		t.Errorf("Expected stock restored to 10 @ 50, got %s @ %s", qty, value)
	}

	// Every posting net out: AR, income, COGS, and inventory all zero.
	nets, err := core.GetAccountNets(ctx, pool, 1)
	if err != nil {
		t.Fatalf("Failed to load nets: %v", err)
	}
	for _, n := range nets {
		switch n.AccountID {
		case 1, 3, 4, 7:
			if !n.Net.IsZero() {
				t.Errorf("Expected account %d to net to zero after void, got %s", n.AccountID, n.Net)
			}
		}
	}
}
