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

func TestStandaloneBillAdjustThenVoid(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	ledger := core.NewLedger(pool)
	inv := core.NewInventoryService(pool)
	bills := core.NewPurchaseBillService(pool, ledger, inv)

	itemID, freightAccount := 1, 7

	// Standalone bill: 10 widgets at 5 plus 20 of freight expense.
	var billID int
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := bills.CreateTx(ctx, tx, core.PurchaseBillInput{
			CompanyID: 1,
			Date:      time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			Lines: []core.LineInputSpec{
				{ItemID: &itemID, Quantity: decimal.RequireFromString("10"), UnitPrice: decimal.RequireFromString("5")},
				{AccountID: &freightAccount, Description: "Freight", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("20")},
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

	// Raising freight to 30 posts only the 10 difference.
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := bills.AdjustTx(ctx, tx, 1, billID,
			time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC),
			[]core.LineInputSpec{
				{ItemID: &itemID, Quantity: decimal.RequireFromString("10"), UnitPrice: decimal.RequireFromString("5")},
				{AccountID: &freightAccount, Description: "Freight", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("30")},
			}, "corr-adj", nil)
		if err != nil {
			return err
		}
		if !res.Document.Total.Equal(decimal.RequireFromString("80")) {
			t.Errorf("Expected adjusted total 80, got %s", res.Document.Total)
		}
		if res.Entry == nil {
			t.Fatal("Expected a net-delta adjustment entry")
		}
		if res.Document.LastAdjustmentJournalEntryID == nil {
			t.Error("Expected last adjustment entry recorded on the bill")
		}
		debit, credit := decimal.Zero, decimal.Zero
		for _, l := range res.Entry.Lines {
			if l.AccountID == 7 {
				debit = debit.Add(l.Debit)
			}
			if l.AccountID == 2 {
				credit = credit.Add(l.Credit)
			}
		}
		if !debit.Equal(decimal.RequireFromString("10")) || !credit.Equal(decimal.RequireFromString("10")) {
			t.Errorf("Expected 10 expense debit against 10 payable credit, got %s / %s", debit, credit)
		}
		return nil
	})

	// Quantity changes on a stocked line are not adjustable.
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = bills.AdjustTx(ctx, tx, 1, billID,
		time.Date(2025, 5, 11, 0, 0, 0, 0, time.UTC),
		[]core.LineInputSpec{
			{ItemID: &itemID, Quantity: decimal.RequireFromString("9"), UnitPrice: decimal.RequireFromString("5")},
			{AccountID: &freightAccount, Description: "Freight", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("30")},
		}, "corr-adj2", nil)
	tx.Rollback(ctx)
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("Expected rejection of quantity change, got %v", err)
	}

	// So are cost changes: the 50 went into stock at post time.
	tx, err = pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = bills.AdjustTx(ctx, tx, 1, billID,
		time.Date(2025, 5, 11, 0, 0, 0, 0, time.UTC),
		[]core.LineInputSpec{
			{ItemID: &itemID, Quantity: decimal.RequireFromString("10"), UnitPrice: decimal.RequireFromString("6")},
			{AccountID: &freightAccount, Description: "Freight", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("30")},
		}, "corr-adj3", nil)
	tx.Rollback(ctx)
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("Expected rejection of stocked-item cost change, got %v", err)
	}

	// Void takes the live adjustment out with the posting entry.
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := bills.VoidTx(ctx, tx, 1, billID,
			time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC), "ordered in error", "corr-v", nil)
		if err != nil {
			return err
		}
		if res.Document.Status != core.StatusVoid {
			t.Errorf("Expected VOID, got %s", res.Document.Status)
		}
		return nil
	})
	nets, err := core.GetAccountNets(ctx, pool, 1)
	if err != nil {
		t.Fatalf("Failed to load account nets: %v", err)
	}
	for _, n := range nets {
		if (n.AccountID == 2 || n.AccountID == 3 || n.AccountID == 7) && !n.Net.IsZero() {
			t.Errorf("Expected account %d to net to zero after void, got %s", n.AccountID, n.Net)
		}
	}
}

func TestReceiptLinkedBillAdjustRecomputesVariance(t *testing.T) {
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
			Date:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
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

	// Billed at 5.50 with 10 freight: 5 goes to PPV, 10 capitalizes.
	var billID int
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := bills.CreateTx(ctx, tx, core.PurchaseBillInput{
			CompanyID: 1,
			Date:      time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
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

	var ppv int
	if err := pool.QueryRow(ctx, "SELECT ppv_account_id FROM companies WHERE id = 1").Scan(&ppv); err != nil || ppv == 0 {
		t.Fatalf("PPV account not provisioned: %v", err)
	}

	// Correcting the billed price to 5.20 shrinks the variance from 5 to 2.
	inTx(t, pool, func(tx pgx.Tx) error {
		res, err := bills.AdjustTx(ctx, tx, 1, billID,
			time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
			[]core.LineInputSpec{
				{ItemID: &itemID, Quantity: decimal.RequireFromString("10"), UnitPrice: decimal.RequireFromString("5.20")},
				{AccountID: &freightAccount, Description: "Freight", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("10")},
			}, "corr-adj", nil)
		if err != nil {
			return err
		}
		if !res.Document.Total.Equal(decimal.RequireFromString("62")) {
			t.Errorf("Expected adjusted total 62, got %s", res.Document.Total)
		}
		return nil
	})
	nets, err := core.GetAccountNets(ctx, pool, 1)
	if err != nil {
		t.Fatalf("Failed to load account nets: %v", err)
	}
	for _, n := range nets {
		switch n.AccountID {
		case ppv:
			if !n.Net.Equal(decimal.RequireFromString("2")) {
				t.Errorf("Expected PPV net 2 after adjustment, got %s", n.Net)
			}
		case 2:
			if !n.Net.Equal(decimal.RequireFromString("-62")) {
				t.Errorf("Expected payable net -62 after adjustment, got %s", n.Net)
			}
		}
	}

	// Freight is capitalized from the receipt; only void-and-rebill changes it.
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err = bills.AdjustTx(ctx, tx, 1, billID,
		time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC),
		[]core.LineInputSpec{
			{ItemID: &itemID, Quantity: decimal.RequireFromString("10"), UnitPrice: decimal.RequireFromString("5.20")},
			{AccountID: &freightAccount, Description: "Freight", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("15")},
		}, "corr-adj2", nil)
	tx.Rollback(ctx)
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Errorf("Expected rejection of service-line change, got %v", err)
	}
}
