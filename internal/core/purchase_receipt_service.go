package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"accounting-core/internal/apperr"
	"accounting-core/internal/money"
)

// PurchaseReceiptService handles goods receipts: stock comes in at the
// vendor's cost and the liability accrues on GRNI until the purchase bill
// arrives and clears it.
type PurchaseReceiptService struct {
	pool      *pgxpool.Pool
	ledger    *Ledger
	inventory *InventoryService
}

func NewPurchaseReceiptService(pool *pgxpool.Pool, ledger *Ledger, inventory *InventoryService) *PurchaseReceiptService {
	return &PurchaseReceiptService{pool: pool, ledger: ledger, inventory: inventory}
}

type PurchaseReceiptInput struct {
	CompanyID     int
	Date          time.Time
	VendorID      *int
	LocationID    int
	Description   string
	Lines         []LineInputSpec
	CorrelationID string
	CreatedBy     *int
}

func (s *PurchaseReceiptService) CreateTx(ctx context.Context, tx pgx.Tx, in PurchaseReceiptInput) (*DocumentResult, error) {
	company, err := LoadCompanyTx(ctx, tx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := validateReceiptLines(ctx, tx, in.CompanyID, in.Lines); err != nil {
		return nil, err
	}
	doc, err := buildDraft(company, KindPurchaseReceipt, draftSpec{
		Date:        in.Date,
		ContactID:   in.VendorID,
		LocationID:  in.LocationID,
		Description: in.Description,
		Lines:       in.Lines,
		CreatedBy:   in.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	if err := insertDocumentTx(ctx, tx, doc); err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc}, nil
}

// validateReceiptLines requires every receipt line to be a tracked item at
// cost with no tax. Tax belongs to the bill.
func validateReceiptLines(ctx context.Context, tx pgx.Tx, companyID int, specs []LineInputSpec) error {
	for i, l := range specs {
		if l.ItemID == nil {
			return apperr.E(apperr.InvalidInput, "receipt line %d: an item is required", i)
		}
		if !l.TaxRate.IsZero() {
			return apperr.E(apperr.InvalidInput, "receipt line %d: receipts carry no tax", i)
		}
		item, err := GetItemTx(ctx, tx, companyID, *l.ItemID)
		if err != nil {
			return err
		}
		if !item.IsInventoryTracked {
			return apperr.E(apperr.InvalidInput, "receipt line %d: item %s is not inventory tracked", i, item.Code)
		}
	}
	return nil
}

func (s *PurchaseReceiptService) ApproveTx(ctx context.Context, tx pgx.Tx, companyID, receiptID int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, receiptID, KindPurchaseReceipt)
	if err != nil {
		return nil, err
	}
	return approveDocumentTx(ctx, tx, doc)
}

func (s *PurchaseReceiptService) DeleteTx(ctx context.Context, tx pgx.Tx, companyID, receiptID int) error {
	doc, err := lockDocumentTx(ctx, tx, companyID, receiptID, KindPurchaseReceipt)
	if err != nil {
		return err
	}
	return deleteDocumentTx(ctx, tx, doc)
}

// PostTx receives the goods: one IN move per line at the line's cost and a
// single entry debiting inventory against GRNI for the receipt total.
func (s *PurchaseReceiptService) PostTx(ctx context.Context, tx pgx.Tx, companyID, receiptID int, date time.Time, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, receiptID, KindPurchaseReceipt)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(doc.Status, EventPost); err != nil {
		return nil, err
	}

	// GRNI may not exist yet; creating it requires the company row lock.
	company, err := LoadCompanyTx(ctx, tx, companyID)
	if err != nil {
		return nil, err
	}
	if company.GRNIAccountID == nil {
		if company, err = LockCompanyTx(ctx, tx, companyID); err != nil {
			return nil, err
		}
	}
	grniID, err := EnsureSystemAccountTx(ctx, tx, company, SystemGRNI)
	if err != nil {
		return nil, err
	}

	doc.Lines, err = loadDocumentLinesTx(ctx, tx, doc.ID)
	if err != nil {
		return nil, err
	}
	if err := assertTotalsConsistent(doc); err != nil {
		return nil, err
	}
	if !date.IsZero() {
		doc.Date = date
	}

	number, err := NextDocumentNumberTx(ctx, tx, companyID, KindPurchaseReceipt)
	if err != nil {
		return nil, err
	}
	doc.Number = &number

	var moves []*StockMove
	result := &DocumentResult{Document: doc}
	for _, line := range doc.Lines {
		total := line.LineTotal
		move := &StockMove{
			CompanyID:       companyID,
			LocationID:      doc.LocationID,
			ItemID:          *line.ItemID,
			Date:            doc.Date,
			Type:            MovePurchaseReceipt,
			Direction:       DirectionIn,
			Quantity:        line.Quantity,
			UnitCostApplied: line.UnitPrice,
			ReferenceType:   string(KindPurchaseReceipt),
			ReferenceID:     doc.ID,
			CorrelationID:   correlationID,
		}
		res, err := s.inventory.ApplyStockMoveTx(ctx, tx, move, MoveOptions{
			AllowBackdated:    true,
			TotalCostOverride: &total,
		})
		if err != nil {
			return nil, err
		}
		moves = append(moves, res.Move)
		if res.RecalcFrom != nil {
			ev, err := RecalcEvent(res.Move, *res.RecalcFrom)
			if err != nil {
				return nil, err
			}
			result.Events = append(result.Events, ev)
		}
	}

	total := decimal.Zero
	for _, m := range moves {
		total = total.Add(m.TotalCostApplied)
	}
	total = money.Round2(total)

	entry, err := s.ledger.PostJournalEntryTx(ctx, tx, PostEntryInput{
		CompanyID:   companyID,
		Date:        doc.Date,
		Description: fmt.Sprintf("Goods receipt %s", number),
		Lines: []LineInput{
			{AccountID: company.InventoryAssetID, Debit: total},
			{AccountID: grniID, Credit: total},
		},
		CreatedBy: createdBy,
	})
	if err != nil {
		return nil, err
	}
	doc.JournalEntryID = &entry.ID
	doc.Status = StatusPosted
	result.Entry = entry

	for _, m := range moves {
		if _, err := tx.Exec(ctx,
			"UPDATE stock_moves SET journal_entry_id = $1 WHERE id = $2", entry.ID, m.ID); err != nil {
			return nil, fmt.Errorf("failed to link stock move %d to entry: %w", m.ID, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE documents
		SET number = $1, status = $2, date = $3, journal_entry_id = $4
		WHERE id = $5
	`, doc.Number, doc.Status, doc.Date, doc.JournalEntryID, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to mark receipt %d posted: %w", doc.ID, err)
	}

	created, err := entryCreatedEvent(doc, entry, correlationID)
	if err != nil {
		return nil, err
	}
	result.Events = append(result.Events, created)
	return result, nil
}

// VoidTx reverses an unbilled receipt. A receipt with a live linked bill
// must have the bill voided first.
func (s *PurchaseReceiptService) VoidTx(ctx context.Context, tx pgx.Tx, companyID, receiptID int, date time.Time, reason, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, receiptID, KindPurchaseReceipt)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(doc.Status, EventVoid); err != nil {
		return nil, err
	}
	if doc.JournalEntryID == nil {
		return nil, apperr.E(apperr.InvalidStateTransition, "receipt %d has no posting entry", doc.ID)
	}

	var billCount int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM documents
		WHERE linked_receipt_id = $1 AND status <> $2
	`, doc.ID, StatusVoid).Scan(&billCount)
	if err != nil {
		return nil, fmt.Errorf("failed to check linked bills: %w", err)
	}
	if billCount > 0 {
		return nil, apperr.E(apperr.InvalidStateTransition,
			"receipt %s has a live linked bill; void the bill first", documentLabel(doc))
	}

	reversal, err := s.ledger.CreateReversalTx(ctx, tx, ReversalInput{
		CompanyID:  companyID,
		OriginalID: *doc.JournalEntryID,
		Date:       date,
		Reason:     reason,
		CreatedBy:  createdBy,
		MarkVoid:   true,
	})
	if err != nil {
		return nil, err
	}

	events, err := compensateStockTx(ctx, tx, s.inventory, companyID, doc, date, reversal.ID, correlationID)
	if err != nil {
		return nil, err
	}

	doc.Status = StatusVoid
	doc.VoidJournalEntryID = &reversal.ID
	doc.VoidReason = &reason
	if _, err := tx.Exec(ctx, `
		UPDATE documents
		SET status = $1, void_journal_entry_id = $2, voided_at = NOW(), void_reason = $3
		WHERE id = $4
	`, doc.Status, reversal.ID, reason, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to mark receipt %d void: %w", doc.ID, err)
	}

	reversed, err := entryReversedEvent(doc, reversal, correlationID)
	if err != nil {
		return nil, err
	}
	events = append(events, reversed)
	return &DocumentResult{Document: doc, Entry: reversal, Events: events}, nil
}
