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

// PurchaseBillService owns vendor bills. A standalone bill brings stock in
// (or expenses directly) against accounts payable. A bill linked to a goods
// receipt clears GRNI instead, books the price difference to PPV, and
// capitalizes its service lines into inventory value as landed cost.
type PurchaseBillService struct {
	pool      *pgxpool.Pool
	ledger    *Ledger
	inventory *InventoryService
}

func NewPurchaseBillService(pool *pgxpool.Pool, ledger *Ledger, inventory *InventoryService) *PurchaseBillService {
	return &PurchaseBillService{pool: pool, ledger: ledger, inventory: inventory}
}

type PurchaseBillInput struct {
	CompanyID       int
	Date            time.Time
	VendorID        *int
	LocationID      int
	Currency        string
	ExchangeRate    decimal.Decimal
	Description     string
	Lines           []LineInputSpec
	LinkedReceiptID *int
	CorrelationID   string
	CreatedBy       *int
}

func (s *PurchaseBillService) CreateTx(ctx context.Context, tx pgx.Tx, in PurchaseBillInput) (*DocumentResult, error) {
	company, err := LoadCompanyTx(ctx, tx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	if in.LinkedReceiptID != nil {
		receipt, err := lockDocumentTx(ctx, tx, in.CompanyID, *in.LinkedReceiptID, KindPurchaseReceipt)
		if err != nil {
			return nil, err
		}
		if receipt.Status != StatusPosted {
			return nil, apperr.E(apperr.InvalidStateTransition,
				"receipt %s is %s; only a posted receipt can be billed", documentLabel(receipt), receipt.Status)
		}
	}
	doc, err := buildDraft(company, KindPurchaseBill, draftSpec{
		Date:            in.Date,
		ContactID:       in.VendorID,
		LocationID:      in.LocationID,
		Currency:        in.Currency,
		ExchangeRate:    in.ExchangeRate,
		Description:     in.Description,
		Lines:           in.Lines,
		CreatedBy:       in.CreatedBy,
		LinkedReceiptID: in.LinkedReceiptID,
	})
	if err != nil {
		return nil, err
	}
	if err := insertDocumentTx(ctx, tx, doc); err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc}, nil
}

func (s *PurchaseBillService) UpdateTx(ctx context.Context, tx pgx.Tx, companyID, billID int, in PurchaseBillInput) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, billID, KindPurchaseBill)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(doc.Status, EventEdit); err != nil {
		return nil, err
	}

	lines, err := BuildDocumentLines(in.Lines)
	if err != nil {
		return nil, err
	}
	_, _, total := DocumentTotals(lines)

	doc.Date = in.Date
	doc.ContactID = in.VendorID
	doc.Description = in.Description
	doc.Total = total
	doc.Lines = lines
	if in.LocationID != 0 {
		doc.LocationID = in.LocationID
	}

	if _, err := tx.Exec(ctx, `
		UPDATE documents
		SET date = $1, contact_id = $2, location_id = $3, description = $4, total = $5
		WHERE id = $6
	`, doc.Date, doc.ContactID, doc.LocationID, doc.Description, doc.Total, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to update bill %d: %w", doc.ID, err)
	}
	if err := replaceDocumentLinesTx(ctx, tx, doc); err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc}, nil
}

func (s *PurchaseBillService) ApproveTx(ctx context.Context, tx pgx.Tx, companyID, billID int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, billID, KindPurchaseBill)
	if err != nil {
		return nil, err
	}
	return approveDocumentTx(ctx, tx, doc)
}

func (s *PurchaseBillService) DeleteTx(ctx context.Context, tx pgx.Tx, companyID, billID int) error {
	doc, err := lockDocumentTx(ctx, tx, companyID, billID, KindPurchaseBill)
	if err != nil {
		return err
	}
	return deleteDocumentTx(ctx, tx, doc)
}

// PostTx posts a purchase bill. Standalone bills move stock and expense
// directly; receipt-linked bills clear GRNI and capitalize landed cost.
func (s *PurchaseBillService) PostTx(ctx context.Context, tx pgx.Tx, companyID, billID int, date time.Time, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, billID, KindPurchaseBill)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(doc.Status, EventPost); err != nil {
		return nil, err
	}
	company, err := LoadCompanyTx(ctx, tx, companyID)
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

	number, err := NextDocumentNumberTx(ctx, tx, companyID, KindPurchaseBill)
	if err != nil {
		return nil, err
	}
	doc.Number = &number

	result := &DocumentResult{Document: doc}
	var entry *JournalEntry
	if doc.LinkedReceiptID != nil {
		entry, err = s.postAgainstReceiptTx(ctx, tx, company, doc, correlationID, createdBy, result)
	} else {
		entry, err = s.postStandaloneTx(ctx, tx, company, doc, correlationID, createdBy, result)
	}
	if err != nil {
		return nil, err
	}
	doc.JournalEntryID = &entry.ID
	doc.Status = StatusPosted
	result.Entry = entry

	if _, err := tx.Exec(ctx, `
		UPDATE documents
		SET number = $1, status = $2, date = $3, journal_entry_id = $4
		WHERE id = $5
	`, doc.Number, doc.Status, doc.Date, doc.JournalEntryID, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to mark bill %d posted: %w", doc.ID, err)
	}

	created, err := entryCreatedEvent(doc, entry, correlationID)
	if err != nil {
		return nil, err
	}
	result.Events = append(result.Events, created)
	return result, nil
}

// postStandaloneTx handles a bill with no receipt: tracked items come into
// stock at the billed cost, everything else debits its expense account.
func (s *PurchaseBillService) postStandaloneTx(ctx context.Context, tx pgx.Tx, company *Company, doc *DocumentHeader, correlationID string, createdBy *int, result *DocumentResult) (*JournalEntry, error) {
	inventoryTotal := decimal.Zero
	var expenseLines []LineInput
	var moves []*StockMove

	for _, line := range doc.Lines {
		tracked := false
		if line.ItemID != nil {
			item, err := GetItemTx(ctx, tx, company.ID, *line.ItemID)
			if err != nil {
				return nil, err
			}
			tracked = item.IsInventoryTracked
		}

		if tracked {
			total := line.LineTotal
			move := &StockMove{
				CompanyID:       company.ID,
				LocationID:      doc.LocationID,
				ItemID:          *line.ItemID,
				Date:            doc.Date,
				Type:            MovePurchaseReceipt,
				Direction:       DirectionIn,
				Quantity:        line.Quantity,
				UnitCostApplied: line.UnitPrice,
				ReferenceType:   string(KindPurchaseBill),
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
			inventoryTotal = inventoryTotal.Add(res.Move.TotalCostApplied)
			if res.RecalcFrom != nil {
				ev, err := RecalcEvent(res.Move, *res.RecalcFrom)
				if err != nil {
					return nil, err
				}
				result.Events = append(result.Events, ev)
			}
			continue
		}

		expenseAccount := company.COGSID
		if line.AccountID != nil {
			expenseAccount = *line.AccountID
		}
		if line.LineTotal.IsPositive() {
			expenseLines = append(expenseLines, LineInput{AccountID: expenseAccount, Debit: line.LineTotal})
		}
	}

	_, tax, total := DocumentTotals(doc.Lines)
	lines := make([]LineInput, 0, len(expenseLines)+3)
	inventoryTotal = money.Round2(inventoryTotal)
	if inventoryTotal.IsPositive() {
		lines = append(lines, LineInput{AccountID: company.InventoryAssetID, Debit: inventoryTotal})
	}
	lines = append(lines, expenseLines...)
	if tax.IsPositive() {
		lines = append(lines, LineInput{AccountID: company.PurchaseTaxID, Debit: tax})
	}
	lines = append(lines, LineInput{AccountID: company.AccountsPayableID, Credit: total})

	entry, err := s.ledger.PostJournalEntryTx(ctx, tx, PostEntryInput{
		CompanyID:   company.ID,
		Date:        doc.Date,
		Description: fmt.Sprintf("Purchase bill %s", *doc.Number),
		Lines:       lines,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return nil, err
	}
	for _, m := range moves {
		if _, err := tx.Exec(ctx,
			"UPDATE stock_moves SET journal_entry_id = $1 WHERE id = $2", entry.ID, m.ID); err != nil {
			return nil, fmt.Errorf("failed to link stock move %d to entry: %w", m.ID, err)
		}
	}
	return entry, nil
}

// postAgainstReceiptTx clears the GRNI accrual of the linked receipt. Item
// lines are matched against the receipt total; the difference goes to PPV.
// Service lines are landed cost: they capitalize into inventory value via
// value adjustments at the receipt date, allocated over the receipt's item
// lines by their cost share.
func (s *PurchaseBillService) postAgainstReceiptTx(ctx context.Context, tx pgx.Tx, company *Company, doc *DocumentHeader, correlationID string, createdBy *int, result *DocumentResult) (*JournalEntry, error) {
	receipt, err := lockDocumentTx(ctx, tx, company.ID, *doc.LinkedReceiptID, KindPurchaseReceipt)
	if err != nil {
		return nil, err
	}
	if receipt.Status != StatusPosted {
		return nil, apperr.E(apperr.InvalidStateTransition,
			"receipt %s is %s; only a posted receipt can be billed", documentLabel(receipt), receipt.Status)
	}
	var billed int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM documents
		WHERE linked_receipt_id = $1 AND id <> $2 AND status NOT IN ($3, $4, $5)
	`, receipt.ID, doc.ID, StatusDraft, StatusApproved, StatusVoid).Scan(&billed)
	if err != nil {
		return nil, fmt.Errorf("failed to check billing status of receipt: %w", err)
	}
	if billed > 0 {
		return nil, apperr.E(apperr.InvalidStateTransition,
			"receipt %s is already billed", documentLabel(receipt))
	}
	receipt.Lines, err = loadDocumentLinesTx(ctx, tx, receipt.ID)
	if err != nil {
		return nil, err
	}

	if company.GRNIAccountID == nil || company.PPVAccountID == nil {
		if company, err = LockCompanyTx(ctx, tx, company.ID); err != nil {
			return nil, err
		}
	}
	grniID, err := EnsureSystemAccountTx(ctx, tx, company, SystemGRNI)
	if err != nil {
		return nil, err
	}

	inventoryBilled := decimal.Zero
	landedTotal := decimal.Zero
	for _, line := range doc.Lines {
		if line.ItemID != nil {
			inventoryBilled = inventoryBilled.Add(line.LineTotal)
		} else {
			landedTotal = landedTotal.Add(line.LineTotal)
		}
	}
	inventoryBilled = money.Round2(inventoryBilled)
	landedTotal = money.Round2(landedTotal)
	variance := money.Round2(inventoryBilled.Sub(receipt.Total))

	if landedTotal.IsPositive() {
		allocations, err := allocateLandedCost(landedTotal, receipt.Lines)
		if err != nil {
			return nil, err
		}
		for i, amount := range allocations {
			if amount.IsZero() {
				continue
			}
			line := receipt.Lines[i]
			move := &StockMove{
				CompanyID:        company.ID,
				LocationID:       receipt.LocationID,
				ItemID:           *line.ItemID,
				Date:             receipt.Date,
				Type:             MoveValueAdjustment,
				TotalCostApplied: amount,
				ReferenceType:    string(KindPurchaseBill),
				ReferenceID:      doc.ID,
				CorrelationID:    correlationID,
			}
			res, err := s.inventory.ApplyValueAdjustmentTx(ctx, tx, move, MoveOptions{AllowBackdated: true})
			if err != nil {
				return nil, err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO purchase_bill_landed_cost_allocations
					(company_id, bill_id, receipt_id, item_id, amount, stock_move_id)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, company.ID, doc.ID, receipt.ID, *line.ItemID, amount, res.Move.ID); err != nil {
				return nil, fmt.Errorf("failed to record landed cost allocation: %w", err)
			}
			if res.RecalcFrom != nil {
				ev, err := RecalcEvent(res.Move, *res.RecalcFrom)
				if err != nil {
					return nil, err
				}
				result.Events = append(result.Events, ev)
			}
		}
	}

	_, tax, total := DocumentTotals(doc.Lines)
	lines := []LineInput{{AccountID: grniID, Debit: receipt.Total}}
	if !variance.IsZero() {
		ppvID, err := EnsureSystemAccountTx(ctx, tx, company, SystemPPV)
		if err != nil {
			return nil, err
		}
		if variance.IsPositive() {
			lines = append(lines, LineInput{AccountID: ppvID, Debit: variance})
		} else {
			lines = append(lines, LineInput{AccountID: ppvID, Credit: variance.Neg()})
		}
	}
	if landedTotal.IsPositive() {
		lines = append(lines, LineInput{AccountID: company.InventoryAssetID, Debit: landedTotal})
	}
	if tax.IsPositive() {
		lines = append(lines, LineInput{AccountID: company.PurchaseTaxID, Debit: tax})
	}
	lines = append(lines, LineInput{AccountID: company.AccountsPayableID, Credit: total})

	return s.ledger.PostJournalEntryTx(ctx, tx, PostEntryInput{
		CompanyID:   company.ID,
		Date:        doc.Date,
		Description: fmt.Sprintf("Purchase bill %s for receipt %s", *doc.Number, documentLabel(receipt)),
		Lines:       lines,
		CreatedBy:   createdBy,
	})
}

// allocateLandedCost splits an amount over receipt lines proportionally to
// their line totals. Rounding residue lands on the last line so the shares
// always sum to the amount exactly.
func allocateLandedCost(amount decimal.Decimal, receiptLines []DocumentLine) ([]decimal.Decimal, error) {
	base := decimal.Zero
	for _, l := range receiptLines {
		base = base.Add(l.LineTotal)
	}
	if !base.IsPositive() {
		return nil, apperr.E(apperr.InvalidInput,
			"cannot allocate landed cost over a zero-value receipt")
	}

	shares := make([]decimal.Decimal, len(receiptLines))
	allocated := decimal.Zero
	for i, l := range receiptLines {
		if i == len(receiptLines)-1 {
			shares[i] = money.Round2(amount.Sub(allocated))
			break
		}
		shares[i] = money.Round2(amount.Mul(l.LineTotal).Div(base))
		allocated = allocated.Add(shares[i])
	}
	return shares, nil
}

// AdjustTx changes the financial content of a POSTED bill without rewriting
// history: any previous adjustment entry is reversed, then one balanced
// entry posts the net difference between the original posting and the
// desired content. Stock-relevant content must be unchanged; quantity or
// cost corrections on stocked items go through void-and-rebill.
func (s *PurchaseBillService) AdjustTx(ctx context.Context, tx pgx.Tx, companyID, billID int, date time.Time, specs []LineInputSpec, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, billID, KindPurchaseBill)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(doc.Status, EventAdjust); err != nil {
		return nil, err
	}
	if doc.JournalEntryID == nil {
		return nil, apperr.E(apperr.InvalidStateTransition, "bill %d has no posting entry", doc.ID)
	}
	company, err := LoadCompanyTx(ctx, tx, companyID)
	if err != nil {
		return nil, err
	}
	doc.Lines, err = loadDocumentLinesTx(ctx, tx, doc.ID)
	if err != nil {
		return nil, err
	}

	newLines, err := BuildDocumentLines(specs)
	if err != nil {
		return nil, err
	}
	if err := assertSameStockContent(doc.Lines, newLines); err != nil {
		return nil, err
	}
	if doc.LinkedReceiptID != nil {
		// Service lines are already capitalized into inventory value.
		if !money.EqualMoney(serviceLineTotal(doc.Lines), serviceLineTotal(newLines)) {
			return nil, apperr.E(apperr.InvalidInput,
				"adjustment cannot change service lines of a receipt-linked bill; void and re-bill instead")
		}
	} else {
		if err := s.assertSameIntakeCost(ctx, tx, companyID, doc.Lines, newLines); err != nil {
			return nil, err
		}
	}

	if doc.LastAdjustmentJournalEntryID != nil {
		if _, err := s.ledger.CreateReversalTx(ctx, tx, ReversalInput{
			CompanyID:  companyID,
			OriginalID: *doc.LastAdjustmentJournalEntryID,
			Date:       date,
			Reason:     fmt.Sprintf("Superseded adjustment of %s", documentLabel(doc)),
			CreatedBy:  createdBy,
		}); err != nil {
			return nil, err
		}
	}

	adjusted := *doc
	adjusted.Lines = newLines
	var desired []LineInput
	if doc.LinkedReceiptID != nil {
		desired, err = s.receiptClearingLines(ctx, tx, company, &adjusted)
	} else {
		desired, err = s.standaloneDesiredLines(ctx, tx, company, &adjusted)
	}
	if err != nil {
		return nil, err
	}

	entry, err := s.ledger.PostNetDeltaAdjustmentTx(ctx, tx, AdjustmentInput{
		CompanyID:       companyID,
		OriginalEntryID: *doc.JournalEntryID,
		Date:            date,
		Description:     fmt.Sprintf("Adjustment of %s", documentLabel(doc)),
		Desired:         desired,
		CreatedBy:       createdBy,
	})
	if err != nil {
		return nil, err
	}

	_, _, total := DocumentTotals(newLines)
	doc.Lines = newLines
	doc.Total = total
	doc.LastAdjustmentJournalEntryID = nil
	if entry != nil {
		doc.LastAdjustmentJournalEntryID = &entry.ID
	}
	if err := replaceDocumentLinesTx(ctx, tx, doc); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE documents
		SET total = $1, last_adjustment_journal_entry_id = $2
		WHERE id = $3
	`, doc.Total, doc.LastAdjustmentJournalEntryID, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to record adjustment on bill %d: %w", doc.ID, err)
	}

	result := &DocumentResult{Document: doc, Entry: entry}
	if entry != nil {
		created, err := entryCreatedEvent(doc, entry, correlationID)
		if err != nil {
			return nil, err
		}
		result.Events = append(result.Events, created)
	}
	return result, nil
}

// serviceLineTotal sums the lines that carry no item, the ones landed cost
// is allocated from.
func serviceLineTotal(lines []DocumentLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.ItemID == nil {
			total = total.Add(l.LineTotal)
		}
	}
	return money.Round2(total)
}

// assertSameIntakeCost rejects an adjustment that changes the per-item cost
// of a standalone bill's tracked lines: that cost went into stock at post
// time and only void-and-rebill can change it.
func (s *PurchaseBillService) assertSameIntakeCost(ctx context.Context, tx pgx.Tx, companyID int, current, desired []DocumentLine) error {
	sum := func(lines []DocumentLine) (map[int]decimal.Decimal, error) {
		m := make(map[int]decimal.Decimal)
		for _, l := range lines {
			if l.ItemID == nil {
				continue
			}
			item, err := GetItemTx(ctx, tx, companyID, *l.ItemID)
			if err != nil {
				return nil, err
			}
			if !item.IsInventoryTracked {
				continue
			}
			m[*l.ItemID] = m[*l.ItemID].Add(l.LineTotal)
		}
		return m, nil
	}
	cur, err := sum(current)
	if err != nil {
		return err
	}
	des, err := sum(desired)
	if err != nil {
		return err
	}
	for itemID, total := range cur {
		if !money.EqualMoney(des[itemID], total) {
			return apperr.E(apperr.InvalidInput,
				"adjustment cannot change the cost of stocked item %d; void and re-bill instead", itemID)
		}
	}
	return nil
}

// standaloneDesiredLines renders the financial content a standalone bill's
// posting entry should now carry. The inventory debit comes from the moves
// actually applied at post time; they are unchanged by an adjustment.
func (s *PurchaseBillService) standaloneDesiredLines(ctx context.Context, tx pgx.Tx, company *Company, doc *DocumentHeader) ([]LineInput, error) {
	moves, err := s.inventory.MovesForReferenceTx(ctx, tx, company.ID, string(KindPurchaseBill), doc.ID)
	if err != nil {
		return nil, err
	}
	inventoryTotal := decimal.Zero
	for _, m := range moves {
		if m.Type != MoveValueAdjustment {
			inventoryTotal = inventoryTotal.Add(m.TotalCostApplied)
		}
	}
	inventoryTotal = money.Round2(inventoryTotal)

	var lines []LineInput
	if inventoryTotal.IsPositive() {
		lines = append(lines, LineInput{AccountID: company.InventoryAssetID, Debit: inventoryTotal})
	}
	for _, line := range doc.Lines {
		if line.ItemID != nil {
			item, err := GetItemTx(ctx, tx, company.ID, *line.ItemID)
			if err != nil {
				return nil, err
			}
			if item.IsInventoryTracked {
				continue
			}
		}
		expenseAccount := company.COGSID
		if line.AccountID != nil {
			expenseAccount = *line.AccountID
		}
		if line.LineTotal.IsPositive() {
			lines = append(lines, LineInput{AccountID: expenseAccount, Debit: line.LineTotal})
		}
	}

	_, tax, total := DocumentTotals(doc.Lines)
	if tax.IsPositive() {
		lines = append(lines, LineInput{AccountID: company.PurchaseTaxID, Debit: tax})
	}
	lines = append(lines, LineInput{AccountID: company.AccountsPayableID, Credit: total})
	return lines, nil
}

// receiptClearingLines renders the financial content a receipt-linked bill's
// posting entry should now carry: the GRNI clearing and landed-cost debits
// are fixed by the receipt, the variance follows the billed item total.
func (s *PurchaseBillService) receiptClearingLines(ctx context.Context, tx pgx.Tx, company *Company, doc *DocumentHeader) ([]LineInput, error) {
	receipt, err := lockDocumentTx(ctx, tx, company.ID, *doc.LinkedReceiptID, KindPurchaseReceipt)
	if err != nil {
		return nil, err
	}
	grniID, err := EnsureSystemAccountTx(ctx, tx, company, SystemGRNI)
	if err != nil {
		return nil, err
	}

	inventoryBilled := decimal.Zero
	for _, line := range doc.Lines {
		if line.ItemID != nil {
			inventoryBilled = inventoryBilled.Add(line.LineTotal)
		}
	}
	inventoryBilled = money.Round2(inventoryBilled)
	landedTotal := serviceLineTotal(doc.Lines)
	variance := money.Round2(inventoryBilled.Sub(receipt.Total))

	_, tax, total := DocumentTotals(doc.Lines)
	lines := []LineInput{{AccountID: grniID, Debit: receipt.Total}}
	if !variance.IsZero() {
		ppvID, err := EnsureSystemAccountTx(ctx, tx, company, SystemPPV)
		if err != nil {
			return nil, err
		}
		if variance.IsPositive() {
			lines = append(lines, LineInput{AccountID: ppvID, Debit: variance})
		} else {
			lines = append(lines, LineInput{AccountID: ppvID, Credit: variance.Neg()})
		}
	}
	if landedTotal.IsPositive() {
		lines = append(lines, LineInput{AccountID: company.InventoryAssetID, Debit: landedTotal})
	}
	if tax.IsPositive() {
		lines = append(lines, LineInput{AccountID: company.PurchaseTaxID, Debit: tax})
	}
	lines = append(lines, LineInput{AccountID: company.AccountsPayableID, Credit: total})
	return lines, nil
}

// VoidTx reverses a posted bill: the live adjustment entry if one exists,
// the posting entry, its stock intake, and its landed-cost capitalization
// all come back out.
func (s *PurchaseBillService) VoidTx(ctx context.Context, tx pgx.Tx, companyID, billID int, date time.Time, reason, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, billID, KindPurchaseBill)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(doc.Status, EventVoid); err != nil {
		return nil, err
	}
	if doc.JournalEntryID == nil {
		return nil, apperr.E(apperr.InvalidStateTransition, "bill %d has no posting entry", doc.ID)
	}

	if doc.LastAdjustmentJournalEntryID != nil {
		if _, err := s.ledger.CreateReversalTx(ctx, tx, ReversalInput{
			CompanyID:  companyID,
			OriginalID: *doc.LastAdjustmentJournalEntryID,
			Date:       date,
			Reason:     reason,
			CreatedBy:  createdBy,
		}); err != nil {
			return nil, err
		}
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
		return nil, fmt.Errorf("failed to mark bill %d void: %w", doc.ID, err)
	}

	reversed, err := entryReversedEvent(doc, reversal, correlationID)
	if err != nil {
		return nil, err
	}
	events = append(events, reversed)
	return &DocumentResult{Document: doc, Entry: reversal, Events: events}, nil
}
