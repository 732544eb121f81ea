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
	"accounting-core/internal/outbox"
)

// InvoiceService owns the sales invoice lifecycle: draft content edits,
// posting to the ledger with COGS at weighted-average cost, net-delta
// adjustments of posted invoices, and voiding with compensating stock moves.
type InvoiceService struct {
	pool      *pgxpool.Pool
	ledger    *Ledger
	inventory *InventoryService
}

func NewInvoiceService(pool *pgxpool.Pool, ledger *Ledger, inventory *InventoryService) *InvoiceService {
	return &InvoiceService{pool: pool, ledger: ledger, inventory: inventory}
}

type InvoiceInput struct {
	CompanyID     int
	Date          time.Time
	CustomerID    *int
	LocationID    int
	Currency      string
	ExchangeRate  decimal.Decimal
	Description   string
	Lines         []LineInputSpec
	CorrelationID string
	CreatedBy     *int
}

type DocumentResult struct {
	Document *DocumentHeader
	Entry    *JournalEntry
	Events   []outbox.Event
}

// CreateTx stores a DRAFT invoice. Nothing touches the ledger until post.
func (s *InvoiceService) CreateTx(ctx context.Context, tx pgx.Tx, in InvoiceInput) (*DocumentResult, error) {
	company, err := LoadCompanyTx(ctx, tx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	doc, err := buildDraft(company, KindInvoice, draftSpec{
		Date:         in.Date,
		ContactID:    in.CustomerID,
		LocationID:   in.LocationID,
		Currency:     in.Currency,
		ExchangeRate: in.ExchangeRate,
		Description:  in.Description,
		Lines:        in.Lines,
		CreatedBy:    in.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	if err := insertDocumentTx(ctx, tx, doc); err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc}, nil
}

// UpdateTx replaces the content of a DRAFT or APPROVED invoice.
func (s *InvoiceService) UpdateTx(ctx context.Context, tx pgx.Tx, companyID, invoiceID int, in InvoiceInput) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, invoiceID, KindInvoice)
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
	doc.ContactID = in.CustomerID
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
		return nil, fmt.Errorf("failed to update invoice %d: %w", doc.ID, err)
	}
	if err := replaceDocumentLinesTx(ctx, tx, doc); err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc}, nil
}

// ApproveTx moves a DRAFT invoice to APPROVED.
func (s *InvoiceService) ApproveTx(ctx context.Context, tx pgx.Tx, companyID, invoiceID int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, invoiceID, KindInvoice)
	if err != nil {
		return nil, err
	}
	return approveDocumentTx(ctx, tx, doc)
}

// DeleteTx removes an unposted invoice entirely.
func (s *InvoiceService) DeleteTx(ctx context.Context, tx pgx.Tx, companyID, invoiceID int) error {
	doc, err := lockDocumentTx(ctx, tx, companyID, invoiceID, KindInvoice)
	if err != nil {
		return err
	}
	return deleteDocumentTx(ctx, tx, doc)
}

// PostTx posts an invoice: assigns its number, issues stock for tracked
// items at the current weighted-average cost, and writes one journal entry
// carrying both the revenue and the COGS legs.
func (s *InvoiceService) PostTx(ctx context.Context, tx pgx.Tx, companyID, invoiceID int, date time.Time, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, invoiceID, KindInvoice)
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

	number, err := NextDocumentNumberTx(ctx, tx, companyID, KindInvoice)
	if err != nil {
		return nil, err
	}
	doc.Number = &number

	moves, events, err := s.issueStockTx(ctx, tx, company, doc, correlationID)
	if err != nil {
		return nil, err
	}

	lines, err := s.postingLines(company, doc, moves)
	if err != nil {
		return nil, err
	}
	entry, err := s.ledger.PostJournalEntryTx(ctx, tx, PostEntryInput{
		CompanyID:   companyID,
		Date:        doc.Date,
		Description: fmt.Sprintf("Invoice %s", number),
		Lines:       lines,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return nil, err
	}
	doc.JournalEntryID = &entry.ID
	doc.Status = StatusPosted

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
		return nil, fmt.Errorf("failed to mark invoice %d posted: %w", doc.ID, err)
	}

	created, err := entryCreatedEvent(doc, entry, correlationID)
	if err != nil {
		return nil, err
	}
	events = append(events, created)
	return &DocumentResult{Document: doc, Entry: entry, Events: events}, nil
}

// issueStockTx writes a SALE_ISSUE move per tracked item line and returns
// the applied moves plus any recalc events a backdated posting produced.
func (s *InvoiceService) issueStockTx(ctx context.Context, tx pgx.Tx, company *Company, doc *DocumentHeader, correlationID string) ([]*StockMove, []outbox.Event, error) {
	var moves []*StockMove
	var events []outbox.Event
	for _, line := range doc.Lines {
		if line.ItemID == nil {
			continue
		}
		item, err := GetItemTx(ctx, tx, company.ID, *line.ItemID)
		if err != nil {
			return nil, nil, err
		}
		if !item.IsInventoryTracked {
			continue
		}
		move := &StockMove{
			CompanyID:     company.ID,
			LocationID:    doc.LocationID,
			ItemID:        item.ID,
			Date:          doc.Date,
			Type:          MoveSaleIssue,
			Direction:     DirectionOut,
			Quantity:      line.Quantity,
			ReferenceType: string(KindInvoice),
			ReferenceID:   doc.ID,
			CorrelationID: correlationID,
		}
		res, err := s.inventory.ApplyStockMoveTx(ctx, tx, move, MoveOptions{AllowBackdated: true})
		if err != nil {
			return nil, nil, err
		}
		moves = append(moves, res.Move)
		if res.RecalcFrom != nil {
			ev, err := RecalcEvent(res.Move, *res.RecalcFrom)
			if err != nil {
				return nil, nil, err
			}
			events = append(events, ev)
		}
	}
	return moves, events, nil
}

// postingLines renders the invoice's financial content as journal lines:
// AR for the total, income per line, tax payable for the tax sum, and the
// COGS pair for each issued move.
func (s *InvoiceService) postingLines(company *Company, doc *DocumentHeader, moves []*StockMove) ([]LineInput, error) {
	_, tax, total := DocumentTotals(doc.Lines)

	lines := []LineInput{{AccountID: company.AccountsReceivableID, Debit: total}}
	for _, l := range doc.Lines {
		incomeAccount := company.SalesIncomeID
		if l.AccountID != nil {
			incomeAccount = *l.AccountID
		}
		if l.LineTotal.IsPositive() {
			lines = append(lines, LineInput{AccountID: incomeAccount, Credit: l.LineTotal})
		}
	}
	if tax.IsPositive() {
		lines = append(lines, LineInput{AccountID: company.TaxPayableID, Credit: tax})
	}

	cogs := decimal.Zero
	for _, m := range moves {
		cogs = cogs.Add(m.TotalCostApplied)
	}
	cogs = money.Round2(cogs)
	if cogs.IsPositive() {
		lines = append(lines,
			LineInput{AccountID: company.COGSID, Debit: cogs},
			LineInput{AccountID: company.InventoryAssetID, Credit: cogs},
		)
	}
	return lines, nil
}

// AdjustTx changes the financial content of a POSTED invoice without
// rewriting history: any previous adjustment entry is reversed, then one
// balanced entry posts the net difference between the original posting and
// the desired content. Stock-relevant content must be unchanged; quantity
// corrections go through void-and-reissue.
func (s *InvoiceService) AdjustTx(ctx context.Context, tx pgx.Tx, companyID, invoiceID int, date time.Time, specs []LineInputSpec, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, invoiceID, KindInvoice)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(doc.Status, EventAdjust); err != nil {
		return nil, err
	}
	if doc.JournalEntryID == nil {
		return nil, apperr.E(apperr.InvalidStateTransition, "invoice %d has no posting entry", doc.ID)
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

	moves, err := s.inventory.MovesForReferenceTx(ctx, tx, companyID, string(KindInvoice), doc.ID)
	if err != nil {
		return nil, err
	}
	adjusted := *doc
	adjusted.Lines = newLines
	desired, err := s.postingLines(company, &adjusted, moves)
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
		return nil, fmt.Errorf("failed to record adjustment on invoice %d: %w", doc.ID, err)
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

// VoidTx reverses everything a posted invoice did: the adjustment entry if
// one is live, the main posting entry, and the stock issues. Compensating
// SALE_RETURN moves restore the originally applied cost so inventory value
// lands exactly where it was.
func (s *InvoiceService) VoidTx(ctx context.Context, tx pgx.Tx, companyID, invoiceID int, date time.Time, reason, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, invoiceID, KindInvoice)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(doc.Status, EventVoid); err != nil {
		return nil, err
	}
	if doc.JournalEntryID == nil {
		return nil, apperr.E(apperr.InvalidStateTransition, "invoice %d has no posting entry", doc.ID)
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

	now := time.Now()
	doc.Status = StatusVoid
	doc.VoidJournalEntryID = &reversal.ID
	doc.VoidedAt = &now
	doc.VoidReason = &reason
	if _, err := tx.Exec(ctx, `
		UPDATE documents
		SET status = $1, void_journal_entry_id = $2, voided_at = NOW(), void_reason = $3
		WHERE id = $4
	`, doc.Status, reversal.ID, reason, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to mark invoice %d void: %w", doc.ID, err)
	}

	reversed, err := entryReversedEvent(doc, reversal, correlationID)
	if err != nil {
		return nil, err
	}
	events = append(events, reversed)
	return &DocumentResult{Document: doc, Entry: reversal, Events: events}, nil
}
