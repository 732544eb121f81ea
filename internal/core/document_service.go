package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"accounting-core/internal/apperr"
	"accounting-core/internal/money"
	"accounting-core/internal/outbox"
)

// draftSpec is the kind-independent content of a new draft document.
type draftSpec struct {
	Date         time.Time
	ContactID    *int
	LocationID   int
	Currency     string
	ExchangeRate decimal.Decimal
	Description  string
	Lines        []LineInputSpec
	CreatedBy    *int

	LinkedReceiptID *int
}

// buildDraft validates content and assembles a DRAFT header. Location and
// currency default from the company.
func buildDraft(company *Company, kind DocumentKind, spec draftSpec) (*DocumentHeader, error) {
	if spec.Date.IsZero() {
		return nil, apperr.E(apperr.InvalidInput, "document date is required")
	}
	lines, err := BuildDocumentLines(spec.Lines)
	if err != nil {
		return nil, err
	}
	_, _, total := DocumentTotals(lines)

	locationID := spec.LocationID
	if locationID == 0 {
		locationID = company.DefaultLocationID
	}
	currency := spec.Currency
	if currency == "" {
		currency = company.BaseCurrency
	}
	rate := spec.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}

	return &DocumentHeader{
		CompanyID:       company.ID,
		Kind:            kind,
		Status:          StatusDraft,
		Date:            spec.Date,
		ContactID:       spec.ContactID,
		LocationID:      locationID,
		Currency:        currency,
		ExchangeRate:    rate,
		Description:     spec.Description,
		Total:           total,
		AmountSettled:   decimal.Zero,
		LinkedReceiptID: spec.LinkedReceiptID,
		CreatedBy:       spec.CreatedBy,
		Lines:           lines,
	}, nil
}

func approveDocumentTx(ctx context.Context, tx pgx.Tx, doc *DocumentHeader) (*DocumentResult, error) {
	next, err := Transition(doc.Status, EventApprove)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		"UPDATE documents SET status = $1 WHERE id = $2", next, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to approve document %d: %w", doc.ID, err)
	}
	doc.Status = next
	return &DocumentResult{Document: doc}, nil
}

func deleteDocumentTx(ctx context.Context, tx pgx.Tx, doc *DocumentHeader) error {
	if _, err := Transition(doc.Status, EventDelete); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM document_lines WHERE document_id = $1", doc.ID); err != nil {
		return fmt.Errorf("failed to delete lines of document %d: %w", doc.ID, err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM documents WHERE id = $1", doc.ID); err != nil {
		return fmt.Errorf("failed to delete document %d: %w", doc.ID, err)
	}
	return nil
}

// assertTotalsConsistent recomputes the total from the stored lines and
// rejects a header that drifted from its content.
func assertTotalsConsistent(doc *DocumentHeader) error {
	_, _, total := DocumentTotals(doc.Lines)
	if !money.EqualMoney(total, doc.Total) {
		return apperr.E(apperr.RoundingMismatch,
			"document %d total %s does not match recomputed %s",
			doc.ID, money.String2(doc.Total), money.String2(total))
	}
	return nil
}

// assertSameStockContent rejects an adjustment that changes item identity or
// quantity on any line. Stock corrections go through void-and-reissue.
func assertSameStockContent(current, desired []DocumentLine) error {
	type stockKey struct {
		itemID int
	}
	sum := func(lines []DocumentLine) map[stockKey]decimal.Decimal {
		m := make(map[stockKey]decimal.Decimal)
		for _, l := range lines {
			if l.ItemID == nil {
				continue
			}
			k := stockKey{itemID: *l.ItemID}
			m[k] = m[k].Add(l.Quantity)
		}
		return m
	}
	cur, des := sum(current), sum(desired)
	if len(cur) != len(des) {
		return apperr.E(apperr.InvalidInput,
			"adjustment cannot add or remove item lines; void and re-issue instead")
	}
	for k, q := range cur {
		if !des[k].Equal(q) {
			return apperr.E(apperr.InvalidInput,
				"adjustment cannot change quantities of item %d; void and re-issue instead", k.itemID)
		}
	}
	return nil
}

// compensateStockTx unwinds every stock move a document produced with an
// opposite move dated at the void. IN compensations restore the originally
// applied total cost; OUT compensations flow at the weighted-average cost in
// effect, as any issue does. Negative quantity is allowed so a void is never
// blocked by stock consumed in the meantime.
func compensateStockTx(ctx context.Context, tx pgx.Tx, inv *InventoryService, companyID int, doc *DocumentHeader, date time.Time, entryID int, correlationID string) ([]outbox.Event, error) {
	moves, err := inv.MovesForReferenceTx(ctx, tx, companyID, string(doc.Kind), doc.ID)
	if err != nil {
		return nil, err
	}

	var events []outbox.Event
	for _, m := range moves {
		comp := &StockMove{
			CompanyID:      companyID,
			LocationID:     m.LocationID,
			ItemID:         m.ItemID,
			Date:           date,
			Quantity:       m.Quantity,
			ReferenceType:  string(doc.Kind) + "_VOID",
			ReferenceID:    doc.ID,
			CorrelationID:  correlationID,
			JournalEntryID: &entryID,
		}

		opts := MoveOptions{AllowBackdated: true, AllowNegative: true}
		var res *MoveResult
		switch {
		case m.Type == MoveValueAdjustment:
			comp.Type = MoveValueAdjustment
			comp.TotalCostApplied = m.TotalCostApplied.Neg()
			res, err = inv.ApplyValueAdjustmentTx(ctx, tx, comp, opts)
		case m.Direction == DirectionOut:
			comp.Type = MoveSaleReturn
			comp.Direction = DirectionIn
			total := m.TotalCostApplied
			opts.TotalCostOverride = &total
			res, err = inv.ApplyStockMoveTx(ctx, tx, comp, opts)
		default:
			comp.Type = MovePurchaseReturn
			comp.Direction = DirectionOut
			res, err = inv.ApplyStockMoveTx(ctx, tx, comp, opts)
		}
		if err != nil {
			return nil, err
		}
		if res.RecalcFrom != nil {
			ev, err := RecalcEvent(res.Move, *res.RecalcFrom)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}
	return events, nil
}

func entryCreatedEvent(doc *DocumentHeader, entry *JournalEntry, correlationID string) (outbox.Event, error) {
	return outbox.New(doc.CompanyID, outbox.EventJournalEntryCreated, "JournalEntry",
		fmt.Sprintf("%d", entry.ID), correlationID, map[string]any{
			"journalEntryId": entry.ID,
			"documentId":     doc.ID,
			"documentKind":   doc.Kind,
			"date":           entry.Date.Format("2006-01-02"),
			"total":          money.String2(doc.Total),
		})
}

func entryReversedEvent(doc *DocumentHeader, reversal *JournalEntry, correlationID string) (outbox.Event, error) {
	return outbox.New(doc.CompanyID, outbox.EventJournalEntryReversed, "JournalEntry",
		fmt.Sprintf("%d", reversal.ID), correlationID, map[string]any{
			"journalEntryId": reversal.ID,
			"reversalOf":     reversal.ReversalOf,
			"documentId":     doc.ID,
			"documentKind":   doc.Kind,
		})
}
