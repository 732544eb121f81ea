package core

import (
	"time"

	"github.com/shopspring/decimal"

	"accounting-core/internal/apperr"
	"accounting-core/internal/money"
)

type DocumentStatus string

const (
	StatusDraft    DocumentStatus = "DRAFT"
	StatusApproved DocumentStatus = "APPROVED"
	StatusPosted   DocumentStatus = "POSTED"
	StatusPartial  DocumentStatus = "PARTIAL"
	StatusPaid     DocumentStatus = "PAID"
	StatusVoid     DocumentStatus = "VOID"
)

type DocumentEvent string

const (
	EventApprove DocumentEvent = "approve"
	EventPost    DocumentEvent = "post"
	EventAdjust  DocumentEvent = "adjust"
	EventVoid    DocumentEvent = "void"
	EventSettle  DocumentEvent = "settle"
	EventEdit    DocumentEvent = "edit-content"
	EventDelete  DocumentEvent = "delete"
)

// Transition is the shared state machine of every document kind. Settling
// lands on PARTIAL; the settlement path upgrades to PAID once the settled
// total covers the document total. VOID and PAID are terminal.
func Transition(status DocumentStatus, event DocumentEvent) (DocumentStatus, error) {
	switch event {
	case EventApprove:
		if status == StatusDraft {
			return StatusApproved, nil
		}
	case EventPost:
		if status == StatusDraft || status == StatusApproved {
			return StatusPosted, nil
		}
	case EventAdjust:
		if status == StatusPosted {
			return StatusPosted, nil
		}
	case EventVoid:
		if status == StatusPosted {
			return StatusVoid, nil
		}
	case EventSettle:
		if status == StatusPosted || status == StatusPartial {
			return StatusPartial, nil
		}
	case EventEdit, EventDelete:
		if status == StatusDraft || status == StatusApproved {
			return status, nil
		}
	}
	return status, apperr.E(apperr.InvalidStateTransition,
		"cannot %s a %s document", event, status)
}

// DocumentHeader is the shape shared by every document kind; the kind tag
// selects the variant-specific posting behavior.
type DocumentHeader struct {
	ID        int
	CompanyID int
	Kind      DocumentKind
	Number    *string
	Status    DocumentStatus
	Date      time.Time
	// ContactID is the customer or vendor, depending on kind.
	ContactID  *int
	LocationID int
	Currency   string
	// ExchangeRate converts the entered currency to base currency before
	// posting; amounts below are already in base currency.
	ExchangeRate  decimal.Decimal
	Description   string
	Total         decimal.Decimal
	AmountSettled decimal.Decimal
	// LinkedReceiptID ties a purchase bill to the purchase receipt it
	// invoices (GRNI/PPV flow).
	LinkedReceiptID *int

	JournalEntryID               *int
	LastAdjustmentJournalEntryID *int
	VoidJournalEntryID           *int
	VoidedAt                     *time.Time
	VoidReason                   *string

	CreatedBy *int
	CreatedAt time.Time

	Lines []DocumentLine
}

type DocumentLine struct {
	ID         int
	CompanyID  int
	DocumentID int
	// ItemID set: an inventory-relevant line. AccountID set: a direct
	// income/expense line. A line carries at least one of the two.
	ItemID         *int
	AccountID      *int
	Description    string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxRate        decimal.Decimal
	TaxAmount      decimal.Decimal
	LineTotal      decimal.Decimal
}

// LineInputSpec is the caller-facing shape of a document line before
// totals are computed.
type LineInputSpec struct {
	ItemID         *int
	AccountID      *int
	Description    string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxRate        decimal.Decimal
}

// BuildDocumentLines validates line inputs and computes per-line totals.
// Tax is computed per line at cent precision and summed, never re-derived
// from the document total.
func BuildDocumentLines(specs []LineInputSpec) ([]DocumentLine, error) {
	if len(specs) == 0 {
		return nil, apperr.E(apperr.InvalidInput, "document must have at least one line")
	}
	lines := make([]DocumentLine, 0, len(specs))
	for i, in := range specs {
		if in.ItemID == nil && in.AccountID == nil {
			return nil, apperr.E(apperr.InvalidInput, "line %d: either item or account is required", i)
		}
		if !in.Quantity.IsPositive() {
			return nil, apperr.E(apperr.InvalidInput, "line %d: quantity must be positive", i)
		}
		if in.UnitPrice.IsNegative() {
			return nil, apperr.E(apperr.InvalidInput, "line %d: unit price cannot be negative", i)
		}
		if in.DiscountAmount.IsNegative() {
			return nil, apperr.E(apperr.InvalidInput, "line %d: discount cannot be negative", i)
		}
		gross := in.Quantity.Mul(in.UnitPrice)
		if in.DiscountAmount.GreaterThan(gross) {
			return nil, apperr.E(apperr.InvalidInput, "line %d: discount %s exceeds line amount %s",
				i, money.String2(in.DiscountAmount), money.String2(gross))
		}
		if in.TaxRate.IsNegative() || in.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
			return nil, apperr.E(apperr.InvalidInput, "line %d: tax rate must be between 0 and 1", i)
		}

		lineTotal := money.Round2(gross.Sub(in.DiscountAmount))
		lines = append(lines, DocumentLine{
			ItemID:         in.ItemID,
			AccountID:      in.AccountID,
			Description:    in.Description,
			Quantity:       in.Quantity,
			UnitPrice:      in.UnitPrice,
			DiscountAmount: money.Round2(in.DiscountAmount),
			TaxRate:        in.TaxRate,
			TaxAmount:      money.Round2(lineTotal.Mul(in.TaxRate)),
			LineTotal:      lineTotal,
		})
	}
	return lines, nil
}

// DocumentTotals sums already-rounded line totals and taxes.
func DocumentTotals(lines []DocumentLine) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Zero
	tax = decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal)
		tax = tax.Add(l.TaxAmount)
	}
	subtotal = money.Round2(subtotal)
	tax = money.Round2(tax)
	return subtotal, tax, subtotal.Add(tax)
}
