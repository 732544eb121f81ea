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

// AdvanceService handles money received before an invoice exists (customer
// advances) and money paid before a bill exists (vendor advances). A posted
// advance parks the amount on the advances liability or the prepayment asset
// until the settlement service applies it to a document.
type AdvanceService struct {
	pool   *pgxpool.Pool
	ledger *Ledger
}

func NewAdvanceService(pool *pgxpool.Pool, ledger *Ledger) *AdvanceService {
	return &AdvanceService{pool: pool, ledger: ledger}
}

type AdvanceInput struct {
	CompanyID     int
	Kind          DocumentKind
	Date          time.Time
	ContactID     *int
	Amount        decimal.Decimal
	BankAccountID int
	Description   string
	CorrelationID string
	CreatedBy     *int
}

// CreateTx stores a draft advance. The bank account rides on the single
// document line so posting knows which account the money moved through.
func (s *AdvanceService) CreateTx(ctx context.Context, tx pgx.Tx, in AdvanceInput) (*DocumentResult, error) {
	if in.Kind != KindCustomerAdvance && in.Kind != KindVendorAdvance {
		return nil, apperr.E(apperr.InvalidInput, "%s is not an advance kind", in.Kind)
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.E(apperr.InvalidInput, "advance amount must be positive, got %s", money.String2(in.Amount))
	}
	company, err := LoadCompanyTx(ctx, tx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	bank, err := GetAccountTx(ctx, tx, in.CompanyID, in.BankAccountID)
	if err != nil {
		return nil, err
	}
	if !bank.IsBanking {
		return nil, apperr.E(apperr.InvalidInput, "account %s is not a banking account", bank.Code)
	}
	if in.Kind == KindVendorAdvance && bank.IsCreditCard {
		return nil, apperr.E(apperr.InvalidInput,
			"credit card account %s cannot fund a vendor advance", bank.Code)
	}

	bankID := in.BankAccountID
	doc, err := buildDraft(company, in.Kind, draftSpec{
		Date:        in.Date,
		ContactID:   in.ContactID,
		Description: in.Description,
		Lines: []LineInputSpec{{
			AccountID:   &bankID,
			Description: in.Description,
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   money.Round2(in.Amount),
		}},
		CreatedBy: in.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	if err := insertDocumentTx(ctx, tx, doc); err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc}, nil
}

func (s *AdvanceService) ApproveTx(ctx context.Context, tx pgx.Tx, companyID, advanceID int, kind DocumentKind) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, advanceID, kind)
	if err != nil {
		return nil, err
	}
	return approveDocumentTx(ctx, tx, doc)
}

func (s *AdvanceService) DeleteTx(ctx context.Context, tx pgx.Tx, companyID, advanceID int, kind DocumentKind) error {
	doc, err := lockDocumentTx(ctx, tx, companyID, advanceID, kind)
	if err != nil {
		return err
	}
	return deleteDocumentTx(ctx, tx, doc)
}

// PostTx posts the advance: a customer advance debits the bank and credits
// the advances liability, a vendor advance debits the prepayment asset and
// credits the bank.
func (s *AdvanceService) PostTx(ctx context.Context, tx pgx.Tx, companyID, advanceID int, kind DocumentKind, date time.Time, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, advanceID, kind)
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
	if len(doc.Lines) != 1 || doc.Lines[0].AccountID == nil {
		return nil, apperr.E(apperr.InvalidInput, "advance %d has no bank line", doc.ID)
	}
	if !date.IsZero() {
		doc.Date = date
	}
	bankID := *doc.Lines[0].AccountID
	amount := doc.Total

	number, err := NextDocumentNumberTx(ctx, tx, companyID, doc.Kind)
	if err != nil {
		return nil, err
	}
	doc.Number = &number

	var lines []LineInput
	if doc.Kind == KindCustomerAdvance {
		lines = []LineInput{
			{AccountID: bankID, Debit: amount},
			{AccountID: company.CustomerAdvancesID, Credit: amount},
		}
	} else {
		lines = []LineInput{
			{AccountID: company.VendorPrepaymentID, Debit: amount},
			{AccountID: bankID, Credit: amount},
		}
	}

	entry, err := s.ledger.PostJournalEntryTx(ctx, tx, PostEntryInput{
		CompanyID:   companyID,
		Date:        doc.Date,
		Description: fmt.Sprintf("Advance %s", number),
		Lines:       lines,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return nil, err
	}
	doc.JournalEntryID = &entry.ID
	doc.Status = StatusPosted

	if _, err := tx.Exec(ctx, `
		UPDATE documents
		SET number = $1, status = $2, date = $3, journal_entry_id = $4
		WHERE id = $5
	`, doc.Number, doc.Status, doc.Date, doc.JournalEntryID, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to mark advance %d posted: %w", doc.ID, err)
	}

	created, err := entryCreatedEvent(doc, entry, correlationID)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc, Entry: entry, Events: []outbox.Event{created}}, nil
}

// VoidTx refunds an unapplied advance by reversing its posting entry. An
// advance that has been applied sits in PARTIAL or PAID and must be
// unwound through the documents it settled.
func (s *AdvanceService) VoidTx(ctx context.Context, tx pgx.Tx, companyID, advanceID int, kind DocumentKind, date time.Time, reason, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, advanceID, kind)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(doc.Status, EventVoid); err != nil {
		return nil, err
	}
	if doc.JournalEntryID == nil {
		return nil, apperr.E(apperr.InvalidStateTransition, "advance %d has no posting entry", doc.ID)
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

	doc.Status = StatusVoid
	doc.VoidJournalEntryID = &reversal.ID
	doc.VoidReason = &reason
	if _, err := tx.Exec(ctx, `
		UPDATE documents
		SET status = $1, void_journal_entry_id = $2, voided_at = NOW(), void_reason = $3
		WHERE id = $4
	`, doc.Status, reversal.ID, reason, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to mark advance %d void: %w", doc.ID, err)
	}

	reversed, err := entryReversedEvent(doc, reversal, correlationID)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc, Entry: reversal, Events: []outbox.Event{reversed}}, nil
}
