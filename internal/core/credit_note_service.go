package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"accounting-core/internal/apperr"
	"accounting-core/internal/outbox"
)

// CreditNoteService handles customer credit notes, the receivable-side
// mirror of vendor credits. A posted note reduces what the customer owes;
// the settlement service later allocates it against invoices. Notes are
// financial only: stock coming back from a customer goes through an invoice
// void or a stock adjustment, not a credit note.
type CreditNoteService struct {
	pool   *pgxpool.Pool
	ledger *Ledger
}

func NewCreditNoteService(pool *pgxpool.Pool, ledger *Ledger) *CreditNoteService {
	return &CreditNoteService{pool: pool, ledger: ledger}
}

type CreditNoteInput struct {
	CompanyID     int
	Date          time.Time
	CustomerID    *int
	Description   string
	Lines         []LineInputSpec
	CorrelationID string
	CreatedBy     *int
}

func (s *CreditNoteService) CreateTx(ctx context.Context, tx pgx.Tx, in CreditNoteInput) (*DocumentResult, error) {
	company, err := LoadCompanyTx(ctx, tx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := validateCreditLines(ctx, tx, in.CompanyID, in.Lines); err != nil {
		return nil, err
	}
	doc, err := buildDraft(company, KindCreditNote, draftSpec{
		Date:        in.Date,
		ContactID:   in.CustomerID,
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

func (s *CreditNoteService) ApproveTx(ctx context.Context, tx pgx.Tx, companyID, noteID int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, noteID, KindCreditNote)
	if err != nil {
		return nil, err
	}
	return approveDocumentTx(ctx, tx, doc)
}

func (s *CreditNoteService) DeleteTx(ctx context.Context, tx pgx.Tx, companyID, noteID int) error {
	doc, err := lockDocumentTx(ctx, tx, companyID, noteID, KindCreditNote)
	if err != nil {
		return err
	}
	return deleteDocumentTx(ctx, tx, doc)
}

// PostTx posts the note: receivable down, income and collected tax backed
// out in proportion to the note's content.
func (s *CreditNoteService) PostTx(ctx context.Context, tx pgx.Tx, companyID, noteID int, date time.Time, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, noteID, KindCreditNote)
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

	number, err := NextDocumentNumberTx(ctx, tx, companyID, KindCreditNote)
	if err != nil {
		return nil, err
	}
	doc.Number = &number

	_, tax, total := DocumentTotals(doc.Lines)
	var lines []LineInput
	for _, l := range doc.Lines {
		account := company.SalesIncomeID
		if l.AccountID != nil {
			account = *l.AccountID
		}
		if l.LineTotal.IsPositive() {
			lines = append(lines, LineInput{AccountID: account, Debit: l.LineTotal})
		}
	}
	if tax.IsPositive() {
		lines = append(lines, LineInput{AccountID: company.TaxPayableID, Debit: tax})
	}
	lines = append(lines, LineInput{AccountID: company.AccountsReceivableID, Credit: total})

	entry, err := s.ledger.PostJournalEntryTx(ctx, tx, PostEntryInput{
		CompanyID:   companyID,
		Date:        doc.Date,
		Description: fmt.Sprintf("Credit note %s", number),
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
		return nil, fmt.Errorf("failed to mark credit note %d posted: %w", doc.ID, err)
	}

	created, err := entryCreatedEvent(doc, entry, correlationID)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc, Entry: entry, Events: []outbox.Event{created}}, nil
}

// VoidTx reverses an unapplied note. A note that has been applied to an
// invoice sits in PARTIAL or PAID and cannot be voided.
func (s *CreditNoteService) VoidTx(ctx context.Context, tx pgx.Tx, companyID, noteID int, date time.Time, reason, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, noteID, KindCreditNote)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(doc.Status, EventVoid); err != nil {
		return nil, err
	}
	if doc.JournalEntryID == nil {
		return nil, apperr.E(apperr.InvalidStateTransition, "credit note %d has no posting entry", doc.ID)
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
		return nil, fmt.Errorf("failed to mark credit note %d void: %w", doc.ID, err)
	}

	reversed, err := entryReversedEvent(doc, reversal, correlationID)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc, Entry: reversal, Events: []outbox.Event{reversed}}, nil
}
