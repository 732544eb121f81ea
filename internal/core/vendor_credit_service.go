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

// VendorCreditService handles vendor credit notes. A posted credit reduces
// the payable position; the settlement service later allocates it against
// bills. Credits are financial only: a physical return of tracked stock goes
// through a receipt void or a stock adjustment, not a credit note.
type VendorCreditService struct {
	pool   *pgxpool.Pool
	ledger *Ledger
}

func NewVendorCreditService(pool *pgxpool.Pool, ledger *Ledger) *VendorCreditService {
	return &VendorCreditService{pool: pool, ledger: ledger}
}

type VendorCreditInput struct {
	CompanyID     int
	Date          time.Time
	VendorID      *int
	Description   string
	Lines         []LineInputSpec
	CorrelationID string
	CreatedBy     *int
}

func (s *VendorCreditService) CreateTx(ctx context.Context, tx pgx.Tx, in VendorCreditInput) (*DocumentResult, error) {
	company, err := LoadCompanyTx(ctx, tx, in.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := validateCreditLines(ctx, tx, in.CompanyID, in.Lines); err != nil {
		return nil, err
	}
	doc, err := buildDraft(company, KindVendorCredit, draftSpec{
		Date:        in.Date,
		ContactID:   in.VendorID,
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

func validateCreditLines(ctx context.Context, tx pgx.Tx, companyID int, specs []LineInputSpec) error {
	for i, l := range specs {
		if l.ItemID == nil {
			continue
		}
		item, err := GetItemTx(ctx, tx, companyID, *l.ItemID)
		if err != nil {
			return err
		}
		if item.IsInventoryTracked {
			return apperr.E(apperr.InvalidInput,
				"credit line %d: tracked item %s cannot be credited; return the stock instead", i, item.Code)
		}
	}
	return nil
}

func (s *VendorCreditService) ApproveTx(ctx context.Context, tx pgx.Tx, companyID, creditID int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, creditID, KindVendorCredit)
	if err != nil {
		return nil, err
	}
	return approveDocumentTx(ctx, tx, doc)
}

func (s *VendorCreditService) DeleteTx(ctx context.Context, tx pgx.Tx, companyID, creditID int) error {
	doc, err := lockDocumentTx(ctx, tx, companyID, creditID, KindVendorCredit)
	if err != nil {
		return err
	}
	return deleteDocumentTx(ctx, tx, doc)
}

// PostTx posts the credit: payable down, expense and recoverable tax backed
// out in proportion to the credit's content.
func (s *VendorCreditService) PostTx(ctx context.Context, tx pgx.Tx, companyID, creditID int, date time.Time, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, creditID, KindVendorCredit)
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

	number, err := NextDocumentNumberTx(ctx, tx, companyID, KindVendorCredit)
	if err != nil {
		return nil, err
	}
	doc.Number = &number

	_, tax, total := DocumentTotals(doc.Lines)
	lines := []LineInput{{AccountID: company.AccountsPayableID, Debit: total}}
	for _, l := range doc.Lines {
		account := company.COGSID
		if l.AccountID != nil {
			account = *l.AccountID
		}
		if l.LineTotal.IsPositive() {
			lines = append(lines, LineInput{AccountID: account, Credit: l.LineTotal})
		}
	}
	if tax.IsPositive() {
		lines = append(lines, LineInput{AccountID: company.PurchaseTaxID, Credit: tax})
	}

	entry, err := s.ledger.PostJournalEntryTx(ctx, tx, PostEntryInput{
		CompanyID:   companyID,
		Date:        doc.Date,
		Description: fmt.Sprintf("Vendor credit %s", number),
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
		return nil, fmt.Errorf("failed to mark credit %d posted: %w", doc.ID, err)
	}

	created, err := entryCreatedEvent(doc, entry, correlationID)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc, Entry: entry, Events: []outbox.Event{created}}, nil
}

// VoidTx reverses an unapplied credit. A credit that has been applied to a
// bill sits in PARTIAL or PAID and cannot be voided.
func (s *VendorCreditService) VoidTx(ctx context.Context, tx pgx.Tx, companyID, creditID int, date time.Time, reason, correlationID string, createdBy *int) (*DocumentResult, error) {
	doc, err := lockDocumentTx(ctx, tx, companyID, creditID, KindVendorCredit)
	if err != nil {
		return nil, err
	}
	if _, err := Transition(doc.Status, EventVoid); err != nil {
		return nil, err
	}
	if doc.JournalEntryID == nil {
		return nil, apperr.E(apperr.InvalidStateTransition, "credit %d has no posting entry", doc.ID)
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
		return nil, fmt.Errorf("failed to mark credit %d void: %w", doc.ID, err)
	}

	reversed, err := entryReversedEvent(doc, reversal, correlationID)
	if err != nil {
		return nil, err
	}
	return &DocumentResult{Document: doc, Entry: reversal, Events: []outbox.Event{reversed}}, nil
}
