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

type SettlementType string

const (
	SettlementPayment      SettlementType = "PAYMENT"
	SettlementCreditApply  SettlementType = "CREDIT_APPLICATION"
	SettlementAdvanceApply SettlementType = "ADVANCE_APPLICATION"
)

type Settlement struct {
	ID         int
	CompanyID  int
	DocumentID int
	Type       SettlementType
	Date       time.Time
	Amount     decimal.Decimal
	// BankAccountID is set for payments; SourceDocumentID for credit and
	// advance applications.
	BankAccountID    *int
	SourceDocumentID *int
	JournalEntryID   int
	CreatedBy        *int
	CreatedAt        time.Time
}

// SettlementService settles posted invoices and purchase bills: direct
// payments through a banking account, vendor credit applications, and
// advance applications. Every settlement posts its own journal entry and
// moves the document toward PAID.
type SettlementService struct {
	pool   *pgxpool.Pool
	ledger *Ledger
}

func NewSettlementService(pool *pgxpool.Pool, ledger *Ledger) *SettlementService {
	return &SettlementService{pool: pool, ledger: ledger}
}

type SettlementResult struct {
	Settlement *Settlement
	Document   *DocumentHeader
	Entry      *JournalEntry
	Events     []outbox.Event
}

type PaymentInput struct {
	CompanyID     int
	DocumentID    int
	Date          time.Time
	Amount        decimal.Decimal
	BankAccountID int
	CorrelationID string
	CreatedBy     *int
}

// RecordPaymentTx settles an invoice (money in) or a purchase bill (money
// out) against a banking account. Credit-card accounts cannot fund vendor
// payments; paying a card is itself a bill against the card's liability.
func (s *SettlementService) RecordPaymentTx(ctx context.Context, tx pgx.Tx, in PaymentInput) (*SettlementResult, error) {
	doc, err := lockDocumentTx(ctx, tx, in.CompanyID, in.DocumentID, "")
	if err != nil {
		return nil, err
	}
	if doc.Kind != KindInvoice && doc.Kind != KindPurchaseBill {
		return nil, apperr.E(apperr.InvalidInput, "cannot record a payment against a %s", doc.Kind)
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
	if doc.Kind == KindPurchaseBill && bank.IsCreditCard {
		return nil, apperr.E(apperr.InvalidInput,
			"credit card account %s cannot fund a vendor payment", bank.Code)
	}

	amount := money.Round2(in.Amount)
	var lines []LineInput
	if doc.Kind == KindInvoice {
		lines = []LineInput{
			{AccountID: in.BankAccountID, Debit: amount},
			{AccountID: company.AccountsReceivableID, Credit: amount},
		}
	} else {
		lines = []LineInput{
			{AccountID: company.AccountsPayableID, Debit: amount},
			{AccountID: in.BankAccountID, Credit: amount},
		}
	}

	return s.settleTx(ctx, tx, company, doc, settleSpec{
		Type:          SettlementPayment,
		Date:          in.Date,
		Amount:        amount,
		BankAccountID: &in.BankAccountID,
		Lines:         lines,
		Description:   fmt.Sprintf("Payment against %s", documentLabel(doc)),
		CorrelationID: in.CorrelationID,
		CreatedBy:     in.CreatedBy,
	})
}

type ApplyCreditInput struct {
	CompanyID      int
	BillID         int
	VendorCreditID int
	Date           time.Time
	Amount         decimal.Decimal
	CorrelationID  string
	CreatedBy      *int
}

// ApplyCreditTx allocates a posted vendor credit against a purchase bill.
// Both payable positions sit on accounts payable, so the allocation entry
// nets to zero there; it exists to keep the audit trail entry-per-event.
func (s *SettlementService) ApplyCreditTx(ctx context.Context, tx pgx.Tx, in ApplyCreditInput) (*SettlementResult, error) {
	bill, credit, err := lockDocumentPairTx(ctx, tx, in.CompanyID, in.BillID, KindPurchaseBill, in.VendorCreditID, KindVendorCredit)
	if err != nil {
		return nil, err
	}
	company, err := LoadCompanyTx(ctx, tx, in.CompanyID)
	if err != nil {
		return nil, err
	}

	amount := money.Round2(in.Amount)
	if err := s.consumeSourceTx(ctx, tx, credit, amount); err != nil {
		return nil, err
	}

	return s.settleTx(ctx, tx, company, bill, settleSpec{
		Type:             SettlementCreditApply,
		Date:             in.Date,
		Amount:           amount,
		SourceDocumentID: &in.VendorCreditID,
		Lines: []LineInput{
			{AccountID: company.AccountsPayableID, Debit: amount},
			{AccountID: company.AccountsPayableID, Credit: amount},
		},
		Description:   fmt.Sprintf("Applied %s to %s", documentLabel(credit), documentLabel(bill)),
		CorrelationID: in.CorrelationID,
		CreatedBy:     in.CreatedBy,
	})
}

type ApplyCreditNoteInput struct {
	CompanyID     int
	InvoiceID     int
	CreditNoteID  int
	Date          time.Time
	Amount        decimal.Decimal
	CorrelationID string
	CreatedBy     *int
}

// ApplyCreditNoteTx allocates a posted customer credit note against an
// invoice, the receivable-side mirror of ApplyCreditTx. Both positions sit
// on accounts receivable, so the allocation entry nets to zero there.
func (s *SettlementService) ApplyCreditNoteTx(ctx context.Context, tx pgx.Tx, in ApplyCreditNoteInput) (*SettlementResult, error) {
	invoice, note, err := lockDocumentPairTx(ctx, tx, in.CompanyID, in.InvoiceID, KindInvoice, in.CreditNoteID, KindCreditNote)
	if err != nil {
		return nil, err
	}
	company, err := LoadCompanyTx(ctx, tx, in.CompanyID)
	if err != nil {
		return nil, err
	}

	amount := money.Round2(in.Amount)
	if err := s.consumeSourceTx(ctx, tx, note, amount); err != nil {
		return nil, err
	}

	return s.settleTx(ctx, tx, company, invoice, settleSpec{
		Type:             SettlementCreditApply,
		Date:             in.Date,
		Amount:           amount,
		SourceDocumentID: &in.CreditNoteID,
		Lines: []LineInput{
			{AccountID: company.AccountsReceivableID, Debit: amount},
			{AccountID: company.AccountsReceivableID, Credit: amount},
		},
		Description:   fmt.Sprintf("Applied %s to %s", documentLabel(note), documentLabel(invoice)),
		CorrelationID: in.CorrelationID,
		CreatedBy:     in.CreatedBy,
	})
}

type ApplyAdvanceInput struct {
	CompanyID     int
	DocumentID    int
	AdvanceID     int
	Date          time.Time
	Amount        decimal.Decimal
	CorrelationID string
	CreatedBy     *int
}

// ApplyAdvanceTx consumes a posted customer advance against an invoice or a
// vendor advance against a purchase bill, releasing the advance liability
// (or prepayment asset) into the receivable or payable position.
func (s *SettlementService) ApplyAdvanceTx(ctx context.Context, tx pgx.Tx, in ApplyAdvanceInput) (*SettlementResult, error) {
	doc, advance, err := lockDocumentPairTx(ctx, tx, in.CompanyID, in.DocumentID, "", in.AdvanceID, "")
	if err != nil {
		return nil, err
	}

	switch {
	case doc.Kind == KindInvoice && advance.Kind == KindCustomerAdvance:
	case doc.Kind == KindPurchaseBill && advance.Kind == KindVendorAdvance:
	default:
		return nil, apperr.E(apperr.InvalidInput,
			"cannot apply a %s against a %s", advance.Kind, doc.Kind)
	}
	if doc.ContactID != nil && advance.ContactID != nil && *doc.ContactID != *advance.ContactID {
		return nil, apperr.E(apperr.InvalidInput,
			"advance %d and document %d belong to different contacts", in.AdvanceID, in.DocumentID)
	}

	company, err := LoadCompanyTx(ctx, tx, in.CompanyID)
	if err != nil {
		return nil, err
	}

	amount := money.Round2(in.Amount)
	if err := s.consumeSourceTx(ctx, tx, advance, amount); err != nil {
		return nil, err
	}

	var lines []LineInput
	if doc.Kind == KindInvoice {
		lines = []LineInput{
			{AccountID: company.CustomerAdvancesID, Debit: amount},
			{AccountID: company.AccountsReceivableID, Credit: amount},
		}
	} else {
		lines = []LineInput{
			{AccountID: company.AccountsPayableID, Debit: amount},
			{AccountID: company.VendorPrepaymentID, Credit: amount},
		}
	}

	return s.settleTx(ctx, tx, company, doc, settleSpec{
		Type:             SettlementAdvanceApply,
		Date:             in.Date,
		Amount:           amount,
		SourceDocumentID: &in.AdvanceID,
		Lines:            lines,
		Description:      fmt.Sprintf("Applied %s to %s", documentLabel(advance), documentLabel(doc)),
		CorrelationID:    in.CorrelationID,
		CreatedBy:        in.CreatedBy,
	})
}

type settleSpec struct {
	Type             SettlementType
	Date             time.Time
	Amount           decimal.Decimal
	BankAccountID    *int
	SourceDocumentID *int
	Lines            []LineInput
	Description      string
	CorrelationID    string
	CreatedBy        *int
}

// settleTx is the shared tail of every settlement: validate state and
// remaining balance, post the entry, record the settlement row, and roll the
// document forward to PARTIAL or PAID.
func (s *SettlementService) settleTx(ctx context.Context, tx pgx.Tx, company *Company, doc *DocumentHeader, spec settleSpec) (*SettlementResult, error) {
	if _, err := Transition(doc.Status, EventSettle); err != nil {
		return nil, err
	}
	if doc.Currency != company.BaseCurrency {
		return nil, apperr.E(apperr.CurrencyMismatch,
			"document %d is in %s; settlements post in base currency %s",
			doc.ID, doc.Currency, company.BaseCurrency)
	}
	if !spec.Amount.IsPositive() {
		return nil, apperr.E(apperr.InvalidInput, "settlement amount must be positive, got %s", money.String2(spec.Amount))
	}
	remaining := money.Round2(doc.Total.Sub(doc.AmountSettled))
	if spec.Amount.GreaterThan(remaining) {
		return nil, apperr.E(apperr.Overpayment,
			"settlement %s exceeds remaining balance %s on %s",
			money.String2(spec.Amount), money.String2(remaining), documentLabel(doc))
	}

	entry, err := s.ledger.PostJournalEntryTx(ctx, tx, PostEntryInput{
		CompanyID:   doc.CompanyID,
		Date:        spec.Date,
		Description: spec.Description,
		Lines:       spec.Lines,
		CreatedBy:   spec.CreatedBy,
		Action:      ActionSettlement,
	})
	if err != nil {
		return nil, err
	}

	st := &Settlement{
		CompanyID:        doc.CompanyID,
		DocumentID:       doc.ID,
		Type:             spec.Type,
		Date:             spec.Date,
		Amount:           spec.Amount,
		BankAccountID:    spec.BankAccountID,
		SourceDocumentID: spec.SourceDocumentID,
		JournalEntryID:   entry.ID,
		CreatedBy:        spec.CreatedBy,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO settlements
			(company_id, document_id, type, date, amount, bank_account_id,
			 source_document_id, journal_entry_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		RETURNING id, created_at
	`, st.CompanyID, st.DocumentID, st.Type, st.Date, st.Amount, st.BankAccountID,
		st.SourceDocumentID, st.JournalEntryID, st.CreatedBy).Scan(&st.ID, &st.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert settlement: %w", err)
	}

	if err := advanceSettledTx(ctx, tx, doc, spec.Amount); err != nil {
		return nil, err
	}

	event, err := outbox.New(doc.CompanyID, outbox.EventJournalEntryCreated, "JournalEntry",
		fmt.Sprintf("%d", entry.ID), spec.CorrelationID, map[string]any{
			"journalEntryId": entry.ID,
			"documentId":     doc.ID,
			"documentKind":   doc.Kind,
			"settlementId":   st.ID,
			"settlementType": st.Type,
			"amount":         money.String2(st.Amount),
		})
	if err != nil {
		return nil, err
	}

	return &SettlementResult{Settlement: st, Document: doc, Entry: entry, Events: []outbox.Event{event}}, nil
}

// consumeSourceTx draws down the remaining balance of a posted credit or
// advance. The source document tracks how much of it has been applied in its
// own amount_settled column.
func (s *SettlementService) consumeSourceTx(ctx context.Context, tx pgx.Tx, source *DocumentHeader, amount decimal.Decimal) error {
	if _, err := Transition(source.Status, EventSettle); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return apperr.E(apperr.InvalidInput, "application amount must be positive, got %s", money.String2(amount))
	}
	remaining := money.Round2(source.Total.Sub(source.AmountSettled))
	if amount.GreaterThan(remaining) {
		return apperr.E(apperr.Overpayment,
			"application %s exceeds remaining balance %s on %s",
			money.String2(amount), money.String2(remaining), documentLabel(source))
	}
	return advanceSettledTx(ctx, tx, source, amount)
}

// advanceSettledTx bumps amount_settled under the held row lock and moves
// the status to PARTIAL, or PAID once the total is covered.
func advanceSettledTx(ctx context.Context, tx pgx.Tx, doc *DocumentHeader, amount decimal.Decimal) error {
	newSettled := money.Round2(doc.AmountSettled.Add(amount))
	status := StatusPartial
	if newSettled.GreaterThanOrEqual(doc.Total) {
		status = StatusPaid
	}
	if _, err := tx.Exec(ctx, `
		UPDATE documents SET amount_settled = $1, status = $2 WHERE id = $3
	`, newSettled, status, doc.ID); err != nil {
		return fmt.Errorf("failed to update settled amount on document %d: %w", doc.ID, err)
	}
	doc.AmountSettled = newSettled
	doc.Status = status
	return nil
}

// lockDocumentPairTx locks two documents in ascending id order so concurrent
// applications touching the same pair cannot deadlock.
func lockDocumentPairTx(ctx context.Context, tx pgx.Tx, companyID, firstID int, firstKind DocumentKind, secondID int, secondKind DocumentKind) (*DocumentHeader, *DocumentHeader, error) {
	if firstID == secondID {
		return nil, nil, apperr.E(apperr.InvalidInput, "cannot apply document %d against itself", firstID)
	}
	if firstID < secondID {
		first, err := lockDocumentTx(ctx, tx, companyID, firstID, firstKind)
		if err != nil {
			return nil, nil, err
		}
		second, err := lockDocumentTx(ctx, tx, companyID, secondID, secondKind)
		if err != nil {
			return nil, nil, err
		}
		return first, second, nil
	}
	second, err := lockDocumentTx(ctx, tx, companyID, secondID, secondKind)
	if err != nil {
		return nil, nil, err
	}
	first, err := lockDocumentTx(ctx, tx, companyID, firstID, firstKind)
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

func documentLabel(doc *DocumentHeader) string {
	if doc.Number != nil {
		return *doc.Number
	}
	return fmt.Sprintf("%s %d", doc.Kind, doc.ID)
}
