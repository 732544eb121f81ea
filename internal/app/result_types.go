package app

import (
	"accounting-core/internal/core"
	"accounting-core/internal/dates"
)

// Views are the command responses stored against the idempotency key, so a
// retry replays byte-identical JSON. Amounts render as decimal strings.

type DocumentLineView struct {
	ID             int    `json:"id"`
	ItemID         *int   `json:"itemId,omitempty"`
	AccountID      *int   `json:"accountId,omitempty"`
	Description    string `json:"description,omitempty"`
	Quantity       string `json:"quantity"`
	UnitPrice      string `json:"unitPrice"`
	DiscountAmount string `json:"discountAmount"`
	TaxRate        string `json:"taxRate"`
	TaxAmount      string `json:"taxAmount"`
	LineTotal      string `json:"lineTotal"`
}

type DocumentView struct {
	ID              int                `json:"id"`
	Kind            string             `json:"kind"`
	Number          *string            `json:"number,omitempty"`
	Status          string             `json:"status"`
	Date            string             `json:"date"`
	ContactID       *int               `json:"contactId,omitempty"`
	LocationID      int                `json:"locationId"`
	Currency        string             `json:"currency"`
	Description     string             `json:"description,omitempty"`
	Total           string             `json:"total"`
	AmountSettled   string             `json:"amountSettled"`
	LinkedReceiptID *int               `json:"linkedReceiptId,omitempty"`
	JournalEntryID  *int               `json:"journalEntryId,omitempty"`
	VoidReason      *string            `json:"voidReason,omitempty"`
	Lines           []DocumentLineView `json:"lines,omitempty"`
}

func NewDocumentView(d *core.DocumentHeader) *DocumentView {
	v := &DocumentView{
		ID:              d.ID,
		Kind:            string(d.Kind),
		Number:          d.Number,
		Status:          string(d.Status),
		Date:            dates.FormatCivil(d.Date),
		ContactID:       d.ContactID,
		LocationID:      d.LocationID,
		Currency:        d.Currency,
		Description:     d.Description,
		Total:           d.Total.StringFixed(2),
		AmountSettled:   d.AmountSettled.StringFixed(2),
		LinkedReceiptID: d.LinkedReceiptID,
		JournalEntryID:  d.JournalEntryID,
		VoidReason:      d.VoidReason,
	}
	for _, l := range d.Lines {
		v.Lines = append(v.Lines, DocumentLineView{
			ID:             l.ID,
			ItemID:         l.ItemID,
			AccountID:      l.AccountID,
			Description:    l.Description,
			Quantity:       l.Quantity.String(),
			UnitPrice:      l.UnitPrice.String(),
			DiscountAmount: l.DiscountAmount.StringFixed(2),
			TaxRate:        l.TaxRate.String(),
			TaxAmount:      l.TaxAmount.StringFixed(2),
			LineTotal:      l.LineTotal.StringFixed(2),
		})
	}
	return v
}

type EntryLineView struct {
	AccountID int    `json:"accountId"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
}

type EntryView struct {
	ID          int             `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	ReversalOf  *int            `json:"reversalOf,omitempty"`
	Lines       []EntryLineView `json:"lines"`
}

func NewEntryView(e *core.JournalEntry) *EntryView {
	if e == nil {
		return nil
	}
	v := &EntryView{
		ID:          e.ID,
		Date:        dates.FormatCivil(e.Date),
		Description: e.Description,
		ReversalOf:  e.ReversalOf,
	}
	for _, l := range e.Lines {
		v.Lines = append(v.Lines, EntryLineView{
			AccountID: l.AccountID,
			Debit:     l.Debit.StringFixed(2),
			Credit:    l.Credit.StringFixed(2),
		})
	}
	return v
}

// EntryResponse is the outcome of a manual journal entry command.
type EntryResponse struct {
	Replayed bool       `json:"replayed,omitempty"`
	Entry    *EntryView `json:"entry"`
}

// ReversalResponse is the outcome of reversing a journal entry.
type ReversalResponse struct {
	Replayed   bool       `json:"replayed,omitempty"`
	OriginalID int        `json:"originalId"`
	ReversalID int        `json:"reversalId"`
	Entry      *EntryView `json:"entry"`
}

// DocumentResponse is the outcome of every document command.
type DocumentResponse struct {
	Replayed bool          `json:"replayed,omitempty"`
	Document *DocumentView `json:"document"`
	Entry    *EntryView    `json:"entry,omitempty"`
}

type DeleteResponse struct {
	Replayed   bool `json:"replayed,omitempty"`
	DocumentID int  `json:"documentId"`
	Deleted    bool `json:"deleted"`
}

type SettlementView struct {
	ID               int    `json:"id"`
	DocumentID       int    `json:"documentId"`
	Type             string `json:"type"`
	Date             string `json:"date"`
	Amount           string `json:"amount"`
	BankAccountID    *int   `json:"bankAccountId,omitempty"`
	SourceDocumentID *int   `json:"sourceDocumentId,omitempty"`
	JournalEntryID   int    `json:"journalEntryId"`
}

func NewSettlementView(s *core.Settlement) *SettlementView {
	return &SettlementView{
		ID:               s.ID,
		DocumentID:       s.DocumentID,
		Type:             string(s.Type),
		Date:             dates.FormatCivil(s.Date),
		Amount:           s.Amount.StringFixed(2),
		BankAccountID:    s.BankAccountID,
		SourceDocumentID: s.SourceDocumentID,
		JournalEntryID:   s.JournalEntryID,
	}
}

type SettlementResponse struct {
	Replayed   bool            `json:"replayed,omitempty"`
	Settlement *SettlementView `json:"settlement"`
	Document   *DocumentView   `json:"document"`
	Entry      *EntryView      `json:"entry"`
}

type PeriodCloseResponse struct {
	Replayed       bool   `json:"replayed,omitempty"`
	ID             int    `json:"id"`
	From           string `json:"from"`
	To             string `json:"to"`
	JournalEntryID int    `json:"journalEntryId,omitempty"`
}
