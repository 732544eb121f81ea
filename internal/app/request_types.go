package app

import (
	"github.com/shopspring/decimal"
)

// Command carries the metadata every mutating request needs. The
// idempotency key scopes retries; the correlation id threads through every
// event the command emits. The correlation id is excluded from JSON so a
// retry with a fresh trace id still fingerprints identically.
type Command struct {
	CompanyID      int    `json:"companyId"`
	IdempotencyKey string `json:"idempotencyKey"`
	CorrelationID  string `json:"-"`
	ActorID        *int   `json:"actorId,omitempty"`
}

// LineRequest is one document line as the caller submits it. Amounts are
// decimal strings on the wire; dates everywhere are civil YYYY-MM-DD.
type LineRequest struct {
	ItemID         *int            `json:"itemId,omitempty"`
	AccountID      *int            `json:"accountId,omitempty"`
	Description    string          `json:"description,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TaxRate        decimal.Decimal `json:"taxRate"`
}

// EntryLineRequest is one side of a manual journal entry line. Exactly one
// of debit and credit must be positive.
type EntryLineRequest struct {
	AccountID int             `json:"accountId"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type PostEntryRequest struct {
	Command
	Date        string             `json:"date"`
	Description string             `json:"description,omitempty"`
	Lines       []EntryLineRequest `json:"lines"`
}

type ReverseEntryRequest struct {
	Command
	EntryID int    `json:"entryId"`
	Date    string `json:"date"`
	Reason  string `json:"reason"`
}

type CreateInvoiceRequest struct {
	Command
	Date         string          `json:"date"`
	CustomerID   *int            `json:"customerId,omitempty"`
	LocationID   int             `json:"locationId,omitempty"`
	Currency     string          `json:"currency,omitempty"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
	Description  string          `json:"description,omitempty"`
	Lines        []LineRequest   `json:"lines"`
}

type UpdateInvoiceRequest struct {
	CreateInvoiceRequest
	InvoiceID int `json:"invoiceId"`
}

// DocumentRequest addresses an existing document for approve and delete.
type DocumentRequest struct {
	Command
	DocumentID int `json:"documentId"`
}

type PostDocumentRequest struct {
	Command
	DocumentID int `json:"documentId"`
	// Date optionally overrides the document date at posting time.
	Date string `json:"date,omitempty"`
}

type AdjustInvoiceRequest struct {
	Command
	InvoiceID int           `json:"invoiceId"`
	Date      string        `json:"date"`
	Lines     []LineRequest `json:"lines"`
}

type VoidDocumentRequest struct {
	Command
	DocumentID int    `json:"documentId"`
	Date       string `json:"date"`
	Reason     string `json:"reason"`
}

type CreateReceiptRequest struct {
	Command
	Date        string        `json:"date"`
	VendorID    *int          `json:"vendorId,omitempty"`
	LocationID  int           `json:"locationId,omitempty"`
	Description string        `json:"description,omitempty"`
	Lines       []LineRequest `json:"lines"`
}

type CreateBillRequest struct {
	Command
	Date            string          `json:"date"`
	VendorID        *int            `json:"vendorId,omitempty"`
	LocationID      int             `json:"locationId,omitempty"`
	Currency        string          `json:"currency,omitempty"`
	ExchangeRate    decimal.Decimal `json:"exchangeRate"`
	Description     string          `json:"description,omitempty"`
	Lines           []LineRequest   `json:"lines"`
	LinkedReceiptID *int            `json:"linkedReceiptId,omitempty"`
}

type UpdateBillRequest struct {
	CreateBillRequest
	BillID int `json:"billId"`
}

type AdjustBillRequest struct {
	Command
	BillID int           `json:"billId"`
	Date   string        `json:"date"`
	Lines  []LineRequest `json:"lines"`
}

type CreateVendorCreditRequest struct {
	Command
	Date        string        `json:"date"`
	VendorID    *int          `json:"vendorId,omitempty"`
	Description string        `json:"description,omitempty"`
	Lines       []LineRequest `json:"lines"`
}

type CreateCreditNoteRequest struct {
	Command
	Date        string        `json:"date"`
	CustomerID  *int          `json:"customerId,omitempty"`
	Description string        `json:"description,omitempty"`
	Lines       []LineRequest `json:"lines"`
}

type CreateAdvanceRequest struct {
	Command
	// Kind is CUSTOMER_ADVANCE or VENDOR_ADVANCE.
	Kind          string          `json:"kind"`
	Date          string          `json:"date"`
	ContactID     *int            `json:"contactId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	BankAccountID int             `json:"bankAccountId"`
	Description   string          `json:"description,omitempty"`
}

type PostAdvanceRequest struct {
	Command
	AdvanceID int    `json:"advanceId"`
	Kind      string `json:"kind"`
	Date      string `json:"date,omitempty"`
}

type VoidAdvanceRequest struct {
	Command
	AdvanceID int    `json:"advanceId"`
	Kind      string `json:"kind"`
	Date      string `json:"date"`
	Reason    string `json:"reason"`
}

type RecordPaymentRequest struct {
	Command
	DocumentID    int             `json:"documentId"`
	Date          string          `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	BankAccountID int             `json:"bankAccountId"`
}

type ApplyCreditRequest struct {
	Command
	BillID         int             `json:"billId"`
	VendorCreditID int             `json:"vendorCreditId"`
	Date           string          `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
}

type ApplyCreditNoteRequest struct {
	Command
	InvoiceID    int             `json:"invoiceId"`
	CreditNoteID int             `json:"creditNoteId"`
	Date         string          `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
}

type ApplyAdvanceRequest struct {
	Command
	DocumentID int             `json:"documentId"`
	AdvanceID  int             `json:"advanceId"`
	Date       string          `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
}

type ClosePeriodRequest struct {
	Command
	From string `json:"from"`
	To   string `json:"to"`
}
