package app

import (
	"context"

	"accounting-core/internal/core"
)

// ApplicationService is the single interface all adapters call. Every
// mutating method is a command: it requires an idempotency key, runs inside
// one database transaction, and returns the same response on retry.
// Implementations contain no transport concerns of any kind.
type ApplicationService interface {
	// PostJournalEntry posts a balanced manual journal entry.
	PostJournalEntry(ctx context.Context, req PostEntryRequest) (*EntryResponse, error)

	// ReverseJournalEntry posts the mirror of an existing entry and links it
	// back. An already-reversed entry is rejected.
	ReverseJournalEntry(ctx context.Context, req ReverseEntryRequest) (*ReversalResponse, error)

	// CreateInvoice stores a DRAFT sales invoice.
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*DocumentResponse, error)

	// UpdateInvoice replaces the content of a DRAFT or APPROVED invoice.
	UpdateInvoice(ctx context.Context, req UpdateInvoiceRequest) (*DocumentResponse, error)

	// ApproveInvoice moves a DRAFT invoice to APPROVED.
	ApproveInvoice(ctx context.Context, req DocumentRequest) (*DocumentResponse, error)

	// PostInvoice posts the invoice: assigns its number, issues stock at
	// weighted-average cost, and writes the revenue and COGS entry.
	PostInvoice(ctx context.Context, req PostDocumentRequest) (*DocumentResponse, error)

	// AdjustInvoice changes the financial content of a POSTED invoice by
	// posting the balanced net difference. Stock content must be unchanged.
	AdjustInvoice(ctx context.Context, req AdjustInvoiceRequest) (*DocumentResponse, error)

	// VoidInvoice reverses a posted, unsettled invoice including its stock issues.
	VoidInvoice(ctx context.Context, req VoidDocumentRequest) (*DocumentResponse, error)

	// DeleteInvoice removes an unposted invoice.
	DeleteInvoice(ctx context.Context, req DocumentRequest) (*DeleteResponse, error)

	// CreatePurchaseReceipt stores a DRAFT goods receipt.
	CreatePurchaseReceipt(ctx context.Context, req CreateReceiptRequest) (*DocumentResponse, error)

	// ApprovePurchaseReceipt moves a DRAFT receipt to APPROVED.
	ApprovePurchaseReceipt(ctx context.Context, req DocumentRequest) (*DocumentResponse, error)

	// PostPurchaseReceipt brings stock in at cost and accrues GRNI.
	PostPurchaseReceipt(ctx context.Context, req PostDocumentRequest) (*DocumentResponse, error)

	// VoidPurchaseReceipt reverses an unbilled receipt.
	VoidPurchaseReceipt(ctx context.Context, req VoidDocumentRequest) (*DocumentResponse, error)

	// DeletePurchaseReceipt removes an unposted receipt.
	DeletePurchaseReceipt(ctx context.Context, req DocumentRequest) (*DeleteResponse, error)

	// CreatePurchaseBill stores a DRAFT vendor bill, optionally linked to a
	// posted goods receipt.
	CreatePurchaseBill(ctx context.Context, req CreateBillRequest) (*DocumentResponse, error)

	// UpdatePurchaseBill replaces the content of a DRAFT or APPROVED bill.
	UpdatePurchaseBill(ctx context.Context, req UpdateBillRequest) (*DocumentResponse, error)

	// ApprovePurchaseBill moves a DRAFT bill to APPROVED.
	ApprovePurchaseBill(ctx context.Context, req DocumentRequest) (*DocumentResponse, error)

	// PostPurchaseBill posts the bill. Receipt-linked bills clear GRNI, book
	// the price variance to PPV, and capitalize service lines as landed cost.
	PostPurchaseBill(ctx context.Context, req PostDocumentRequest) (*DocumentResponse, error)

	// AdjustPurchaseBill changes the financial content of a POSTED bill by
	// posting the balanced net difference. Stock content must be unchanged.
	AdjustPurchaseBill(ctx context.Context, req AdjustBillRequest) (*DocumentResponse, error)

	// VoidPurchaseBill reverses a posted, unsettled bill.
	VoidPurchaseBill(ctx context.Context, req VoidDocumentRequest) (*DocumentResponse, error)

	// DeletePurchaseBill removes an unposted bill.
	DeletePurchaseBill(ctx context.Context, req DocumentRequest) (*DeleteResponse, error)

	// CreateVendorCredit stores a DRAFT vendor credit note.
	CreateVendorCredit(ctx context.Context, req CreateVendorCreditRequest) (*DocumentResponse, error)

	// ApproveVendorCredit moves a DRAFT credit to APPROVED.
	ApproveVendorCredit(ctx context.Context, req DocumentRequest) (*DocumentResponse, error)

	// PostVendorCredit posts the credit against the payable position.
	PostVendorCredit(ctx context.Context, req PostDocumentRequest) (*DocumentResponse, error)

	// VoidVendorCredit reverses an unapplied credit.
	VoidVendorCredit(ctx context.Context, req VoidDocumentRequest) (*DocumentResponse, error)

	// DeleteVendorCredit removes an unposted credit.
	DeleteVendorCredit(ctx context.Context, req DocumentRequest) (*DeleteResponse, error)

	// CreateCreditNote stores a DRAFT customer credit note.
	CreateCreditNote(ctx context.Context, req CreateCreditNoteRequest) (*DocumentResponse, error)

	// ApproveCreditNote moves a DRAFT note to APPROVED.
	ApproveCreditNote(ctx context.Context, req DocumentRequest) (*DocumentResponse, error)

	// PostCreditNote posts the note against the receivable position.
	PostCreditNote(ctx context.Context, req PostDocumentRequest) (*DocumentResponse, error)

	// VoidCreditNote reverses an unapplied note.
	VoidCreditNote(ctx context.Context, req VoidDocumentRequest) (*DocumentResponse, error)

	// DeleteCreditNote removes an unposted note.
	DeleteCreditNote(ctx context.Context, req DocumentRequest) (*DeleteResponse, error)

	// CreateAdvance stores a DRAFT customer or vendor advance.
	CreateAdvance(ctx context.Context, req CreateAdvanceRequest) (*DocumentResponse, error)

	// PostAdvance posts the advance through its bank account.
	PostAdvance(ctx context.Context, req PostAdvanceRequest) (*DocumentResponse, error)

	// VoidAdvance reverses an unapplied advance.
	VoidAdvance(ctx context.Context, req VoidAdvanceRequest) (*DocumentResponse, error)

	// RecordPayment settles an invoice or a bill through a banking account.
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (*SettlementResponse, error)

	// ApplyVendorCredit allocates a posted vendor credit against a bill.
	ApplyVendorCredit(ctx context.Context, req ApplyCreditRequest) (*SettlementResponse, error)

	// ApplyCreditNote allocates a posted credit note against an invoice.
	ApplyCreditNote(ctx context.Context, req ApplyCreditNoteRequest) (*SettlementResponse, error)

	// ApplyAdvance consumes a posted advance against an invoice or a bill.
	ApplyAdvance(ctx context.Context, req ApplyAdvanceRequest) (*SettlementResponse, error)

	// ClosePeriod posts the closing entry for a date window and seals it
	// against further postings.
	ClosePeriod(ctx context.Context, req ClosePeriodRequest) (*PeriodCloseResponse, error)

	// GetDocument returns one document with its lines.
	GetDocument(ctx context.Context, companyID, documentID int) (*DocumentView, error)

	// ListDocuments pages through a company's documents, newest first.
	ListDocuments(ctx context.Context, companyID int, kind, status string, limit, offset int) ([]*DocumentView, error)

	// GetJournalEntry returns one journal entry with its lines.
	GetJournalEntry(ctx context.Context, companyID, entryID int) (*EntryView, error)

	// GetAccountNets returns the per-account net (debit − credit) projection.
	GetAccountNets(ctx context.Context, companyID int) ([]core.AccountNet, error)
}
