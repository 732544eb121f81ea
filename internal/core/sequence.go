package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"accounting-core/internal/apperr"
)

// DocumentKind tags the variant of a document row.
type DocumentKind string

const (
	KindInvoice         DocumentKind = "INVOICE"
	KindPurchaseBill    DocumentKind = "PURCHASE_BILL"
	KindVendorCredit    DocumentKind = "VENDOR_CREDIT"
	KindCreditNote      DocumentKind = "CREDIT_NOTE"
	KindCustomerAdvance DocumentKind = "CUSTOMER_ADVANCE"
	KindVendorAdvance   DocumentKind = "VENDOR_ADVANCE"
	KindPurchaseReceipt DocumentKind = "PURCHASE_RECEIPT"
)

var sequencePrefix = map[DocumentKind]string{
	KindInvoice:         "INV",
	KindPurchaseBill:    "PBILL",
	KindVendorCredit:    "VC",
	KindCreditNote:      "CN",
	KindCustomerAdvance: "CADV",
	KindVendorAdvance:   "VADV",
	KindPurchaseReceipt: "PRCT",
}

// NextDocumentNumberTx allocates the next human-readable number for a
// document kind. The upsert takes the counter row lock, so concurrent
// allocations serialize and never produce a duplicate. The number is final
// once allocated; a rolled-back transaction may therefore leave a gap.
func NextDocumentNumberTx(ctx context.Context, tx pgx.Tx, companyID int, kind DocumentKind) (string, error) {
	prefix, ok := sequencePrefix[kind]
	if !ok {
		return "", apperr.E(apperr.InvalidInput, "unknown document kind %q", kind)
	}

	var lastNumber int64
	err := tx.QueryRow(ctx, `
		INSERT INTO document_sequences (company_id, kind, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (company_id, kind)
		DO UPDATE SET last_number = document_sequences.last_number + 1
		RETURNING last_number
	`, companyID, kind).Scan(&lastNumber)
	if err != nil {
		return "", fmt.Errorf("failed to allocate %s sequence number: %w", kind, err)
	}

	return fmt.Sprintf("%s-%07d", prefix, lastNumber), nil
}
