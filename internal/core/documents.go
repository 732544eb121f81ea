package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"accounting-core/internal/apperr"
)

const documentColumns = `
	id, company_id, kind, number, status, date, contact_id, location_id,
	currency, exchange_rate, description, total, amount_settled,
	linked_receipt_id, journal_entry_id, last_adjustment_journal_entry_id,
	void_journal_entry_id, voided_at, void_reason, created_by, created_at`

func scanDocument(row pgx.Row) (*DocumentHeader, error) {
	var d DocumentHeader
	err := row.Scan(
		&d.ID, &d.CompanyID, &d.Kind, &d.Number, &d.Status, &d.Date, &d.ContactID, &d.LocationID,
		&d.Currency, &d.ExchangeRate, &d.Description, &d.Total, &d.AmountSettled,
		&d.LinkedReceiptID, &d.JournalEntryID, &d.LastAdjustmentJournalEntryID,
		&d.VoidJournalEntryID, &d.VoidedAt, &d.VoidReason, &d.CreatedBy, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// lockDocumentTx loads a document header under FOR UPDATE and enforces
// tenant scope and kind. Every mutating document operation starts here.
func lockDocumentTx(ctx context.Context, tx pgx.Tx, companyID, documentID int, kind DocumentKind) (*DocumentHeader, error) {
	d, err := scanDocument(tx.QueryRow(ctx,
		"SELECT"+documentColumns+" FROM documents WHERE id = $1 FOR UPDATE", documentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "%s %d not found", kind, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock document %d: %w", documentID, err)
	}
	if d.CompanyID != companyID {
		return nil, apperr.E(apperr.TenantScopeViolation,
			"document %d does not belong to company %d", documentID, companyID)
	}
	if kind != "" && d.Kind != kind {
		return nil, apperr.E(apperr.NotFound, "%s %d not found", kind, documentID)
	}
	return d, nil
}

func loadDocumentLinesTx(ctx context.Context, tx pgx.Tx, documentID int) ([]DocumentLine, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, company_id, document_id, item_id, account_id, description,
		       quantity, unit_price, discount_amount, tax_rate, tax_amount, line_total
		FROM document_lines
		WHERE document_id = $1
		ORDER BY id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines for document %d: %w", documentID, err)
	}
	defer rows.Close()

	var lines []DocumentLine
	for rows.Next() {
		var l DocumentLine
		if err := rows.Scan(&l.ID, &l.CompanyID, &l.DocumentID, &l.ItemID, &l.AccountID, &l.Description,
			&l.Quantity, &l.UnitPrice, &l.DiscountAmount, &l.TaxRate, &l.TaxAmount, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan document line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// insertDocumentTx persists a DRAFT header with its lines.
func insertDocumentTx(ctx context.Context, tx pgx.Tx, d *DocumentHeader) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO documents
			(company_id, kind, status, date, contact_id, location_id, currency,
			 exchange_rate, description, total, amount_settled, linked_receipt_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $12, NOW())
		RETURNING id, created_at
	`, d.CompanyID, d.Kind, d.Status, d.Date, d.ContactID, d.LocationID, d.Currency,
		d.ExchangeRate, d.Description, d.Total, d.LinkedReceiptID, d.CreatedBy).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", d.Kind, err)
	}
	return insertDocumentLinesTx(ctx, tx, d)
}

func insertDocumentLinesTx(ctx context.Context, tx pgx.Tx, d *DocumentHeader) error {
	for i := range d.Lines {
		line := &d.Lines[i]
		line.CompanyID = d.CompanyID
		line.DocumentID = d.ID
		err := tx.QueryRow(ctx, `
			INSERT INTO document_lines
				(company_id, document_id, item_id, account_id, description,
				 quantity, unit_price, discount_amount, tax_rate, tax_amount, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id
		`, line.CompanyID, line.DocumentID, line.ItemID, line.AccountID, line.Description,
			line.Quantity, line.UnitPrice, line.DiscountAmount, line.TaxRate, line.TaxAmount, line.LineTotal).Scan(&line.ID)
		if err != nil {
			return fmt.Errorf("failed to insert document line: %w", err)
		}
	}
	return nil
}

// replaceDocumentLinesTx rewrites the content of an editable document.
func replaceDocumentLinesTx(ctx context.Context, tx pgx.Tx, d *DocumentHeader) error {
	if _, err := tx.Exec(ctx, "DELETE FROM document_lines WHERE document_id = $1", d.ID); err != nil {
		return fmt.Errorf("failed to clear lines of document %d: %w", d.ID, err)
	}
	return insertDocumentLinesTx(ctx, tx, d)
}

// GetDocument loads a document with its lines outside any transaction.
func GetDocument(ctx context.Context, pool *pgxpool.Pool, companyID, documentID int) (*DocumentHeader, error) {
	d, err := scanDocument(pool.QueryRow(ctx,
		"SELECT"+documentColumns+" FROM documents WHERE id = $1 AND company_id = $2",
		documentID, companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "document %d not found", documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %d: %w", documentID, err)
	}

	rows, err := pool.Query(ctx, `
		SELECT id, company_id, document_id, item_id, account_id, description,
		       quantity, unit_price, discount_amount, tax_rate, tax_amount, line_total
		FROM document_lines
		WHERE document_id = $1
		ORDER BY id
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines for document %d: %w", documentID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var l DocumentLine
		if err := rows.Scan(&l.ID, &l.CompanyID, &l.DocumentID, &l.ItemID, &l.AccountID, &l.Description,
			&l.Quantity, &l.UnitPrice, &l.DiscountAmount, &l.TaxRate, &l.TaxAmount, &l.LineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan document line: %w", err)
		}
		d.Lines = append(d.Lines, l)
	}
	return d, rows.Err()
}

// ListDocuments pages through a company's documents, newest first. Kind and
// status filters are optional.
func ListDocuments(ctx context.Context, pool *pgxpool.Pool, companyID int, kind DocumentKind, status DocumentStatus, limit, offset int) ([]*DocumentHeader, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := pool.Query(ctx, `
		SELECT`+documentColumns+`
		FROM documents
		WHERE company_id = $1
		  AND ($2 = '' OR kind = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY date DESC, id DESC
		LIMIT $4 OFFSET $5
	`, companyID, string(kind), string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*DocumentHeader
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetItemTx loads an item with tenant scoping.
func GetItemTx(ctx context.Context, tx pgx.Tx, companyID, itemID int) (*Item, error) {
	var it Item
	err := tx.QueryRow(ctx, `
		SELECT id, company_id, code, name, is_inventory_tracked, is_active
		FROM items
		WHERE id = $1
	`, itemID).Scan(&it.ID, &it.CompanyID, &it.Code, &it.Name, &it.IsInventoryTracked, &it.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "item %d not found", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item %d: %w", itemID, err)
	}
	if it.CompanyID != companyID {
		return nil, apperr.E(apperr.TenantScopeViolation, "item %d does not belong to company %d", itemID, companyID)
	}
	return &it, nil
}
