package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounting-core/internal/app"
	"accounting-core/internal/apperr"
)

// stubService embeds the interface so only the methods a test exercises
// need real bodies.
type stubService struct {
	app.ApplicationService

	createInvoice      func(ctx context.Context, req app.CreateInvoiceRequest) (*app.DocumentResponse, error)
	recordPayment      func(ctx context.Context, req app.RecordPaymentRequest) (*app.SettlementResponse, error)
	postEntry          func(ctx context.Context, req app.PostEntryRequest) (*app.EntryResponse, error)
	reverseEntry       func(ctx context.Context, req app.ReverseEntryRequest) (*app.ReversalResponse, error)
	adjustPurchaseBill func(ctx context.Context, req app.AdjustBillRequest) (*app.DocumentResponse, error)
	applyCreditNote    func(ctx context.Context, req app.ApplyCreditNoteRequest) (*app.SettlementResponse, error)
}

func (s *stubService) CreateInvoice(ctx context.Context, req app.CreateInvoiceRequest) (*app.DocumentResponse, error) {
	return s.createInvoice(ctx, req)
}

func (s *stubService) RecordPayment(ctx context.Context, req app.RecordPaymentRequest) (*app.SettlementResponse, error) {
	return s.recordPayment(ctx, req)
}

func (s *stubService) PostJournalEntry(ctx context.Context, req app.PostEntryRequest) (*app.EntryResponse, error) {
	return s.postEntry(ctx, req)
}

func (s *stubService) ReverseJournalEntry(ctx context.Context, req app.ReverseEntryRequest) (*app.ReversalResponse, error) {
	return s.reverseEntry(ctx, req)
}

func (s *stubService) AdjustPurchaseBill(ctx context.Context, req app.AdjustBillRequest) (*app.DocumentResponse, error) {
	return s.adjustPurchaseBill(ctx, req)
}

func (s *stubService) ApplyCreditNote(ctx context.Context, req app.ApplyCreditNoteRequest) (*app.SettlementResponse, error) {
	return s.applyCreditNote(ctx, req)
}

func postJSON(t *testing.T, h http.Handler, path, body, idemKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestMissingIdempotencyKeyRejected(t *testing.T) {
	h := NewHandler(&stubService{}, "", nil)

	rec := postJSON(t, h, "/api/companies/1/invoices", `{"date":"2026-01-10","lines":[]}`, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperr.IdempotencyKeyMissing), decodeError(t, rec).Code)
}

func TestInvalidCompanyIDRejected(t *testing.T) {
	h := NewHandler(&stubService{}, "", nil)

	rec := postJSON(t, h, "/api/companies/zero/invoices", `{}`, "k1")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperr.InvalidInput), decodeError(t, rec).Code)
}

func TestMalformedBodyRejected(t *testing.T) {
	h := NewHandler(&stubService{}, "", nil)

	rec := postJSON(t, h, "/api/companies/1/invoices", `{"date":`, "k1")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateInvoicePassesCommand(t *testing.T) {
	var got app.CreateInvoiceRequest
	svc := &stubService{
		createInvoice: func(_ context.Context, req app.CreateInvoiceRequest) (*app.DocumentResponse, error) {
			got = req
			return &app.DocumentResponse{Document: &app.DocumentView{ID: 42, Kind: "INVOICE", Status: "DRAFT"}}, nil
		},
	}
	h := NewHandler(svc, "", nil)

	rec := postJSON(t, h, "/api/companies/7/invoices",
		`{"date":"2026-01-10","lines":[{"accountId":4,"quantity":"1","unitPrice":"100"}]}`, "key-123")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 7, got.CompanyID)
	assert.Equal(t, "key-123", got.IdempotencyKey)
	assert.NotEmpty(t, got.CorrelationID)

	var resp app.DocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 42, resp.Document.ID)
}

func TestPostJournalEntryRoute(t *testing.T) {
	var got app.PostEntryRequest
	svc := &stubService{
		postEntry: func(_ context.Context, req app.PostEntryRequest) (*app.EntryResponse, error) {
			got = req
			return &app.EntryResponse{Entry: &app.EntryView{ID: 17}}, nil
		},
	}
	h := NewHandler(svc, "", nil)

	rec := postJSON(t, h, "/api/companies/3/journal-entries",
		`{"date":"2026-02-01","description":"accrual","lines":[{"accountId":7,"debit":"50"},{"accountId":2,"credit":"50"}]}`, "je-1")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 3, got.CompanyID)
	assert.Equal(t, "je-1", got.IdempotencyKey)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, 7, got.Lines[0].AccountID)

	var resp app.EntryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 17, resp.Entry.ID)
}

func TestReverseJournalEntryRoute(t *testing.T) {
	var got app.ReverseEntryRequest
	svc := &stubService{
		reverseEntry: func(_ context.Context, req app.ReverseEntryRequest) (*app.ReversalResponse, error) {
			got = req
			return &app.ReversalResponse{OriginalID: req.EntryID, ReversalID: 18, Entry: &app.EntryView{ID: 18}}, nil
		},
	}
	h := NewHandler(svc, "", nil)

	rec := postJSON(t, h, "/api/companies/3/journal-entries/17/reverse",
		`{"date":"2026-02-02","reason":"posted to wrong account"}`, "je-2")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 17, got.EntryID)
	assert.Equal(t, "posted to wrong account", got.Reason)

	var resp app.ReversalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 17, resp.OriginalID)
	assert.Equal(t, 18, resp.ReversalID)
}

func TestAdjustBillRoute(t *testing.T) {
	var got app.AdjustBillRequest
	svc := &stubService{
		adjustPurchaseBill: func(_ context.Context, req app.AdjustBillRequest) (*app.DocumentResponse, error) {
			got = req
			return &app.DocumentResponse{Document: &app.DocumentView{ID: req.BillID, Kind: "PURCHASE_BILL", Status: "POSTED"}}, nil
		},
	}
	h := NewHandler(svc, "", nil)

	rec := postJSON(t, h, "/api/companies/2/purchase-bills/9/adjust",
		`{"date":"2026-03-05","lines":[{"accountId":7,"quantity":"1","unitPrice":"120"}]}`, "adj-1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, got.CompanyID)
	assert.Equal(t, 9, got.BillID)
	require.Len(t, got.Lines, 1)
}

func TestApplyCreditNoteRoute(t *testing.T) {
	var got app.ApplyCreditNoteRequest
	svc := &stubService{
		applyCreditNote: func(_ context.Context, req app.ApplyCreditNoteRequest) (*app.SettlementResponse, error) {
			got = req
			return &app.SettlementResponse{Settlement: &app.SettlementView{ID: 5, DocumentID: req.InvoiceID}}, nil
		},
	}
	h := NewHandler(svc, "", nil)

	rec := postJSON(t, h, "/api/companies/2/credit-note-applications",
		`{"invoiceId":4,"creditNoteId":6,"date":"2026-03-10","amount":"40"}`, "cn-1")

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 4, got.InvoiceID)
	assert.Equal(t, 6, got.CreditNoteID)
	assert.Equal(t, "40", got.Amount.String())
}

func TestErrorKindMapsToStatus(t *testing.T) {
	svc := &stubService{
		createInvoice: func(context.Context, app.CreateInvoiceRequest) (*app.DocumentResponse, error) {
			return nil, apperr.E(apperr.InvalidStateTransition, "cannot post a VOID document")
		},
		recordPayment: func(context.Context, app.RecordPaymentRequest) (*app.SettlementResponse, error) {
			return nil, apperr.E(apperr.Overpayment, "amount exceeds remaining")
		},
	}
	h := NewHandler(svc, "", nil)

	rec := postJSON(t, h, "/api/companies/1/invoices", `{"date":"2026-01-10"}`, "k1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(apperr.InvalidStateTransition), decodeError(t, rec).Code)

	rec = postJSON(t, h, "/api/companies/1/payments",
		`{"documentId":5,"date":"2026-01-10","amount":"10","bankAccountId":11}`, "k2")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(apperr.Overpayment), decodeError(t, rec).Code)
}

func TestUnclassifiedErrorHidesMessage(t *testing.T) {
	svc := &stubService{
		createInvoice: func(context.Context, app.CreateInvoiceRequest) (*app.DocumentResponse, error) {
			return nil, assert.AnError
		},
	}
	h := NewHandler(svc, "", nil)

	rec := postJSON(t, h, "/api/companies/1/invoices", `{"date":"2026-01-10"}`, "k1")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, string(apperr.Internal), resp.Code)
	assert.Equal(t, "internal server error", resp.Error)
}
