package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"accounting-core/internal/app"
	"accounting-core/internal/apperr"
)

// Handler exposes the application service over HTTP. Every mutating route
// requires an Idempotency-Key header; retries with the same key and payload
// replay the stored response.
type Handler struct {
	svc app.ApplicationService
	log *zap.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{svc: svc, log: log}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))
	r.Use(RequestBodyLimit(1 << 20))

	r.Get("/api/health", h.health)

	r.Route("/api/companies/{companyID}", func(r chi.Router) {
		r.Route("/journal-entries", func(r chi.Router) {
			r.Post("/", h.postJournalEntry)
			r.Post("/{id}/reverse", h.reverseJournalEntry)
			r.Get("/{id}", h.getJournalEntry)
		})

		r.Route("/invoices", func(r chi.Router) {
			r.Post("/", h.createInvoice)
			r.Put("/{id}", h.updateInvoice)
			r.Post("/{id}/approve", h.approveInvoice)
			r.Post("/{id}/post", h.postInvoice)
			r.Post("/{id}/adjust", h.adjustInvoice)
			r.Post("/{id}/void", h.voidInvoice)
			r.Delete("/{id}", h.deleteInvoice)
		})

		r.Route("/purchase-receipts", func(r chi.Router) {
			r.Post("/", h.createReceipt)
			r.Post("/{id}/approve", h.approveReceipt)
			r.Post("/{id}/post", h.postReceipt)
			r.Post("/{id}/void", h.voidReceipt)
			r.Delete("/{id}", h.deleteReceipt)
		})

		r.Route("/purchase-bills", func(r chi.Router) {
			r.Post("/", h.createBill)
			r.Put("/{id}", h.updateBill)
			r.Post("/{id}/approve", h.approveBill)
			r.Post("/{id}/post", h.postBill)
			r.Post("/{id}/adjust", h.adjustBill)
			r.Post("/{id}/void", h.voidBill)
			r.Delete("/{id}", h.deleteBill)
		})

		r.Route("/vendor-credits", func(r chi.Router) {
			r.Post("/", h.createVendorCredit)
			r.Post("/{id}/approve", h.approveVendorCredit)
			r.Post("/{id}/post", h.postVendorCredit)
			r.Post("/{id}/void", h.voidVendorCredit)
			r.Delete("/{id}", h.deleteVendorCredit)
		})

		r.Route("/credit-notes", func(r chi.Router) {
			r.Post("/", h.createCreditNote)
			r.Post("/{id}/approve", h.approveCreditNote)
			r.Post("/{id}/post", h.postCreditNote)
			r.Post("/{id}/void", h.voidCreditNote)
			r.Delete("/{id}", h.deleteCreditNote)
		})

		r.Route("/advances", func(r chi.Router) {
			r.Post("/", h.createAdvance)
			r.Post("/{id}/post", h.postAdvance)
			r.Post("/{id}/void", h.voidAdvance)
		})

		r.Post("/payments", h.recordPayment)
		r.Post("/credit-applications", h.applyVendorCredit)
		r.Post("/credit-note-applications", h.applyCreditNote)
		r.Post("/advance-applications", h.applyAdvance)
		r.Post("/period-closes", h.closePeriod)

		r.Get("/documents", h.listDocuments)
		r.Get("/documents/{id}", h.getDocument)
		r.Get("/account-nets", h.getAccountNets)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeCommand decodes the body into v and fills the embedded Command from
// the URL and headers. An empty body is accepted for routes whose payload is
// entirely in the URL. Returns false after writing the error response.
func (h *Handler) decodeCommand(w http.ResponseWriter, r *http.Request, v any, cmd *app.Command) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "request-too-large", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), string(apperr.InvalidInput), http.StatusBadRequest)
		return false
	}

	companyID, ok := urlInt(w, r, "companyID")
	if !ok {
		return false
	}
	cmd.CompanyID = companyID

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		writeAppError(w, r, apperr.E(apperr.IdempotencyKeyMissing, "Idempotency-Key header is required"))
		return false
	}
	cmd.IdempotencyKey = key

	cmd.CorrelationID = r.Header.Get("X-Correlation-ID")
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = requestIDFromContext(r.Context())
	}
	return true
}

func urlInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v <= 0 {
		writeAppError(w, r, apperr.E(apperr.InvalidInput, "invalid %s", name))
		return 0, false
	}
	return v, true
}

// respond writes the command result, or the mapped error.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, v any, err error, status int) {
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

func (h *Handler) postJournalEntry(w http.ResponseWriter, r *http.Request) {
	var req app.PostEntryRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	resp, err := h.svc.PostJournalEntry(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

func (h *Handler) reverseJournalEntry(w http.ResponseWriter, r *http.Request) {
	var req app.ReverseEntryRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	req.EntryID = id
	resp, err := h.svc.ReverseJournalEntry(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req app.CreateInvoiceRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	resp, err := h.svc.CreateInvoice(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

func (h *Handler) updateInvoice(w http.ResponseWriter, r *http.Request) {
	var req app.UpdateInvoiceRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	req.InvoiceID = id
	resp, err := h.svc.UpdateInvoice(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusOK)
}

func (h *Handler) approveInvoice(w http.ResponseWriter, r *http.Request) {
	h.documentAction(w, r, h.svc.ApproveInvoice)
}

func (h *Handler) postInvoice(w http.ResponseWriter, r *http.Request) {
	h.postAction(w, r, h.svc.PostInvoice)
}

func (h *Handler) adjustInvoice(w http.ResponseWriter, r *http.Request) {
	var req app.AdjustInvoiceRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	req.InvoiceID = id
	resp, err := h.svc.AdjustInvoice(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusOK)
}

func (h *Handler) voidInvoice(w http.ResponseWriter, r *http.Request) {
	h.voidAction(w, r, h.svc.VoidInvoice)
}

func (h *Handler) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	h.deleteAction(w, r, h.svc.DeleteInvoice)
}

func (h *Handler) createReceipt(w http.ResponseWriter, r *http.Request) {
	var req app.CreateReceiptRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	resp, err := h.svc.CreatePurchaseReceipt(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

func (h *Handler) approveReceipt(w http.ResponseWriter, r *http.Request) {
	h.documentAction(w, r, h.svc.ApprovePurchaseReceipt)
}

func (h *Handler) postReceipt(w http.ResponseWriter, r *http.Request) {
	h.postAction(w, r, h.svc.PostPurchaseReceipt)
}

func (h *Handler) voidReceipt(w http.ResponseWriter, r *http.Request) {
	h.voidAction(w, r, h.svc.VoidPurchaseReceipt)
}

func (h *Handler) deleteReceipt(w http.ResponseWriter, r *http.Request) {
	h.deleteAction(w, r, h.svc.DeletePurchaseReceipt)
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	var req app.CreateBillRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	resp, err := h.svc.CreatePurchaseBill(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

func (h *Handler) updateBill(w http.ResponseWriter, r *http.Request) {
	var req app.UpdateBillRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	req.BillID = id
	resp, err := h.svc.UpdatePurchaseBill(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusOK)
}

func (h *Handler) approveBill(w http.ResponseWriter, r *http.Request) {
	h.documentAction(w, r, h.svc.ApprovePurchaseBill)
}

func (h *Handler) postBill(w http.ResponseWriter, r *http.Request) {
	h.postAction(w, r, h.svc.PostPurchaseBill)
}

func (h *Handler) adjustBill(w http.ResponseWriter, r *http.Request) {
	var req app.AdjustBillRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	req.BillID = id
	resp, err := h.svc.AdjustPurchaseBill(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusOK)
}

func (h *Handler) voidBill(w http.ResponseWriter, r *http.Request) {
	h.voidAction(w, r, h.svc.VoidPurchaseBill)
}

func (h *Handler) deleteBill(w http.ResponseWriter, r *http.Request) {
	h.deleteAction(w, r, h.svc.DeletePurchaseBill)
}

func (h *Handler) createVendorCredit(w http.ResponseWriter, r *http.Request) {
	var req app.CreateVendorCreditRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	resp, err := h.svc.CreateVendorCredit(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

func (h *Handler) approveVendorCredit(w http.ResponseWriter, r *http.Request) {
	h.documentAction(w, r, h.svc.ApproveVendorCredit)
}

func (h *Handler) postVendorCredit(w http.ResponseWriter, r *http.Request) {
	h.postAction(w, r, h.svc.PostVendorCredit)
}

func (h *Handler) voidVendorCredit(w http.ResponseWriter, r *http.Request) {
	h.voidAction(w, r, h.svc.VoidVendorCredit)
}

func (h *Handler) deleteVendorCredit(w http.ResponseWriter, r *http.Request) {
	h.deleteAction(w, r, h.svc.DeleteVendorCredit)
}

func (h *Handler) createCreditNote(w http.ResponseWriter, r *http.Request) {
	var req app.CreateCreditNoteRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	resp, err := h.svc.CreateCreditNote(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

func (h *Handler) approveCreditNote(w http.ResponseWriter, r *http.Request) {
	h.documentAction(w, r, h.svc.ApproveCreditNote)
}

func (h *Handler) postCreditNote(w http.ResponseWriter, r *http.Request) {
	h.postAction(w, r, h.svc.PostCreditNote)
}

func (h *Handler) voidCreditNote(w http.ResponseWriter, r *http.Request) {
	h.voidAction(w, r, h.svc.VoidCreditNote)
}

func (h *Handler) deleteCreditNote(w http.ResponseWriter, r *http.Request) {
	h.deleteAction(w, r, h.svc.DeleteCreditNote)
}

func (h *Handler) createAdvance(w http.ResponseWriter, r *http.Request) {
	var req app.CreateAdvanceRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	resp, err := h.svc.CreateAdvance(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

func (h *Handler) postAdvance(w http.ResponseWriter, r *http.Request) {
	var req app.PostAdvanceRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	req.AdvanceID = id
	resp, err := h.svc.PostAdvance(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusOK)
}

func (h *Handler) voidAdvance(w http.ResponseWriter, r *http.Request) {
	var req app.VoidAdvanceRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	req.AdvanceID = id
	resp, err := h.svc.VoidAdvance(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusOK)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req app.RecordPaymentRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	resp, err := h.svc.RecordPayment(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

func (h *Handler) applyVendorCredit(w http.ResponseWriter, r *http.Request) {
	var req app.ApplyCreditRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	resp, err := h.svc.ApplyVendorCredit(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

func (h *Handler) applyCreditNote(w http.ResponseWriter, r *http.Request) {
	var req app.ApplyCreditNoteRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	resp, err := h.svc.ApplyCreditNote(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

func (h *Handler) applyAdvance(w http.ResponseWriter, r *http.Request) {
	var req app.ApplyAdvanceRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	resp, err := h.svc.ApplyAdvance(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	var req app.ClosePeriodRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	resp, err := h.svc.ClosePeriod(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusCreated)
}

// documentAction handles the approve shape: document id in the URL, no body
// beyond the command metadata.
func (h *Handler) documentAction(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, req app.DocumentRequest) (*app.DocumentResponse, error)) {

	var req app.DocumentRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	req.DocumentID = id
	resp, err := fn(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusOK)
}

func (h *Handler) postAction(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, req app.PostDocumentRequest) (*app.DocumentResponse, error)) {

	var req app.PostDocumentRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	req.DocumentID = id
	resp, err := fn(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusOK)
}

func (h *Handler) voidAction(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, req app.VoidDocumentRequest) (*app.DocumentResponse, error)) {

	var req app.VoidDocumentRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	req.DocumentID = id
	resp, err := fn(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusOK)
}

func (h *Handler) deleteAction(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, req app.DocumentRequest) (*app.DeleteResponse, error)) {

	var req app.DocumentRequest
	if !h.decodeCommand(w, r, &req, &req.Command) {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	req.DocumentID = id
	resp, err := fn(r.Context(), req)
	h.respond(w, r, resp, err, http.StatusOK)
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	companyID, ok := urlInt(w, r, "companyID")
	if !ok {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), companyID, id)
	h.respond(w, r, doc, err, http.StatusOK)
}

func (h *Handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	companyID, ok := urlInt(w, r, "companyID")
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	docs, err := h.svc.ListDocuments(r.Context(), companyID, q.Get("kind"), q.Get("status"), limit, offset)
	h.respond(w, r, map[string]any{"documents": docs}, err, http.StatusOK)
}

func (h *Handler) getJournalEntry(w http.ResponseWriter, r *http.Request) {
	companyID, ok := urlInt(w, r, "companyID")
	if !ok {
		return
	}
	id, ok := urlInt(w, r, "id")
	if !ok {
		return
	}
	entry, err := h.svc.GetJournalEntry(r.Context(), companyID, id)
	h.respond(w, r, entry, err, http.StatusOK)
}

func (h *Handler) getAccountNets(w http.ResponseWriter, r *http.Request) {
	companyID, ok := urlInt(w, r, "companyID")
	if !ok {
		return
	}
	nets, err := h.svc.GetAccountNets(r.Context(), companyID)
	h.respond(w, r, map[string]any{"accounts": nets}, err, http.StatusOK)
}
