package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"accounting-core/internal/apperr"
	"accounting-core/internal/core"
	"accounting-core/internal/dates"
	"accounting-core/internal/dlock"
	"accounting-core/internal/idem"
	"accounting-core/internal/outbox"
)

type appService struct {
	pool        *pgxpool.Pool
	ledger      *core.Ledger
	inventory   *core.InventoryService
	invoices    *core.InvoiceService
	receipts    *core.PurchaseReceiptService
	bills       *core.PurchaseBillService
	credits     *core.VendorCreditService
	creditNotes *core.CreditNoteService
	advances    *core.AdvanceService
	settlements *core.SettlementService
	periods     *core.PeriodService
	runner      *idem.Runner
	locks       *dlock.Service
	publisher   *outbox.Publisher
	lockTTL     time.Duration
	maxRetries  int
	log         *zap.Logger
}

// NewAppService wires the domain services behind ApplicationService. The
// lock service and publisher may be built on a nil Redis client; both
// degrade to no-ops and the database remains the source of correctness.
func NewAppService(pool *pgxpool.Pool, locks *dlock.Service, publisher *outbox.Publisher,
	lockTTL time.Duration, maxRetries int, log *zap.Logger) ApplicationService {

	if log == nil {
		log = zap.NewNop()
	}
	ledger := core.NewLedger(pool)
	inventory := core.NewInventoryService(pool)
	return &appService{
		pool:        pool,
		ledger:      ledger,
		inventory:   inventory,
		invoices:    core.NewInvoiceService(pool, ledger, inventory),
		receipts:    core.NewPurchaseReceiptService(pool, ledger, inventory),
		bills:       core.NewPurchaseBillService(pool, ledger, inventory),
		credits:     core.NewVendorCreditService(pool, ledger),
		creditNotes: core.NewCreditNoteService(pool, ledger),
		advances:    core.NewAdvanceService(pool, ledger),
		settlements: core.NewSettlementService(pool, ledger),
		periods:     core.NewPeriodService(ledger),
		runner:      idem.NewRunner(pool),
		locks:       locks,
		publisher:   publisher,
		lockTTL:     lockTTL,
		maxRetries:  maxRetries,
		log:         log,
	}
}

// runCommand is the shared command pipeline: best-effort distributed locks
// around an idempotent transactional run, transient errors retried with
// exponential backoff, and the fast-path publish after a fresh commit.
func runCommand[T any](ctx context.Context, s *appService, cmd Command, req any,
	lockKeys []string, fn func(tx pgx.Tx) (T, []outbox.Event, error)) (T, bool, error) {

	var zero T
	fingerprint := idem.Fingerprint(req)

	var outcome *idem.Outcome
	operation := func() error {
		var runErr error
		err := s.locks.WithLocks(ctx, lockKeys, s.lockTTL, func() error {
			outcome, runErr = s.runner.Run(ctx, cmd.CompanyID, cmd.IdempotencyKey, fingerprint,
				func(tx pgx.Tx) (any, []outbox.Event, error) {
					return fn(tx)
				})
			return runErr
		})
		if err != nil && !apperr.Transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.maxRetries)), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return zero, false, err
	}

	var v T
	if err := json.Unmarshal(outcome.Response, &v); err != nil {
		return zero, false, fmt.Errorf("failed to decode stored command response: %w", err)
	}
	if !outcome.Replayed && len(outcome.Events) > 0 && s.publisher != nil {
		s.publisher.PublishFastPath(ctx, outcome.Events)
	}
	return v, outcome.Replayed, nil
}

func documentLock(companyID, documentID int) string {
	return fmt.Sprintf("lock:company:%d:document:%d", companyID, documentID)
}

func companyLock(companyID int, scope string) string {
	return fmt.Sprintf("lock:company:%d:%s", companyID, scope)
}

func entryLock(companyID, entryID int) string {
	return fmt.Sprintf("lock:company:%d:entry:%d", companyID, entryID)
}

func toLineSpecs(lines []LineRequest) []core.LineInputSpec {
	specs := make([]core.LineInputSpec, len(lines))
	for i, l := range lines {
		specs[i] = core.LineInputSpec{
			ItemID:         l.ItemID,
			AccountID:      l.AccountID,
			Description:    l.Description,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			DiscountAmount: l.DiscountAmount,
			TaxRate:        l.TaxRate,
		}
	}
	return specs
}

func parseRequired(date, field string) (time.Time, error) {
	if date == "" {
		return time.Time{}, apperr.E(apperr.InvalidInput, "%s is required", field)
	}
	return dates.ParseCivil(date)
}

func parseOptional(date string) (time.Time, error) {
	if date == "" {
		return time.Time{}, nil
	}
	return dates.ParseCivil(date)
}

func (s *appService) PostJournalEntry(ctx context.Context, req PostEntryRequest) (*EntryResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	resp, replayed, err := runCommand(ctx, s, req.Command, req, nil,
		func(tx pgx.Tx) (*EntryResponse, []outbox.Event, error) {
			lines := make([]core.LineInput, len(req.Lines))
			for i, l := range req.Lines {
				lines[i] = core.LineInput{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit}
			}
			entry, err := s.ledger.PostJournalEntryTx(ctx, tx, core.PostEntryInput{
				CompanyID:   req.CompanyID,
				Date:        date,
				Description: req.Description,
				Lines:       lines,
				CreatedBy:   req.ActorID,
			})
			if err != nil {
				return nil, nil, err
			}
			event, err := outbox.New(req.CompanyID, outbox.EventJournalEntryCreated, "JournalEntry",
				fmt.Sprintf("%d", entry.ID), req.CorrelationID, map[string]any{
					"journalEntryId": entry.ID,
					"date":           req.Date,
				})
			if err != nil {
				return nil, nil, err
			}
			return &EntryResponse{Entry: NewEntryView(entry)}, []outbox.Event{event}, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

func (s *appService) ReverseJournalEntry(ctx context.Context, req ReverseEntryRequest) (*ReversalResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	locks := []string{entryLock(req.CompanyID, req.EntryID)}
	resp, replayed, err := runCommand(ctx, s, req.Command, req, locks,
		func(tx pgx.Tx) (*ReversalResponse, []outbox.Event, error) {
			reversal, err := s.ledger.CreateReversalTx(ctx, tx, core.ReversalInput{
				CompanyID:  req.CompanyID,
				OriginalID: req.EntryID,
				Date:       date,
				Reason:     req.Reason,
				CreatedBy:  req.ActorID,
			})
			if err != nil {
				return nil, nil, err
			}
			event, err := outbox.New(req.CompanyID, outbox.EventJournalEntryReversed, "JournalEntry",
				fmt.Sprintf("%d", reversal.ID), req.CorrelationID, map[string]any{
					"journalEntryId": reversal.ID,
					"reversalOf":     req.EntryID,
				})
			if err != nil {
				return nil, nil, err
			}
			return &ReversalResponse{
				OriginalID: req.EntryID,
				ReversalID: reversal.ID,
				Entry:      NewEntryView(reversal),
			}, []outbox.Event{event}, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

func (s *appService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	resp, replayed, err := runCommand(ctx, s, req.Command, req, nil,
		func(tx pgx.Tx) (*DocumentResponse, []outbox.Event, error) {
			res, err := s.invoices.CreateTx(ctx, tx, core.InvoiceInput{
				CompanyID:     req.CompanyID,
				Date:          date,
				CustomerID:    req.CustomerID,
				LocationID:    req.LocationID,
				Currency:      req.Currency,
				ExchangeRate:  req.ExchangeRate,
				Description:   req.Description,
				Lines:         toLineSpecs(req.Lines),
				CorrelationID: req.CorrelationID,
				CreatedBy:     req.ActorID,
			})
			if err != nil {
				return nil, nil, err
			}
			return &DocumentResponse{Document: NewDocumentView(res.Document)}, res.Events, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

func (s *appService) UpdateInvoice(ctx context.Context, req UpdateInvoiceRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	locks := []string{documentLock(req.CompanyID, req.InvoiceID)}
	resp, replayed, err := runCommand(ctx, s, req.Command, req, locks,
		func(tx pgx.Tx) (*DocumentResponse, []outbox.Event, error) {
			res, err := s.invoices.UpdateTx(ctx, tx, req.CompanyID, req.InvoiceID, core.InvoiceInput{
				CompanyID:    req.CompanyID,
				Date:         date,
				CustomerID:   req.CustomerID,
				LocationID:   req.LocationID,
				Currency:     req.Currency,
				ExchangeRate: req.ExchangeRate,
				Description:  req.Description,
				Lines:        toLineSpecs(req.Lines),
				CreatedBy:    req.ActorID,
			})
			if err != nil {
				return nil, nil, err
			}
			return &DocumentResponse{Document: NewDocumentView(res.Document)}, res.Events, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

// documentCommand handles the approve/post/void/delete shapes shared by all
// document kinds.
func (s *appService) documentCommand(ctx context.Context, cmd Command, req any, documentID int,
	fn func(tx pgx.Tx) (*core.DocumentResult, error)) (*DocumentResponse, error) {

	locks := []string{documentLock(cmd.CompanyID, documentID)}
	resp, replayed, err := runCommand(ctx, s, cmd, req, locks,
		func(tx pgx.Tx) (*DocumentResponse, []outbox.Event, error) {
			res, err := fn(tx)
			if err != nil {
				return nil, nil, err
			}
			return &DocumentResponse{
				Document: NewDocumentView(res.Document),
				Entry:    NewEntryView(res.Entry),
			}, res.Events, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

func (s *appService) deleteCommand(ctx context.Context, cmd Command, req any, documentID int,
	fn func(tx pgx.Tx) error) (*DeleteResponse, error) {

	locks := []string{documentLock(cmd.CompanyID, documentID)}
	resp, replayed, err := runCommand(ctx, s, cmd, req, locks,
		func(tx pgx.Tx) (*DeleteResponse, []outbox.Event, error) {
			if err := fn(tx); err != nil {
				return nil, nil, err
			}
			return &DeleteResponse{DocumentID: documentID, Deleted: true}, nil, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

func (s *appService) ApproveInvoice(ctx context.Context, req DocumentRequest) (*DocumentResponse, error) {
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.invoices.ApproveTx(ctx, tx, req.CompanyID, req.DocumentID)
	})
}

func (s *appService) PostInvoice(ctx context.Context, req PostDocumentRequest) (*DocumentResponse, error) {
	date, err := parseOptional(req.Date)
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.invoices.PostTx(ctx, tx, req.CompanyID, req.DocumentID, date, req.CorrelationID, req.ActorID)
	})
}

func (s *appService) AdjustInvoice(ctx context.Context, req AdjustInvoiceRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.InvoiceID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.invoices.AdjustTx(ctx, tx, req.CompanyID, req.InvoiceID, date, toLineSpecs(req.Lines), req.CorrelationID, req.ActorID)
	})
}

func (s *appService) VoidInvoice(ctx context.Context, req VoidDocumentRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.invoices.VoidTx(ctx, tx, req.CompanyID, req.DocumentID, date, req.Reason, req.CorrelationID, req.ActorID)
	})
}

func (s *appService) DeleteInvoice(ctx context.Context, req DocumentRequest) (*DeleteResponse, error) {
	return s.deleteCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) error {
		return s.invoices.DeleteTx(ctx, tx, req.CompanyID, req.DocumentID)
	})
}

func (s *appService) CreatePurchaseReceipt(ctx context.Context, req CreateReceiptRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	resp, replayed, err := runCommand(ctx, s, req.Command, req, nil,
		func(tx pgx.Tx) (*DocumentResponse, []outbox.Event, error) {
			res, err := s.receipts.CreateTx(ctx, tx, core.PurchaseReceiptInput{
				CompanyID:     req.CompanyID,
				Date:          date,
				VendorID:      req.VendorID,
				LocationID:    req.LocationID,
				Description:   req.Description,
				Lines:         toLineSpecs(req.Lines),
				CorrelationID: req.CorrelationID,
				CreatedBy:     req.ActorID,
			})
			if err != nil {
				return nil, nil, err
			}
			return &DocumentResponse{Document: NewDocumentView(res.Document)}, res.Events, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

func (s *appService) ApprovePurchaseReceipt(ctx context.Context, req DocumentRequest) (*DocumentResponse, error) {
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.receipts.ApproveTx(ctx, tx, req.CompanyID, req.DocumentID)
	})
}

func (s *appService) PostPurchaseReceipt(ctx context.Context, req PostDocumentRequest) (*DocumentResponse, error) {
	date, err := parseOptional(req.Date)
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.receipts.PostTx(ctx, tx, req.CompanyID, req.DocumentID, date, req.CorrelationID, req.ActorID)
	})
}

func (s *appService) VoidPurchaseReceipt(ctx context.Context, req VoidDocumentRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.receipts.VoidTx(ctx, tx, req.CompanyID, req.DocumentID, date, req.Reason, req.CorrelationID, req.ActorID)
	})
}

func (s *appService) DeletePurchaseReceipt(ctx context.Context, req DocumentRequest) (*DeleteResponse, error) {
	return s.deleteCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) error {
		return s.receipts.DeleteTx(ctx, tx, req.CompanyID, req.DocumentID)
	})
}

func (s *appService) CreatePurchaseBill(ctx context.Context, req CreateBillRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	var locks []string
	if req.LinkedReceiptID != nil {
		locks = append(locks, documentLock(req.CompanyID, *req.LinkedReceiptID))
	}
	resp, replayed, err := runCommand(ctx, s, req.Command, req, locks,
		func(tx pgx.Tx) (*DocumentResponse, []outbox.Event, error) {
			res, err := s.bills.CreateTx(ctx, tx, core.PurchaseBillInput{
				CompanyID:       req.CompanyID,
				Date:            date,
				VendorID:        req.VendorID,
				LocationID:      req.LocationID,
				Currency:        req.Currency,
				ExchangeRate:    req.ExchangeRate,
				Description:     req.Description,
				Lines:           toLineSpecs(req.Lines),
				LinkedReceiptID: req.LinkedReceiptID,
				CorrelationID:   req.CorrelationID,
				CreatedBy:       req.ActorID,
			})
			if err != nil {
				return nil, nil, err
			}
			return &DocumentResponse{Document: NewDocumentView(res.Document)}, res.Events, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

func (s *appService) UpdatePurchaseBill(ctx context.Context, req UpdateBillRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.BillID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.bills.UpdateTx(ctx, tx, req.CompanyID, req.BillID, core.PurchaseBillInput{
			CompanyID:    req.CompanyID,
			Date:         date,
			VendorID:     req.VendorID,
			LocationID:   req.LocationID,
			Currency:     req.Currency,
			ExchangeRate: req.ExchangeRate,
			Description:  req.Description,
			Lines:        toLineSpecs(req.Lines),
			CreatedBy:    req.ActorID,
		})
	})
}

func (s *appService) ApprovePurchaseBill(ctx context.Context, req DocumentRequest) (*DocumentResponse, error) {
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.bills.ApproveTx(ctx, tx, req.CompanyID, req.DocumentID)
	})
}

func (s *appService) PostPurchaseBill(ctx context.Context, req PostDocumentRequest) (*DocumentResponse, error) {
	date, err := parseOptional(req.Date)
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.bills.PostTx(ctx, tx, req.CompanyID, req.DocumentID, date, req.CorrelationID, req.ActorID)
	})
}

func (s *appService) AdjustPurchaseBill(ctx context.Context, req AdjustBillRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.BillID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.bills.AdjustTx(ctx, tx, req.CompanyID, req.BillID, date, toLineSpecs(req.Lines), req.CorrelationID, req.ActorID)
	})
}

func (s *appService) VoidPurchaseBill(ctx context.Context, req VoidDocumentRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.bills.VoidTx(ctx, tx, req.CompanyID, req.DocumentID, date, req.Reason, req.CorrelationID, req.ActorID)
	})
}

func (s *appService) DeletePurchaseBill(ctx context.Context, req DocumentRequest) (*DeleteResponse, error) {
	return s.deleteCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) error {
		return s.bills.DeleteTx(ctx, tx, req.CompanyID, req.DocumentID)
	})
}

func (s *appService) CreateVendorCredit(ctx context.Context, req CreateVendorCreditRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	resp, replayed, err := runCommand(ctx, s, req.Command, req, nil,
		func(tx pgx.Tx) (*DocumentResponse, []outbox.Event, error) {
			res, err := s.credits.CreateTx(ctx, tx, core.VendorCreditInput{
				CompanyID:     req.CompanyID,
				Date:          date,
				VendorID:      req.VendorID,
				Description:   req.Description,
				Lines:         toLineSpecs(req.Lines),
				CorrelationID: req.CorrelationID,
				CreatedBy:     req.ActorID,
			})
			if err != nil {
				return nil, nil, err
			}
			return &DocumentResponse{Document: NewDocumentView(res.Document)}, res.Events, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

func (s *appService) ApproveVendorCredit(ctx context.Context, req DocumentRequest) (*DocumentResponse, error) {
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.credits.ApproveTx(ctx, tx, req.CompanyID, req.DocumentID)
	})
}

func (s *appService) PostVendorCredit(ctx context.Context, req PostDocumentRequest) (*DocumentResponse, error) {
	date, err := parseOptional(req.Date)
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.credits.PostTx(ctx, tx, req.CompanyID, req.DocumentID, date, req.CorrelationID, req.ActorID)
	})
}

func (s *appService) VoidVendorCredit(ctx context.Context, req VoidDocumentRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.credits.VoidTx(ctx, tx, req.CompanyID, req.DocumentID, date, req.Reason, req.CorrelationID, req.ActorID)
	})
}

func (s *appService) DeleteVendorCredit(ctx context.Context, req DocumentRequest) (*DeleteResponse, error) {
	return s.deleteCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) error {
		return s.credits.DeleteTx(ctx, tx, req.CompanyID, req.DocumentID)
	})
}

func (s *appService) CreateCreditNote(ctx context.Context, req CreateCreditNoteRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	resp, replayed, err := runCommand(ctx, s, req.Command, req, nil,
		func(tx pgx.Tx) (*DocumentResponse, []outbox.Event, error) {
			res, err := s.creditNotes.CreateTx(ctx, tx, core.CreditNoteInput{
				CompanyID:     req.CompanyID,
				Date:          date,
				CustomerID:    req.CustomerID,
				Description:   req.Description,
				Lines:         toLineSpecs(req.Lines),
				CorrelationID: req.CorrelationID,
				CreatedBy:     req.ActorID,
			})
			if err != nil {
				return nil, nil, err
			}
			return &DocumentResponse{Document: NewDocumentView(res.Document)}, res.Events, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

func (s *appService) ApproveCreditNote(ctx context.Context, req DocumentRequest) (*DocumentResponse, error) {
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.creditNotes.ApproveTx(ctx, tx, req.CompanyID, req.DocumentID)
	})
}

func (s *appService) PostCreditNote(ctx context.Context, req PostDocumentRequest) (*DocumentResponse, error) {
	date, err := parseOptional(req.Date)
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.creditNotes.PostTx(ctx, tx, req.CompanyID, req.DocumentID, date, req.CorrelationID, req.ActorID)
	})
}

func (s *appService) VoidCreditNote(ctx context.Context, req VoidDocumentRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.creditNotes.VoidTx(ctx, tx, req.CompanyID, req.DocumentID, date, req.Reason, req.CorrelationID, req.ActorID)
	})
}

func (s *appService) DeleteCreditNote(ctx context.Context, req DocumentRequest) (*DeleteResponse, error) {
	return s.deleteCommand(ctx, req.Command, req, req.DocumentID, func(tx pgx.Tx) error {
		return s.creditNotes.DeleteTx(ctx, tx, req.CompanyID, req.DocumentID)
	})
}

func (s *appService) CreateAdvance(ctx context.Context, req CreateAdvanceRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	resp, replayed, err := runCommand(ctx, s, req.Command, req, nil,
		func(tx pgx.Tx) (*DocumentResponse, []outbox.Event, error) {
			res, err := s.advances.CreateTx(ctx, tx, core.AdvanceInput{
				CompanyID:     req.CompanyID,
				Kind:          core.DocumentKind(req.Kind),
				Date:          date,
				ContactID:     req.ContactID,
				Amount:        req.Amount,
				BankAccountID: req.BankAccountID,
				Description:   req.Description,
				CorrelationID: req.CorrelationID,
				CreatedBy:     req.ActorID,
			})
			if err != nil {
				return nil, nil, err
			}
			return &DocumentResponse{Document: NewDocumentView(res.Document)}, res.Events, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

func (s *appService) PostAdvance(ctx context.Context, req PostAdvanceRequest) (*DocumentResponse, error) {
	date, err := parseOptional(req.Date)
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.AdvanceID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.advances.PostTx(ctx, tx, req.CompanyID, req.AdvanceID, core.DocumentKind(req.Kind), date, req.CorrelationID, req.ActorID)
	})
}

func (s *appService) VoidAdvance(ctx context.Context, req VoidAdvanceRequest) (*DocumentResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	return s.documentCommand(ctx, req.Command, req, req.AdvanceID, func(tx pgx.Tx) (*core.DocumentResult, error) {
		return s.advances.VoidTx(ctx, tx, req.CompanyID, req.AdvanceID, core.DocumentKind(req.Kind), date, req.Reason, req.CorrelationID, req.ActorID)
	})
}

func (s *appService) settlementCommand(ctx context.Context, cmd Command, req any, locks []string,
	fn func(tx pgx.Tx) (*core.SettlementResult, error)) (*SettlementResponse, error) {

	resp, replayed, err := runCommand(ctx, s, cmd, req, locks,
		func(tx pgx.Tx) (*SettlementResponse, []outbox.Event, error) {
			res, err := fn(tx)
			if err != nil {
				return nil, nil, err
			}
			return &SettlementResponse{
				Settlement: NewSettlementView(res.Settlement),
				Document:   NewDocumentView(res.Document),
				Entry:      NewEntryView(res.Entry),
			}, res.Events, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

func (s *appService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*SettlementResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	locks := []string{documentLock(req.CompanyID, req.DocumentID)}
	return s.settlementCommand(ctx, req.Command, req, locks, func(tx pgx.Tx) (*core.SettlementResult, error) {
		return s.settlements.RecordPaymentTx(ctx, tx, core.PaymentInput{
			CompanyID:     req.CompanyID,
			DocumentID:    req.DocumentID,
			Date:          date,
			Amount:        req.Amount,
			BankAccountID: req.BankAccountID,
			CorrelationID: req.CorrelationID,
			CreatedBy:     req.ActorID,
		})
	})
}

func (s *appService) ApplyVendorCredit(ctx context.Context, req ApplyCreditRequest) (*SettlementResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	locks := []string{
		documentLock(req.CompanyID, req.BillID),
		documentLock(req.CompanyID, req.VendorCreditID),
	}
	return s.settlementCommand(ctx, req.Command, req, locks, func(tx pgx.Tx) (*core.SettlementResult, error) {
		return s.settlements.ApplyCreditTx(ctx, tx, core.ApplyCreditInput{
			CompanyID:      req.CompanyID,
			BillID:         req.BillID,
			VendorCreditID: req.VendorCreditID,
			Date:           date,
			Amount:         req.Amount,
			CorrelationID:  req.CorrelationID,
			CreatedBy:      req.ActorID,
		})
	})
}

func (s *appService) ApplyCreditNote(ctx context.Context, req ApplyCreditNoteRequest) (*SettlementResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	locks := []string{
		documentLock(req.CompanyID, req.InvoiceID),
		documentLock(req.CompanyID, req.CreditNoteID),
	}
	return s.settlementCommand(ctx, req.Command, req, locks, func(tx pgx.Tx) (*core.SettlementResult, error) {
		return s.settlements.ApplyCreditNoteTx(ctx, tx, core.ApplyCreditNoteInput{
			CompanyID:     req.CompanyID,
			InvoiceID:     req.InvoiceID,
			CreditNoteID:  req.CreditNoteID,
			Date:          date,
			Amount:        req.Amount,
			CorrelationID: req.CorrelationID,
			CreatedBy:     req.ActorID,
		})
	})
}

func (s *appService) ApplyAdvance(ctx context.Context, req ApplyAdvanceRequest) (*SettlementResponse, error) {
	date, err := parseRequired(req.Date, "date")
	if err != nil {
		return nil, err
	}
	locks := []string{
		documentLock(req.CompanyID, req.DocumentID),
		documentLock(req.CompanyID, req.AdvanceID),
	}
	return s.settlementCommand(ctx, req.Command, req, locks, func(tx pgx.Tx) (*core.SettlementResult, error) {
		return s.settlements.ApplyAdvanceTx(ctx, tx, core.ApplyAdvanceInput{
			CompanyID:     req.CompanyID,
			DocumentID:    req.DocumentID,
			AdvanceID:     req.AdvanceID,
			Date:          date,
			Amount:        req.Amount,
			CorrelationID: req.CorrelationID,
			CreatedBy:     req.ActorID,
		})
	})
}

func (s *appService) ClosePeriod(ctx context.Context, req ClosePeriodRequest) (*PeriodCloseResponse, error) {
	from, err := parseRequired(req.From, "from")
	if err != nil {
		return nil, err
	}
	to, err := parseRequired(req.To, "to")
	if err != nil {
		return nil, err
	}
	locks := []string{companyLock(req.CompanyID, "period-close")}
	resp, replayed, err := runCommand(ctx, s, req.Command, req, locks,
		func(tx pgx.Tx) (*PeriodCloseResponse, []outbox.Event, error) {
			close, events, err := s.periods.CloseTx(ctx, tx, req.CompanyID, from, to, req.ActorID)
			if err != nil {
				return nil, nil, err
			}
			return &PeriodCloseResponse{
				ID:             close.ID,
				From:           dates.FormatCivil(close.From),
				To:             dates.FormatCivil(close.To),
				JournalEntryID: close.JournalEntryID,
			}, events, nil
		})
	if err != nil {
		return nil, err
	}
	resp.Replayed = replayed
	return resp, nil
}

func (s *appService) GetDocument(ctx context.Context, companyID, documentID int) (*DocumentView, error) {
	doc, err := core.GetDocument(ctx, s.pool, companyID, documentID)
	if err != nil {
		return nil, err
	}
	return NewDocumentView(doc), nil
}

func (s *appService) ListDocuments(ctx context.Context, companyID int, kind, status string, limit, offset int) ([]*DocumentView, error) {
	docs, err := core.ListDocuments(ctx, s.pool, companyID, core.DocumentKind(kind), core.DocumentStatus(status), limit, offset)
	if err != nil {
		return nil, err
	}
	views := make([]*DocumentView, len(docs))
	for i, d := range docs {
		views[i] = NewDocumentView(d)
	}
	return views, nil
}

func (s *appService) GetJournalEntry(ctx context.Context, companyID, entryID int) (*EntryView, error) {
	entry, err := s.ledger.GetEntry(ctx, companyID, entryID)
	if err != nil {
		return nil, err
	}
	return NewEntryView(entry), nil
}

func (s *appService) GetAccountNets(ctx context.Context, companyID int) ([]core.AccountNet, error) {
	return core.GetAccountNets(ctx, s.pool, companyID)
}
