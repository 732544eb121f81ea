package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"accounting-core/internal/apperr"
	"accounting-core/internal/dates"
	"accounting-core/internal/money"
	"accounting-core/internal/outbox"
)

// PeriodAction names the operation asking the guard for permission. It only
// affects the error message: the rule itself is uniform — nothing posts on
// or before the latest closed date. A reversal dated after the close passes
// the date check; a reversal dated inside the close is rejected like any
// other posting.
type PeriodAction string

const (
	ActionPost        PeriodAction = "post"
	ActionReversal    PeriodAction = "reversal"
	ActionAdjustment  PeriodAction = "adjustment"
	ActionVoid        PeriodAction = "void"
	ActionSettlement  PeriodAction = "settlement"
	ActionPeriodClose PeriodAction = "period-close"
)

// AssertOpenPeriodTx rejects any posting whose effective date falls inside a
// closed period. The closing entry itself is posted before its PeriodClose
// row exists, so it never trips the guard.
func AssertOpenPeriodTx(ctx context.Context, tx pgx.Tx, companyID int, date time.Time, action PeriodAction) error {
	var closedThrough time.Time
	err := tx.QueryRow(ctx, `
		SELECT to_date FROM period_closes
		WHERE company_id = $1
		ORDER BY to_date DESC
		LIMIT 1
	`, companyID).Scan(&closedThrough)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load latest period close: %w", err)
	}

	if dates.NotAfter(date, closedThrough, time.UTC) {
		return apperr.E(apperr.PeriodClosed,
			"%s dated %s falls in a closed period (closed through %s)",
			action, dates.FormatCivil(date), dates.FormatCivil(closedThrough))
	}
	return nil
}

// PeriodService closes accounting periods.
type PeriodService struct {
	ledger *Ledger
}

func NewPeriodService(ledger *Ledger) *PeriodService {
	return &PeriodService{ledger: ledger}
}

// CloseTx computes net income over from..to, posts the closing entry that
// transfers income and expense nets to retained earnings, and records the
// PeriodClose row. Re-closing an already-closed window is refused.
func (s *PeriodService) CloseTx(ctx context.Context, tx pgx.Tx, companyID int, from, to time.Time, actorID *int) (*PeriodClose, []outbox.Event, error) {
	if to.Before(from) {
		return nil, nil, apperr.E(apperr.InvalidInput, "period end %s precedes start %s",
			dates.FormatCivil(to), dates.FormatCivil(from))
	}

	// The company row lock serializes closes per tenant.
	company, err := LockCompanyTx(ctx, tx, companyID)
	if err != nil {
		return nil, nil, err
	}

	var overlap int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM period_closes
		WHERE company_id = $1 AND to_date >= $2
	`, companyID, from).Scan(&overlap)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check close overlap: %w", err)
	}
	if overlap > 0 {
		return nil, nil, apperr.E(apperr.InvalidStateTransition,
			"period overlapping %s..%s is already closed",
			dates.FormatCivil(from), dates.FormatCivil(to))
	}

	// Net (debit − credit) per income/expense account over the window.
	// Voided entries still carry their reversals, so the sums net out.
	rows, err := tx.Query(ctx, `
		SELECT jl.account_id, SUM(jl.debit - jl.credit) AS net
		FROM journal_lines jl
		JOIN journal_entries je ON je.id = jl.journal_entry_id
		JOIN accounts a ON a.id = jl.account_id
		WHERE je.company_id = $1
		  AND a.type IN ('INCOME', 'EXPENSE')
		  AND je.date >= $2 AND je.date <= $3
		GROUP BY jl.account_id
		HAVING SUM(jl.debit - jl.credit) <> 0
	`, companyID, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compute period nets: %w", err)
	}

	var nets []periodNet
	for rows.Next() {
		var n periodNet
		if err := rows.Scan(&n.accountID, &n.net); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("failed to scan period net: %w", err)
		}
		nets = append(nets, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating period nets: %w", err)
	}

	lines := closingLines(nets, company.RetainedEarningsID)

	var entryID int
	if len(lines) > 0 {
		entry, err := s.ledger.PostJournalEntryTx(ctx, tx, PostEntryInput{
			CompanyID:   companyID,
			Date:        to,
			Description: fmt.Sprintf("Period close %s..%s", dates.FormatCivil(from), dates.FormatCivil(to)),
			Lines:       lines,
			CreatedBy:   actorID,
			Action:      ActionPeriodClose,
		})
		if err != nil {
			return nil, nil, err
		}
		entryID = entry.ID
	} else {
		// Nothing to transfer: record the close against a zero-activity
		// window with a two-line nil entry is pointless, so post none.
		entryID = 0
	}

	var close PeriodClose
	close.CompanyID = companyID
	close.From = from
	close.To = to
	close.JournalEntryID = entryID
	err = tx.QueryRow(ctx, `
		INSERT INTO period_closes (company_id, from_date, to_date, journal_entry_id, closed_at)
		VALUES ($1, $2, $3, NULLIF($4, 0), NOW())
		RETURNING id, closed_at
	`, companyID, from, to, entryID).Scan(&close.ID, &close.ClosedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record period close: %w", err)
	}

	var events []outbox.Event
	if entryID != 0 {
		ev, err := outbox.New(companyID, outbox.EventJournalEntryCreated, "JournalEntry",
			fmt.Sprintf("%d", entryID), "", map[string]any{
				"journalEntryId": entryID,
				"reason":         "period-close",
				"from":           dates.FormatCivil(from),
				"to":             dates.FormatCivil(to),
			})
		if err != nil {
			return nil, nil, err
		}
		events = append(events, ev)
	}
	return &close, events, nil
}

type periodNet struct {
	accountID int
	net       decimal.Decimal
}

// closingLines builds the balanced closing entry: each income/expense net is
// zeroed and the difference lands on retained earnings.
func closingLines(nets []periodNet, retainedEarningsID int) []LineInput {
	var lines []LineInput
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for _, n := range nets {
		net := money.Round2(n.net)
		if net.IsZero() {
			continue
		}
		if net.IsPositive() {
			// Debit-heavy account (expenses): credit it to zero.
			lines = append(lines, LineInput{AccountID: n.accountID, Credit: net})
			totalCredit = totalCredit.Add(net)
		} else {
			lines = append(lines, LineInput{AccountID: n.accountID, Debit: net.Neg()})
			totalDebit = totalDebit.Add(net.Neg())
		}
	}
	if len(lines) == 0 {
		return nil
	}
	diff := totalDebit.Sub(totalCredit)
	if diff.IsPositive() {
		// Income exceeded expenses: net income credits equity.
		lines = append(lines, LineInput{AccountID: retainedEarningsID, Credit: diff})
	} else if diff.IsNegative() {
		lines = append(lines, LineInput{AccountID: retainedEarningsID, Debit: diff.Neg()})
	}
	return lines
}
