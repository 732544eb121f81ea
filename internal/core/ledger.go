package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"accounting-core/internal/apperr"
	"accounting-core/internal/money"
)

// Ledger validates and writes journal entries. Entries are write-once: the
// only later mutation is the void annotation set by CreateReversalTx.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// LineInput is one side of a prospective journal line. Exactly one of Debit
// and Credit must be positive; both are stored at cent precision.
type LineInput struct {
	AccountID int
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

type PostEntryInput struct {
	CompanyID   int
	Date        time.Time
	Description string
	Lines       []LineInput
	CreatedBy   *int
	ReversalOf  *int
	// SkipAccountValidation is set by callers that already resolved and
	// validated every account id in this transaction.
	SkipAccountValidation bool
	Action                PeriodAction
}

// PostJournalEntryTx validates and persists an entry with its lines inside
// the caller's transaction. Debits must equal credits at cent precision.
func (l *Ledger) PostJournalEntryTx(ctx context.Context, tx pgx.Tx, in PostEntryInput) (*JournalEntry, error) {
	if err := validateEntryLines(in.Lines); err != nil {
		return nil, err
	}

	action := in.Action
	if action == "" {
		action = ActionPost
	}
	if err := AssertOpenPeriodTx(ctx, tx, in.CompanyID, in.Date, action); err != nil {
		return nil, err
	}

	if !in.SkipAccountValidation {
		if err := l.validateAccountsTx(ctx, tx, in.CompanyID, in.Lines); err != nil {
			return nil, err
		}
	}

	entry := &JournalEntry{
		CompanyID:   in.CompanyID,
		Date:        in.Date,
		Description: in.Description,
		ReversalOf:  in.ReversalOf,
		CreatedBy:   in.CreatedBy,
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO journal_entries (company_id, date, description, reversal_of_journal_entry_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`, in.CompanyID, in.Date, in.Description, in.ReversalOf, in.CreatedBy).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert journal entry: %w", err)
	}

	for _, line := range in.Lines {
		jl := JournalLine{
			CompanyID:      in.CompanyID,
			JournalEntryID: entry.ID,
			AccountID:      line.AccountID,
			Debit:          money.Round2(line.Debit),
			Credit:         money.Round2(line.Credit),
		}
		err := tx.QueryRow(ctx, `
			INSERT INTO journal_lines (company_id, journal_entry_id, account_id, debit, credit)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, jl.CompanyID, jl.JournalEntryID, jl.AccountID, jl.Debit, jl.Credit).Scan(&jl.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert journal line: %w", err)
		}
		entry.Lines = append(entry.Lines, jl)
	}

	return entry, nil
}

// validateEntryLines enforces the structural rules: at least two lines, each
// one-sided and positive, and the entry balanced at cent precision.
func validateEntryLines(lines []LineInput) error {
	if len(lines) < 2 {
		return apperr.E(apperr.InvalidInput, "journal entry must have at least 2 lines, got %d", len(lines))
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for i, line := range lines {
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return apperr.E(apperr.InvalidInput, "line %d: debit and credit must be non-negative", i)
		}
		debitSet := line.Debit.IsPositive()
		creditSet := line.Credit.IsPositive()
		if debitSet == creditSet {
			return apperr.E(apperr.InvalidInput, "line %d: exactly one of debit or credit must be positive", i)
		}
		totalDebit = totalDebit.Add(money.Round2(line.Debit))
		totalCredit = totalCredit.Add(money.Round2(line.Credit))
	}

	if !money.EqualMoney(totalDebit, totalCredit) {
		return apperr.E(apperr.UnbalancedEntry, "debits %s != credits %s",
			money.String2(totalDebit), money.String2(totalCredit))
	}
	return nil
}

// validateAccountsTx checks that every referenced account is active and
// belongs to the company.
func (l *Ledger) validateAccountsTx(ctx context.Context, tx pgx.Tx, companyID int, lines []LineInput) error {
	ids := make([]int, 0, len(lines))
	seen := make(map[int]struct{}, len(lines))
	for _, line := range lines {
		if _, dup := seen[line.AccountID]; dup {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}

	rows, err := tx.Query(ctx,
		"SELECT id FROM accounts WHERE company_id = $1 AND is_active = true AND id = ANY($2)",
		companyID, ids)
	if err != nil {
		return fmt.Errorf("failed to validate accounts: %w", err)
	}
	valid := make(map[int]struct{}, len(ids))
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan account id: %w", err)
		}
		valid[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating accounts: %w", err)
	}

	for _, id := range ids {
		if _, ok := valid[id]; !ok {
			return apperr.E(apperr.TenantScopeViolation,
				"account %d is not an active account of company %d", id, companyID)
		}
	}
	return nil
}

type ReversalInput struct {
	CompanyID  int
	OriginalID int
	Date       time.Time
	Reason     string
	CreatedBy  *int
	// MarkVoid annotates the original entry as voided. Set on document void,
	// not on plain corrections.
	MarkVoid bool
}

// CreateReversalTx clones the original entry with debits and credits
// swapped and links it back. Reversing an already-reversed entry is
// rejected.
func (l *Ledger) CreateReversalTx(ctx context.Context, tx pgx.Tx, in ReversalInput) (*JournalEntry, error) {
	var originalCompanyID int
	var description string
	err := tx.QueryRow(ctx, `
		SELECT company_id, description
		FROM journal_entries
		WHERE id = $1
		FOR UPDATE
	`, in.OriginalID).Scan(&originalCompanyID, &description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "journal entry %d not found", in.OriginalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load journal entry %d: %w", in.OriginalID, err)
	}
	if originalCompanyID != in.CompanyID {
		return nil, apperr.E(apperr.TenantScopeViolation,
			"journal entry %d does not belong to company %d", in.OriginalID, in.CompanyID)
	}

	var reversalCount int
	err = tx.QueryRow(ctx,
		"SELECT count(*) FROM journal_entries WHERE reversal_of_journal_entry_id = $1",
		in.OriginalID).Scan(&reversalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to check reversal status: %w", err)
	}
	if reversalCount > 0 {
		return nil, apperr.E(apperr.InvalidStateTransition, "journal entry %d is already reversed", in.OriginalID)
	}

	originalLines, err := loadEntryLinesTx(ctx, tx, in.OriginalID)
	if err != nil {
		return nil, err
	}

	swapped := make([]LineInput, 0, len(originalLines))
	for _, line := range originalLines {
		swapped = append(swapped, LineInput{AccountID: line.AccountID, Debit: line.Credit, Credit: line.Debit})
	}

	reversal, err := l.PostJournalEntryTx(ctx, tx, PostEntryInput{
		CompanyID:   in.CompanyID,
		Date:        in.Date,
		Description: fmt.Sprintf("Reversal of entry %d: %s", in.OriginalID, description),
		Lines:       swapped,
		CreatedBy:   in.CreatedBy,
		ReversalOf:  &in.OriginalID,
		// Lines come straight from a committed entry of this company.
		SkipAccountValidation: true,
		Action:                ActionReversal,
	})
	if err != nil {
		return nil, err
	}

	if in.MarkVoid {
		_, err = tx.Exec(ctx, `
			UPDATE journal_entries
			SET voided_at = NOW(), void_reason = $1
			WHERE id = $2
		`, in.Reason, in.OriginalID)
		if err != nil {
			return nil, fmt.Errorf("failed to annotate void on entry %d: %w", in.OriginalID, err)
		}
	}

	return reversal, nil
}

func loadEntryLinesTx(ctx context.Context, tx pgx.Tx, entryID int) ([]JournalLine, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, company_id, journal_entry_id, account_id, debit, credit
		FROM journal_lines
		WHERE journal_entry_id = $1
		ORDER BY id
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines for entry %d: %w", entryID, err)
	}
	defer rows.Close()

	var lines []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.CompanyID, &l.JournalEntryID, &l.AccountID, &l.Debit, &l.Credit); err != nil {
			return nil, fmt.Errorf("failed to scan journal line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

type AdjustmentInput struct {
	CompanyID       int
	OriginalEntryID int
	Date            time.Time
	Description     string
	// Desired is the full set of lines the document's content now calls
	// for; the adjustment entry posts only the difference.
	Desired   []LineInput
	CreatedBy *int
}

// PostNetDeltaAdjustmentTx posts the balanced difference between the
// original entry's per-account nets and the desired nets. Historical
// entries are never mutated. Returns nil when there is nothing to adjust.
func (l *Ledger) PostNetDeltaAdjustmentTx(ctx context.Context, tx pgx.Tx, in AdjustmentInput) (*JournalEntry, error) {
	originalLines, err := loadEntryLinesTx(ctx, tx, in.OriginalEntryID)
	if err != nil {
		return nil, err
	}
	if len(originalLines) == 0 {
		return nil, apperr.E(apperr.NotFound, "journal entry %d not found", in.OriginalEntryID)
	}
	if originalLines[0].CompanyID != in.CompanyID {
		return nil, apperr.E(apperr.TenantScopeViolation,
			"journal entry %d does not belong to company %d", in.OriginalEntryID, in.CompanyID)
	}

	current := make(map[int]decimal.Decimal, len(originalLines))
	for _, line := range originalLines {
		current[line.AccountID] = current[line.AccountID].Add(line.Debit.Sub(line.Credit))
	}
	desired := make(map[int]decimal.Decimal, len(in.Desired))
	for _, line := range in.Desired {
		desired[line.AccountID] = desired[line.AccountID].Add(line.Debit.Sub(line.Credit))
	}

	delta := netDeltaLines(current, desired)
	if len(delta) == 0 {
		return nil, nil
	}

	return l.PostJournalEntryTx(ctx, tx, PostEntryInput{
		CompanyID:   in.CompanyID,
		Date:        in.Date,
		Description: in.Description,
		Lines:       delta,
		CreatedBy:   in.CreatedBy,
		Action:      ActionAdjustment,
	})
}

// netDeltaLines diffs desired against current per-account nets and renders
// the difference as one-sided lines. The result is balanced whenever both
// inputs are balanced.
func netDeltaLines(current, desired map[int]decimal.Decimal) []LineInput {
	accounts := make(map[int]struct{}, len(current)+len(desired))
	for id := range current {
		accounts[id] = struct{}{}
	}
	for id := range desired {
		accounts[id] = struct{}{}
	}

	ids := make([]int, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var lines []LineInput
	for _, id := range ids {
		diff := money.Round2(desired[id].Sub(current[id]))
		if diff.IsZero() {
			continue
		}
		if diff.IsPositive() {
			lines = append(lines, LineInput{AccountID: id, Debit: diff})
		} else {
			lines = append(lines, LineInput{AccountID: id, Credit: diff.Neg()})
		}
	}
	return lines
}

// GetEntry loads an entry with its lines outside any transaction.
func (l *Ledger) GetEntry(ctx context.Context, companyID, entryID int) (*JournalEntry, error) {
	var e JournalEntry
	err := l.pool.QueryRow(ctx, `
		SELECT id, company_id, date, description, reversal_of_journal_entry_id,
		       voided_at, void_reason, created_by, created_at
		FROM journal_entries
		WHERE id = $1 AND company_id = $2
	`, entryID, companyID).Scan(&e.ID, &e.CompanyID, &e.Date, &e.Description,
		&e.ReversalOf, &e.VoidedAt, &e.VoidReason, &e.CreatedBy, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "journal entry %d not found", entryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load journal entry %d: %w", entryID, err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT id, company_id, journal_entry_id, account_id, debit, credit
		FROM journal_lines
		WHERE journal_entry_id = $1
		ORDER BY id
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lines for entry %d: %w", entryID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.CompanyID, &l.JournalEntryID, &l.AccountID, &l.Debit, &l.Credit); err != nil {
			return nil, fmt.Errorf("failed to scan journal line: %w", err)
		}
		e.Lines = append(e.Lines, l)
	}
	return &e, rows.Err()
}
