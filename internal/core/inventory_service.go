package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"accounting-core/internal/apperr"
	"accounting-core/internal/dates"
	"accounting-core/internal/money"
	"accounting-core/internal/outbox"
)

// InventoryService applies stock moves and maintains weighted-average cost
// per (location, item). All mutating operations are Tx-scoped: documents
// keep their stock effects atomic with their journal entries.
type InventoryService struct {
	pool *pgxpool.Pool
}

func NewInventoryService(pool *pgxpool.Pool) *InventoryService {
	return &InventoryService{pool: pool}
}

// MoveOptions tune how a stock move is applied.
type MoveOptions struct {
	// AllowBackdated accepts a move dated before the latest persisted move
	// of the pair and triggers a timeline replay.
	AllowBackdated bool
	// AllowNegative permits quantity below zero; only void/reconciliation
	// paths set it.
	AllowNegative bool
	// TotalCostOverride preserves a discounted lot cost on IN moves in
	// place of quantity × unit cost.
	TotalCostOverride *decimal.Decimal
}

// MoveResult reports the applied move and, when the move was backdated, the
// date from which derived values must be re-projected.
type MoveResult struct {
	Move       *StockMove
	Balance    InventoryBalance
	RecalcFrom *time.Time
}

// ApplyStockMoveTx applies a quantity move. For IN moves the total cost is
// quantity × unit cost unless overridden. For OUT moves the applied unit
// cost is the WAC at the move's position in the timeline. A backdated move
// replays the timeline and revalues every affected OUT move.
func (s *InventoryService) ApplyStockMoveTx(ctx context.Context, tx pgx.Tx, move *StockMove, opts MoveOptions) (*MoveResult, error) {
	if move.Type == MoveValueAdjustment {
		return nil, apperr.E(apperr.InvalidInput, "use ApplyValueAdjustmentTx for value-only moves")
	}
	if !move.Quantity.IsPositive() {
		return nil, apperr.E(apperr.InvalidInput, "move quantity must be positive, got %s", move.Quantity)
	}
	if move.Direction == DirectionIn {
		if move.UnitCostApplied.IsNegative() {
			return nil, apperr.E(apperr.InvalidInput, "unit cost cannot be negative, got %s", move.UnitCostApplied)
		}
		if opts.TotalCostOverride != nil {
			move.TotalCostApplied = money.Round2(*opts.TotalCostOverride)
			if move.Quantity.IsPositive() {
				move.UnitCostApplied = money.Round6(move.TotalCostApplied.Div(move.Quantity))
			}
		} else {
			move.TotalCostApplied = money.Round2(move.Quantity.Mul(move.UnitCostApplied))
		}
	}
	return s.applyTx(ctx, tx, move, opts)
}

// ApplyValueAdjustmentTx shifts total value (and therefore WAC) without
// changing quantity on hand. Used for landed-cost capitalization. The
// amount rides in TotalCostApplied and may be negative for write-downs.
func (s *InventoryService) ApplyValueAdjustmentTx(ctx context.Context, tx pgx.Tx, move *StockMove, opts MoveOptions) (*MoveResult, error) {
	if move.Type != MoveValueAdjustment {
		return nil, apperr.E(apperr.InvalidInput, "value adjustment move must have type %s", MoveValueAdjustment)
	}
	if move.TotalCostApplied.IsZero() {
		return nil, apperr.E(apperr.InvalidInput, "value adjustment amount must be non-zero")
	}
	move.Direction = DirectionIn
	move.Quantity = decimal.Zero
	move.UnitCostApplied = decimal.Zero
	move.TotalCostApplied = money.Round2(move.TotalCostApplied)
	return s.applyTx(ctx, tx, move, opts)
}

func (s *InventoryService) applyTx(ctx context.Context, tx pgx.Tx, move *StockMove, opts MoveOptions) (*MoveResult, error) {
	if err := s.lockBalanceRowTx(ctx, tx, move.CompanyID, move.LocationID, move.ItemID); err != nil {
		return nil, err
	}

	var latest *time.Time
	var latestDate time.Time
	err := tx.QueryRow(ctx, `
		SELECT date FROM stock_moves
		WHERE company_id = $1 AND location_id = $2 AND item_id = $3
		ORDER BY date DESC, id DESC
		LIMIT 1
	`, move.CompanyID, move.LocationID, move.ItemID).Scan(&latestDate)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to read latest stock move: %w", err)
	}
	if err == nil {
		latest = &latestDate
	}

	backdated := latest != nil && move.Date.Before(*latest)
	if backdated && !opts.AllowBackdated {
		return nil, apperr.E(apperr.InvalidInput,
			"move dated %s precedes the latest move dated %s; set allowBackdated to replay",
			dates.FormatCivil(move.Date), dates.FormatCivil(*latest))
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO stock_moves
			(company_id, location_id, item_id, date, type, direction, quantity,
			 unit_cost_applied, total_cost_applied, reference_type, reference_id,
			 correlation_id, journal_entry_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, move.CompanyID, move.LocationID, move.ItemID, move.Date, move.Type, move.Direction,
		move.Quantity, move.UnitCostApplied, move.TotalCostApplied,
		move.ReferenceType, move.ReferenceID, move.CorrelationID, move.JournalEntryID).Scan(&move.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert stock move: %w", err)
	}

	timeline, err := s.loadTimelineTx(ctx, tx, move.CompanyID, move.LocationID, move.ItemID)
	if err != nil {
		return nil, err
	}

	state, changed, err := replayTimeline(timeline, opts.AllowNegative)
	if err != nil {
		return nil, err
	}

	for _, idx := range changed {
		m := timeline[idx]
		if _, err := tx.Exec(ctx, `
			UPDATE stock_moves
			SET unit_cost_applied = $1, total_cost_applied = $2
			WHERE id = $3
		`, m.UnitCostApplied, m.TotalCostApplied, m.ID); err != nil {
			return nil, fmt.Errorf("failed to revalue stock move %d: %w", m.ID, err)
		}
		if m.ID == move.ID {
			move.UnitCostApplied = m.UnitCostApplied
			move.TotalCostApplied = m.TotalCostApplied
		}
	}
	// The new move's applied costs come from the replay even when unchanged
	// rows were not rewritten.
	for _, m := range timeline {
		if m.ID == move.ID {
			move.UnitCostApplied = m.UnitCostApplied
			move.TotalCostApplied = m.TotalCostApplied
		}
	}

	balance := InventoryBalance{
		CompanyID:      move.CompanyID,
		LocationID:     move.LocationID,
		ItemID:         move.ItemID,
		QuantityOnHand: state.Quantity,
		TotalValue:     state.Value,
		WAC:            state.WAC,
	}
	if _, err := tx.Exec(ctx, `
		UPDATE inventory_balances
		SET quantity_on_hand = $1, total_value = $2, wac = $3, updated_at = NOW()
		WHERE company_id = $4 AND location_id = $5 AND item_id = $6
	`, balance.QuantityOnHand, balance.TotalValue, balance.WAC,
		move.CompanyID, move.LocationID, move.ItemID); err != nil {
		return nil, fmt.Errorf("failed to update inventory balance: %w", err)
	}

	result := &MoveResult{Move: move, Balance: balance}
	if backdated {
		from := move.Date
		result.RecalcFrom = &from
	}
	return result, nil
}

// RecalcEvent builds the inventory.recalc.requested envelope for a
// backdated move so asynchronous consumers re-project derived values.
func RecalcEvent(move *StockMove, fromDate time.Time) (outbox.Event, error) {
	return outbox.New(move.CompanyID, outbox.EventInventoryRecalc, "InventoryBalance",
		fmt.Sprintf("%d-%d", move.LocationID, move.ItemID), move.CorrelationID,
		map[string]any{
			"locationId": move.LocationID,
			"itemId":     move.ItemID,
			"fromDate":   dates.FormatCivil(fromDate),
			"moveId":     move.ID,
		})
}

// lockBalanceRowTx upserts and locks the running balance row, serializing
// all concurrent moves of the pair.
func (s *InventoryService) lockBalanceRowTx(ctx context.Context, tx pgx.Tx, companyID, locationID, itemID int) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO inventory_balances (company_id, location_id, item_id, quantity_on_hand, total_value, wac)
		VALUES ($1, $2, $3, 0, 0, 0)
		ON CONFLICT (company_id, location_id, item_id) DO NOTHING
	`, companyID, locationID, itemID); err != nil {
		return fmt.Errorf("failed to upsert inventory balance: %w", err)
	}
	var id int
	err := tx.QueryRow(ctx, `
		SELECT item_id FROM inventory_balances
		WHERE company_id = $1 AND location_id = $2 AND item_id = $3
		FOR UPDATE
	`, companyID, locationID, itemID).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to lock inventory balance: %w", err)
	}
	return nil
}

func (s *InventoryService) loadTimelineTx(ctx context.Context, tx pgx.Tx, companyID, locationID, itemID int) ([]*StockMove, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, company_id, location_id, item_id, date, type, direction,
		       quantity, unit_cost_applied, total_cost_applied,
		       reference_type, reference_id, correlation_id, journal_entry_id
		FROM stock_moves
		WHERE company_id = $1 AND location_id = $2 AND item_id = $3
		ORDER BY date, id
	`, companyID, locationID, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock move timeline: %w", err)
	}
	defer rows.Close()

	var timeline []*StockMove
	for rows.Next() {
		var m StockMove
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.LocationID, &m.ItemID, &m.Date, &m.Type,
			&m.Direction, &m.Quantity, &m.UnitCostApplied, &m.TotalCostApplied,
			&m.ReferenceType, &m.ReferenceID, &m.CorrelationID, &m.JournalEntryID); err != nil {
			return nil, fmt.Errorf("failed to scan stock move: %w", err)
		}
		timeline = append(timeline, &m)
	}
	return timeline, rows.Err()
}

// MovesForReferenceTx loads the stock moves a document produced, oldest
// first. Void paths use it to build compensating moves.
func (s *InventoryService) MovesForReferenceTx(ctx context.Context, tx pgx.Tx, companyID int, referenceType string, referenceID int) ([]*StockMove, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, company_id, location_id, item_id, date, type, direction,
		       quantity, unit_cost_applied, total_cost_applied,
		       reference_type, reference_id, correlation_id, journal_entry_id
		FROM stock_moves
		WHERE company_id = $1 AND reference_type = $2 AND reference_id = $3
		ORDER BY date, id
	`, companyID, referenceType, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stock moves for %s %d: %w", referenceType, referenceID, err)
	}
	defer rows.Close()

	var moves []*StockMove
	for rows.Next() {
		var m StockMove
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.LocationID, &m.ItemID, &m.Date, &m.Type,
			&m.Direction, &m.Quantity, &m.UnitCostApplied, &m.TotalCostApplied,
			&m.ReferenceType, &m.ReferenceID, &m.CorrelationID, &m.JournalEntryID); err != nil {
			return nil, fmt.Errorf("failed to scan stock move: %w", err)
		}
		moves = append(moves, &m)
	}
	return moves, rows.Err()
}
