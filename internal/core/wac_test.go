package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"accounting-core/internal/apperr"
)

func day(n int) time.Time {
	return time.Date(2025, time.March, n, 0, 0, 0, 0, time.UTC)
}

func inMove(id, d int, qty, unitCost string) *StockMove {
	q := decimal.RequireFromString(qty)
	u := decimal.RequireFromString(unitCost)
	return &StockMove{
		ID: id, Date: day(d), Type: MovePurchaseReceipt, Direction: DirectionIn,
		Quantity: q, UnitCostApplied: u, TotalCostApplied: q.Mul(u),
	}
}

func outMove(id, d int, qty string) *StockMove {
	return &StockMove{
		ID: id, Date: day(d), Type: MoveSaleIssue, Direction: DirectionOut,
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestReplayTimeline_BackdatedReceiptRevaluesLaterIssue(t *testing.T) {
	// Receive 10 @ 5.00, issue 4 on day 6, then a receipt of 10 @ 7.00
	// arrives backdated to day 3. The issue must revalue from WAC 5 to 6.
	issue := outMove(2, 6, "4")
	issue.UnitCostApplied = decimal.RequireFromString("5")
	issue.TotalCostApplied = decimal.RequireFromString("20")
	moves := []*StockMove{
		inMove(1, 1, "10", "5"),
		issue,
		inMove(3, 3, "10", "7"),
	}

	state, changed, err := replayTimeline(moves, false)
	require.NoError(t, err)

	assert.True(t, state.Quantity.Equal(decimal.RequireFromString("16")), "quantity = %s", state.Quantity)
	assert.True(t, state.Value.Equal(decimal.RequireFromString("96")), "value = %s", state.Value)
	assert.True(t, state.WAC.Equal(decimal.RequireFromString("6")), "wac = %s", state.WAC)

	require.Len(t, changed, 1)
	assert.Equal(t, 1, changed[0])
	assert.True(t, issue.UnitCostApplied.Equal(decimal.RequireFromString("6")))
	assert.True(t, issue.TotalCostApplied.Equal(decimal.RequireFromString("24")))
}

func TestReplayTimeline_InsufficientStock(t *testing.T) {
	moves := []*StockMove{
		inMove(1, 1, "5", "10"),
		outMove(2, 2, "8"),
	}
	_, _, err := replayTimeline(moves, false)
	require.Error(t, err)
	assert.Equal(t, apperr.InsufficientStock, apperr.KindOf(err))
}

func TestReplayTimeline_AllowNegative(t *testing.T) {
	moves := []*StockMove{
		inMove(1, 1, "5", "10"),
		outMove(2, 2, "8"),
	}
	state, _, err := replayTimeline(moves, true)
	require.NoError(t, err)
	assert.True(t, state.Quantity.Equal(decimal.RequireFromString("-3")))
}

func TestReplayTimeline_ZeroQuantityZeroValue(t *testing.T) {
	// Issuing everything must leave value exactly zero even when the WAC
	// carries rounding residue.
	moves := []*StockMove{
		inMove(1, 1, "3", "10"),
		inMove(2, 2, "3", "10.01"),
		outMove(3, 3, "6"),
	}
	state, _, err := replayTimeline(moves, false)
	require.NoError(t, err)
	assert.True(t, state.Quantity.IsZero())
	assert.True(t, state.Value.IsZero(), "value = %s", state.Value)
	assert.True(t, state.WAC.IsZero())
}

func TestReplayTimeline_ValueAdjustmentShiftsWAC(t *testing.T) {
	adj := &StockMove{
		ID: 2, Date: day(2), Type: MoveValueAdjustment, Direction: DirectionIn,
		TotalCostApplied: decimal.RequireFromString("25"),
	}
	moves := []*StockMove{
		inMove(1, 1, "10", "5"),
		adj,
	}
	state, _, err := replayTimeline(moves, false)
	require.NoError(t, err)
	assert.True(t, state.Quantity.Equal(decimal.RequireFromString("10")))
	assert.True(t, state.Value.Equal(decimal.RequireFromString("75")))
	assert.True(t, state.WAC.Equal(decimal.RequireFromString("7.5")), "wac = %s", state.WAC)
}

func TestReplayTimeline_SameDayOrdersByID(t *testing.T) {
	moves := []*StockMove{
		outMove(2, 1, "5"),
		inMove(1, 1, "5", "4"),
	}
	state, _, err := replayTimeline(moves, false)
	require.NoError(t, err)
	assert.True(t, state.Quantity.IsZero())
	assert.True(t, state.Value.IsZero())
}
