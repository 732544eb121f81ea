package core

import (
	"sort"

	"github.com/shopspring/decimal"

	"accounting-core/internal/apperr"
	"accounting-core/internal/dates"
	"accounting-core/internal/money"
)

// wacState is the running weighted-average-cost state during a replay.
type wacState struct {
	Quantity decimal.Decimal
	Value    decimal.Decimal
	WAC      decimal.Decimal
}

// replayTimeline walks a (location, item) move timeline in (date, id) order
// and recomputes the running state. IN moves keep their recorded costs —
// they are facts about the lot received. OUT moves are revalued to the WAC
// in effect at their position in the timeline; the indices of moves whose
// applied costs changed are returned so the caller can rewrite only those
// rows. Value-only moves shift total value without touching quantity.
//
// allowNegative permits quantity to dip below zero; it is reserved for void
// and reconciliation paths that must unwind history.
func replayTimeline(moves []*StockMove, allowNegative bool) (wacState, []int, error) {
	ordered := make([]*StockMove, len(moves))
	copy(ordered, moves)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Date.Equal(ordered[j].Date) {
			return ordered[i].Date.Before(ordered[j].Date)
		}
		return ordered[i].ID < ordered[j].ID
	})

	var state wacState
	var changed []int
	for _, m := range ordered {
		switch {
		case m.Type == MoveValueAdjustment:
			state.Value = money.Round2(state.Value.Add(m.TotalCostApplied))

		case m.Direction == DirectionIn:
			state.Quantity = state.Quantity.Add(m.Quantity)
			state.Value = money.Round2(state.Value.Add(m.TotalCostApplied))

		case m.Direction == DirectionOut:
			unit := state.WAC
			total := money.Round2(m.Quantity.Mul(unit))
			if !unit.Equal(m.UnitCostApplied) || !total.Equal(m.TotalCostApplied) {
				m.UnitCostApplied = unit
				m.TotalCostApplied = total
				changed = append(changed, indexOf(moves, m))
			}
			state.Quantity = state.Quantity.Sub(m.Quantity)
			state.Value = money.Round2(state.Value.Sub(total))
			if state.Quantity.IsNegative() && !allowNegative {
				return wacState{}, nil, apperr.E(apperr.InsufficientStock,
					"move dated %s would drive quantity to %s",
					dates.FormatCivil(m.Date), state.Quantity.String())
			}
		}

		if state.Quantity.IsZero() {
			state.Value = decimal.Zero
		}
		if state.Quantity.IsPositive() {
			state.WAC = money.Round6(state.Value.Div(state.Quantity))
		} else if state.Quantity.IsZero() {
			state.WAC = decimal.Zero
		}
	}
	return state, changed, nil
}

func indexOf(moves []*StockMove, target *StockMove) int {
	for i, m := range moves {
		if m == target {
			return i
		}
	}
	return -1
}
