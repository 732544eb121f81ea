package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type MoveType string

const (
	MovePurchaseReceipt MoveType = "PURCHASE_RECEIPT"
	MoveSaleIssue       MoveType = "SALE_ISSUE"
	MoveAdjustment      MoveType = "ADJUSTMENT"
	MovePurchaseReturn  MoveType = "PURCHASE_RETURN"
	MoveSaleReturn      MoveType = "SALE_RETURN"
	MoveTransfer        MoveType = "TRANSFER"
	// MoveValueAdjustment changes total value without moving quantity
	// (landed-cost capitalization and write-downs).
	MoveValueAdjustment MoveType = "VALUE_ADJUSTMENT"
)

type MoveDirection string

const (
	DirectionIn  MoveDirection = "IN"
	DirectionOut MoveDirection = "OUT"
)

type StockMove struct {
	ID         int
	CompanyID  int
	LocationID int
	ItemID     int
	Date       time.Time
	Type       MoveType
	Direction  MoveDirection
	Quantity   decimal.Decimal
	// UnitCostApplied is the lot cost for IN moves and the WAC at the time
	// of the move for OUT moves. TotalCostApplied is quantity × unit cost
	// at cent precision unless an explicit total override preserved a
	// discounted lot cost.
	UnitCostApplied  decimal.Decimal
	TotalCostApplied decimal.Decimal
	ReferenceType    string
	ReferenceID      int
	CorrelationID    string
	JournalEntryID   *int
}

// InventoryBalance is the running state per (location, item). WAC is
// total value over quantity at 6 digits while quantity is positive; at zero
// quantity the value is zero by invariant.
type InventoryBalance struct {
	CompanyID      int
	LocationID     int
	ItemID         int
	QuantityOnHand decimal.Decimal
	TotalValue     decimal.Decimal
	WAC            decimal.Decimal
}
