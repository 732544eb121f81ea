package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountAsset     AccountType = "ASSET"
	AccountLiability AccountType = "LIABILITY"
	AccountEquity    AccountType = "EQUITY"
	AccountIncome    AccountType = "INCOME"
	AccountExpense   AccountType = "EXPENSE"
)

type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// NormalBalanceFor returns the conventional normal balance for a type. It is
// stored explicitly on every account row but derived here at creation time.
func NormalBalanceFor(t AccountType) NormalBalance {
	switch t {
	case AccountAsset, AccountExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}

type Account struct {
	ID               int
	CompanyID        int
	Code             string
	Name             string
	Type             AccountType
	NormalBalance    NormalBalance
	ReportGroup      *string
	CashflowActivity *string
	IsActive         bool
	// Banking flags gate which accounts may fund payments. A credit-card
	// banking account cannot be the source of a vendor payment.
	IsBanking    bool
	IsCreditCard bool
}

// Company is the tenant root. The default account references are assigned at
// provisioning; GRNI and PPV start unset and are created on first use.
type Company struct {
	ID                int
	Name              string
	BaseCurrency      string
	TimeZone          string
	DefaultLocationID int

	AccountsReceivableID int
	AccountsPayableID    int
	InventoryAssetID     int
	SalesIncomeID        int
	TaxPayableID         int
	PurchaseTaxID        int
	COGSID               int
	RetainedEarningsID   int
	CustomerAdvancesID   int
	VendorPrepaymentID   int

	GRNIAccountID *int
	PPVAccountID  *int
}

type JournalEntry struct {
	ID          int
	CompanyID   int
	Date        time.Time
	Description string
	ReversalOf  *int
	VoidedAt    *time.Time
	VoidReason  *string
	CreatedBy   *int
	CreatedAt   time.Time
	Lines       []JournalLine
}

type JournalLine struct {
	ID             int
	CompanyID      int
	JournalEntryID int
	AccountID      int
	Debit          decimal.Decimal
	Credit         decimal.Decimal
}

type PeriodClose struct {
	ID             int
	CompanyID      int
	From           time.Time
	To             time.Time
	JournalEntryID int
	ClosedAt       time.Time
}

// Item is a sellable/purchasable product. Only inventory-tracked items
// produce stock moves and COGS.
type Item struct {
	ID                 int
	CompanyID          int
	Code               string
	Name               string
	IsInventoryTracked bool
	IsActive           bool
}
