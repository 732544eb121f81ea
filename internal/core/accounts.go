package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"accounting-core/internal/apperr"
)

const companyColumns = `
	id, name, base_currency, time_zone, default_location_id,
	accounts_receivable_id, accounts_payable_id, inventory_asset_id,
	sales_income_id, tax_payable_id, purchase_tax_id, cogs_id,
	retained_earnings_id, customer_advances_id, vendor_prepayment_id,
	grni_account_id, ppv_account_id`

func scanCompany(row pgx.Row) (*Company, error) {
	var c Company
	err := row.Scan(
		&c.ID, &c.Name, &c.BaseCurrency, &c.TimeZone, &c.DefaultLocationID,
		&c.AccountsReceivableID, &c.AccountsPayableID, &c.InventoryAssetID,
		&c.SalesIncomeID, &c.TaxPayableID, &c.PurchaseTaxID, &c.COGSID,
		&c.RetainedEarningsID, &c.CustomerAdvancesID, &c.VendorPrepaymentID,
		&c.GRNIAccountID, &c.PPVAccountID,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCompanyTx fetches the tenant root inside the caller's transaction.
func LoadCompanyTx(ctx context.Context, tx pgx.Tx, companyID int) (*Company, error) {
	c, err := scanCompany(tx.QueryRow(ctx,
		"SELECT"+companyColumns+" FROM companies WHERE id = $1", companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "company %d not found", companyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load company %d: %w", companyID, err)
	}
	return c, nil
}

// LockCompanyTx takes the company row lock. Period close and system-account
// provisioning serialize on it.
func LockCompanyTx(ctx context.Context, tx pgx.Tx, companyID int) (*Company, error) {
	c, err := scanCompany(tx.QueryRow(ctx,
		"SELECT"+companyColumns+" FROM companies WHERE id = $1 FOR UPDATE", companyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "company %d not found", companyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock company %d: %w", companyID, err)
	}
	return c, nil
}

// GetAccountTx loads an account and enforces tenant scope: an id that exists
// under another company is a scope violation, not a not-found.
func GetAccountTx(ctx context.Context, tx pgx.Tx, companyID, accountID int) (*Account, error) {
	var a Account
	var ownerID int
	err := tx.QueryRow(ctx, `
		SELECT id, company_id, code, name, type, normal_balance,
		       report_group, cashflow_activity, is_active, is_banking, is_credit_card
		FROM accounts
		WHERE id = $1
	`, accountID).Scan(&a.ID, &ownerID, &a.Code, &a.Name, &a.Type, &a.NormalBalance,
		&a.ReportGroup, &a.CashflowActivity, &a.IsActive, &a.IsBanking, &a.IsCreditCard)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.E(apperr.NotFound, "account %d not found", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %d: %w", accountID, err)
	}
	if ownerID != companyID {
		return nil, apperr.E(apperr.TenantScopeViolation,
			"account %d does not belong to company %d", accountID, companyID)
	}
	a.CompanyID = ownerID
	return &a, nil
}

// SystemAccount names an account the posting engine provisions on demand.
type SystemAccount string

const (
	SystemGRNI SystemAccount = "GRNI"
	SystemPPV  SystemAccount = "PPV"
)

// EnsureSystemAccountTx returns the id of the GRNI or PPV account, creating
// it and caching the id on the company row the first time it is needed.
// Callers must hold the company row lock when the account may be created.
func EnsureSystemAccountTx(ctx context.Context, tx pgx.Tx, company *Company, which SystemAccount) (int, error) {
	var cached *int
	var code, name, column string
	var accType AccountType
	switch which {
	case SystemGRNI:
		cached, code, name, column = company.GRNIAccountID, "2150", "Goods Received Not Invoiced", "grni_account_id"
		accType = AccountLiability
	case SystemPPV:
		cached, code, name, column = company.PPVAccountID, "5150", "Purchase Price Variance", "ppv_account_id"
		accType = AccountExpense
	default:
		return 0, apperr.E(apperr.InvalidInput, "unknown system account %q", which)
	}
	if cached != nil {
		return *cached, nil
	}

	var id int
	err := tx.QueryRow(ctx, `
		INSERT INTO accounts (company_id, code, name, type, normal_balance, is_active)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (company_id, code) DO UPDATE SET is_active = true
		RETURNING id
	`, company.ID, code, name, accType, NormalBalanceFor(accType)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to provision %s account: %w", which, err)
	}

	if _, err := tx.Exec(ctx,
		fmt.Sprintf("UPDATE companies SET %s = $1 WHERE id = $2", column), id, company.ID); err != nil {
		return 0, fmt.Errorf("failed to cache %s account on company: %w", which, err)
	}
	switch which {
	case SystemGRNI:
		company.GRNIAccountID = &id
	case SystemPPV:
		company.PPVAccountID = &id
	}
	return id, nil
}

// AccountNet is a per-account net (debit − credit) over all posted lines.
// Used by tests and the trial-balance style projection read.
type AccountNet struct {
	AccountID int
	Code      string
	Name      string
	Net       decimal.Decimal
}

// GetAccountNets sums journal lines per account for a company.
func GetAccountNets(ctx context.Context, pool *pgxpool.Pool, companyID int) ([]AccountNet, error) {
	rows, err := pool.Query(ctx, `
		SELECT a.id, a.code, a.name,
		       COALESCE(SUM(jl.debit), 0) - COALESCE(SUM(jl.credit), 0) AS net
		FROM accounts a
		LEFT JOIN journal_lines jl ON jl.account_id = a.id
		WHERE a.company_id = $1
		GROUP BY a.id, a.code, a.name
		ORDER BY a.code
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var nets []AccountNet
	for rows.Next() {
		var n AccountNet
		if err := rows.Scan(&n.AccountID, &n.Code, &n.Name, &n.Net); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		nets = append(nets, n)
	}
	return nets, rows.Err()
}
