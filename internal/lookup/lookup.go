// Package lookup loads the read-only reference data the validation chain
// depends on. Every directory is fetched once per file, never per record.
package lookup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is one row of the currency directory. The boolean flags replace
// the per-currency rule sets that used to be hard-coded: which checks apply
// to a currency is reference data, not code.
type Currency struct {
	Code            string
	MinorUnit       int
	Threshold       decimal.Decimal
	PhoneCheck      bool
	PurposeRequired bool
	UsesLocalCode   bool
	UsesSwiftCode   bool
	AddressCheck    bool
	FxManaged       bool
}

type Country struct {
	Alpha2       string
	PhoneCode    string
	RequiresIBAN bool
}

type Bank struct {
	CountryCode string
	BankCode    string
	SwiftCode   string
}

// Entitlement is the resource/feature/action set granted to one user.
type Entitlement struct {
	UserID     string
	ResourceID string
	FeatureID  string
	Actions    []string
}

func (e Entitlement) Allows(action string) bool {
	for _, a := range e.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// CurrencyDirectory and friends are snapshots keyed for O(1) record checks.
type CurrencyDirectory map[string]Currency

type CountryDirectory map[string]Country

// BankDirectory keys on country code; values are the banks reachable for the
// file's resource in that country.
type BankDirectory map[string][]Bank

func (d BankDirectory) HasBankCode(country, bankCode string) bool {
	for _, b := range d[country] {
		if b.BankCode == bankCode {
			return true
		}
	}
	return false
}

func (d BankDirectory) HasSwiftCode(country, swiftCode string) bool {
	for _, b := range d[country] {
		if b.SwiftCode == swiftCode {
			return true
		}
	}
	return false
}

// Policy is the per-company reject-file-on-error configuration code.
type Policy string

const (
	// PolicyAbortFile rejects the whole file on the first validation error.
	PolicyAbortFile Policy = "01"
	// PolicyRejectRecord rejects only the failing record and continues.
	PolicyRejectRecord Policy = "02"
)

// ErrUnsupportedPolicy is returned for any policy code other than the two
// supported ones. An unknown code is a configuration fault, never a default.
var ErrUnsupportedPolicy = errors.New("unsupported reject-file-on-error policy code")

func ParsePolicy(code string) (Policy, error) {
	switch Policy(code) {
	case PolicyAbortFile, PolicyRejectRecord:
		return Policy(code), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPolicy, code)
	}
}

// Loader reads reference data from the seeded sqlite tables.
type Loader struct {
	db *sql.DB
}

func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

func (l *Loader) Currencies(ctx context.Context, resourceID string) (CurrencyDirectory, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT code, minor_unit, threshold, phone_check, purpose_required,
		       uses_local_code, uses_swift_code, address_check, fx_managed
		FROM ref_currencies WHERE resource_id = ?`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("load currencies: %w", err)
	}
	defer rows.Close()

	dir := make(CurrencyDirectory)
	for rows.Next() {
		var c Currency
		var threshold string
		if err := rows.Scan(&c.Code, &c.MinorUnit, &threshold, &c.PhoneCheck,
			&c.PurposeRequired, &c.UsesLocalCode, &c.UsesSwiftCode,
			&c.AddressCheck, &c.FxManaged); err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		c.Threshold, err = decimal.NewFromString(threshold)
		if err != nil {
			return nil, fmt.Errorf("currency %s threshold: %w", c.Code, err)
		}
		dir[c.Code] = c
	}
	return dir, rows.Err()
}

func (l *Loader) Countries(ctx context.Context) (CountryDirectory, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT alpha2, phone_code, requires_iban FROM ref_countries")
	if err != nil {
		return nil, fmt.Errorf("load countries: %w", err)
	}
	defer rows.Close()

	dir := make(CountryDirectory)
	for rows.Next() {
		var c Country
		if err := rows.Scan(&c.Alpha2, &c.PhoneCode, &c.RequiresIBAN); err != nil {
			return nil, fmt.Errorf("scan country: %w", err)
		}
		dir[c.Alpha2] = c
	}
	return dir, rows.Err()
}

func (l *Loader) Banks(ctx context.Context, resourceID string) (BankDirectory, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT country_code, bank_code, swift_code FROM ref_banks WHERE resource_id = ?",
		resourceID)
	if err != nil {
		return nil, fmt.Errorf("load banks: %w", err)
	}
	defer rows.Close()

	dir := make(BankDirectory)
	for rows.Next() {
		var b Bank
		if err := rows.Scan(&b.CountryCode, &b.BankCode, &b.SwiftCode); err != nil {
			return nil, fmt.Errorf("scan bank: %w", err)
		}
		dir[b.CountryCode] = append(dir[b.CountryCode], b)
	}
	return dir, rows.Err()
}

// Entitlement returns the resource features granted to a user, or nil when
// the user has none.
func (l *Loader) Entitlement(ctx context.Context, userID string) (*Entitlement, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT resource_id, feature_id, action FROM ref_entitlements WHERE user_id = ?",
		userID)
	if err != nil {
		return nil, fmt.Errorf("load entitlement: %w", err)
	}
	defer rows.Close()

	var ent *Entitlement
	for rows.Next() {
		var resource, feature, action string
		if err := rows.Scan(&resource, &feature, &action); err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		if ent == nil {
			ent = &Entitlement{UserID: userID, ResourceID: resource, FeatureID: feature}
		}
		ent.Actions = append(ent.Actions, action)
	}
	return ent, rows.Err()
}

// CompanyAccounts returns the debtor accounts a company may draw on,
// keyed by account number with the account currency as value.
func (l *Loader) CompanyAccounts(ctx context.Context, companyID int64) (map[string]string, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT account_number, account_currency FROM ref_company_accounts WHERE company_id = ?",
		companyID)
	if err != nil {
		return nil, fmt.Errorf("load company accounts: %w", err)
	}
	defer rows.Close()

	accounts := make(map[string]string)
	for rows.Next() {
		var number, currency string
		if err := rows.Scan(&number, &currency); err != nil {
			return nil, fmt.Errorf("scan company account: %w", err)
		}
		accounts[number] = currency
	}
	return accounts, rows.Err()
}

// CompanyPolicy resolves the company's reject-file-on-error code.
func (l *Loader) CompanyPolicy(ctx context.Context, companyID int64) (Policy, error) {
	var code string
	err := l.db.QueryRowContext(ctx,
		"SELECT reject_file_on_error FROM ref_company_policies WHERE company_id = ?",
		companyID).Scan(&code)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("company %d: no reject-file-on-error policy configured", companyID)
	}
	if err != nil {
		return "", fmt.Errorf("load company policy: %w", err)
	}
	return ParsePolicy(code)
}

// MaxChildTransactions reads the per-resource transaction-count limit.
// Zero means unlimited.
func (l *Loader) MaxChildTransactions(ctx context.Context, resourceID string) (int, error) {
	var limit int
	err := l.db.QueryRowContext(ctx, `
		SELECT config_value FROM ref_resource_configs
		WHERE resource_id = ? AND config_code = 'maxChildTransactionCount'`,
		resourceID).Scan(&limit)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load transaction limit: %w", err)
	}
	return limit, nil
}
