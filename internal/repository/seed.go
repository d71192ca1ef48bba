package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// ReferenceSeed is the JSON shape of a reference-data seed file.
type ReferenceSeed struct {
	Currencies []struct {
		ResourceID      string `json:"resource_id"`
		Code            string `json:"code"`
		MinorUnit       int    `json:"minor_unit"`
		Threshold       string `json:"threshold"`
		PhoneCheck      bool   `json:"phone_check"`
		PurposeRequired bool   `json:"purpose_required"`
		UsesLocalCode   bool   `json:"uses_local_code"`
		UsesSwiftCode   bool   `json:"uses_swift_code"`
		AddressCheck    bool   `json:"address_check"`
		FxManaged       bool   `json:"fx_managed"`
	} `json:"currencies"`
	Countries []struct {
		Alpha2       string `json:"alpha2"`
		PhoneCode    string `json:"phone_code"`
		RequiresIBAN bool   `json:"requires_iban"`
	} `json:"countries"`
	Banks []struct {
		ResourceID  string `json:"resource_id"`
		CountryCode string `json:"country_code"`
		BankCode    string `json:"bank_code"`
		SwiftCode   string `json:"swift_code"`
	} `json:"banks"`
	Entitlements []struct {
		UserID     string `json:"user_id"`
		ResourceID string `json:"resource_id"`
		FeatureID  string `json:"feature_id"`
		Action     string `json:"action"`
	} `json:"entitlements"`
	CompanyAccounts []struct {
		CompanyID       int64  `json:"company_id"`
		AccountNumber   string `json:"account_number"`
		AccountCurrency string `json:"account_currency"`
	} `json:"company_accounts"`
	CompanyPolicies []struct {
		CompanyID         int64  `json:"company_id"`
		RejectFileOnError string `json:"reject_file_on_error"`
	} `json:"company_policies"`
	ResourceConfigs []struct {
		ResourceID  string `json:"resource_id"`
		ConfigCode  string `json:"config_code"`
		ConfigValue string `json:"config_value"`
	} `json:"resource_configs"`
}

// ReferenceDataEmpty reports whether the currency directory has no rows yet.
func ReferenceDataEmpty(ctx context.Context, db *sql.DB) (bool, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ref_currencies").Scan(&n); err != nil {
		return false, fmt.Errorf("count reference data: %w", err)
	}
	return n == 0, nil
}

// SeedReferenceData loads a JSON seed file into the reference tables in one
// transaction.
func SeedReferenceData(ctx context.Context, db *sql.DB, data []byte) error {
	var seed ReferenceSeed
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("unmarshal reference seed: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, c := range seed.Currencies {
		threshold := c.Threshold
		if threshold == "" {
			threshold = "0"
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO ref_currencies
			(resource_id, code, minor_unit, threshold, phone_check, purpose_required,
			 uses_local_code, uses_swift_code, address_check, fx_managed)
			VALUES (?,?,?,?,?,?,?,?,?,?)`,
			c.ResourceID, c.Code, c.MinorUnit, threshold, c.PhoneCheck,
			c.PurposeRequired, c.UsesLocalCode, c.UsesSwiftCode, c.AddressCheck, c.FxManaged)
		if err != nil {
			return fmt.Errorf("seed currency %s: %w", c.Code, err)
		}
	}
	for _, c := range seed.Countries {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO ref_countries (alpha2, phone_code, requires_iban) VALUES (?,?,?)",
			c.Alpha2, c.PhoneCode, c.RequiresIBAN)
		if err != nil {
			return fmt.Errorf("seed country %s: %w", c.Alpha2, err)
		}
	}
	for _, b := range seed.Banks {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO ref_banks (resource_id, country_code, bank_code, swift_code) VALUES (?,?,?,?)",
			b.ResourceID, b.CountryCode, b.BankCode, b.SwiftCode)
		if err != nil {
			return fmt.Errorf("seed bank %s/%s: %w", b.CountryCode, b.BankCode, err)
		}
	}
	for _, e := range seed.Entitlements {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO ref_entitlements (user_id, resource_id, feature_id, action) VALUES (?,?,?,?)",
			e.UserID, e.ResourceID, e.FeatureID, e.Action)
		if err != nil {
			return fmt.Errorf("seed entitlement for %s: %w", e.UserID, err)
		}
	}
	for _, a := range seed.CompanyAccounts {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO ref_company_accounts (company_id, account_number, account_currency) VALUES (?,?,?)",
			a.CompanyID, a.AccountNumber, a.AccountCurrency)
		if err != nil {
			return fmt.Errorf("seed account %s: %w", a.AccountNumber, err)
		}
	}
	for _, p := range seed.CompanyPolicies {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO ref_company_policies (company_id, reject_file_on_error) VALUES (?,?)",
			p.CompanyID, p.RejectFileOnError)
		if err != nil {
			return fmt.Errorf("seed policy for company %d: %w", p.CompanyID, err)
		}
	}
	for _, rc := range seed.ResourceConfigs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO ref_resource_configs (resource_id, config_code, config_value) VALUES (?,?,?)",
			rc.ResourceID, rc.ConfigCode, rc.ConfigValue)
		if err != nil {
			return fmt.Errorf("seed config %s/%s: %w", rc.ResourceID, rc.ConfigCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}
