package validation

import (
	"fmt"
	"strings"

	"github.com/wakala/bulkpay/internal/bulkfile"
)

// Rule checks one aspect of a credit-transfer line. A nil or empty result
// means the check passed.
type Rule func(rec *bulkfile.CreditTransfer, fctx *Context) []string

// category groups rules that evaluate as a short-circuiting disjunction:
// the first failing rule stops the later rules of the same category for
// that record. Sibling categories still run, so one record can accumulate
// errors from several categories.
type category struct {
	name  string
	rules []Rule
}

// --- IBAN / country ---

func checkIBAN(rec *bulkfile.CreditTransfer, fctx *Context) []string {
	country, ok := fctx.Countries[rec.CreditorCountry]
	if !ok || !country.RequiresIBAN {
		return nil
	}
	if isValidIBAN(rec.CreditorAccount, rec.CreditorCountry) {
		return nil
	}
	return []string{fmt.Sprintf("IBAN validation failed for account %s destination country %s",
		rec.CreditorAccount, rec.CreditorCountry)}
}

func checkCountryCode(rec *bulkfile.CreditTransfer, fctx *Context) []string {
	if _, ok := fctx.Countries[rec.CreditorCountry]; !ok {
		return []string{fmt.Sprintf("destination country %s is not supported for resource %s",
			rec.CreditorCountry, fctx.ResourceID)}
	}
	return nil
}

// isValidIBAN performs the structural check: two letters, two digits, then
// 11 to 30 alphanumerics, with the country prefix matching the destination.
func isValidIBAN(account, country string) bool {
	if len(account) < 15 || len(account) > 34 {
		return false
	}
	if !strings.HasPrefix(account, country) {
		return false
	}
	for i, r := range account {
		switch {
		case i < 2:
			if r < 'A' || r > 'Z' {
				return false
			}
		case i < 4:
			if r < '0' || r > '9' {
				return false
			}
		default:
			if !(r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
				return false
			}
		}
	}
	return true
}

// --- batch booking / payment code ---

func checkBatchBookingContract(rec *bulkfile.CreditTransfer, fctx *Context) []string {
	// A payroll batch-booking instruction may not pin an FX contract: the
	// whole batch settles as one booking and per-line contracts are
	// unbookable.
	if fctx.PayrollResource && fctx.BatchBooking && rec.FxContractID != "" {
		return []string{fmt.Sprintf("contract identification must be empty for batch booking under resource %s",
			fctx.ResourceID)}
	}
	return nil
}

func checkFxContractRequired(rec *bulkfile.CreditTransfer, fctx *Context) []string {
	cur, ok := fctx.Currencies[rec.Currency]
	if !ok || !cur.FxManaged {
		return nil
	}
	if rec.FxContractID == "" {
		return []string{fmt.Sprintf("contract id is mandatory for FX-managed transaction currency %s",
			rec.Currency)}
	}
	return nil
}

// --- currency / amount ---

func checkCurrencyMinorUnit(rec *bulkfile.CreditTransfer, fctx *Context) []string {
	cur, ok := fctx.Currencies[rec.Currency]
	if !ok {
		return []string{fmt.Sprintf("transaction currency %s is not supported for resource %s",
			rec.Currency, fctx.ResourceID)}
	}
	if cur.MinorUnit == 0 && rec.Amount.Exponent() < 0 && !rec.Amount.Equal(rec.Amount.Truncate(0)) {
		return []string{fmt.Sprintf("currency minor unit is 0 for currency code %s, fractional amount %s not allowed",
			rec.Currency, rec.Amount)}
	}
	return nil
}

func checkAmountThreshold(rec *bulkfile.CreditTransfer, fctx *Context) []string {
	cur, ok := fctx.Currencies[rec.Currency]
	if !ok || cur.Threshold.IsZero() {
		return nil
	}
	if rec.Amount.GreaterThan(cur.Threshold) {
		return []string{fmt.Sprintf("transaction amount cannot be greater than threshold amount %s %s",
			cur.Threshold, rec.Currency)}
	}
	return nil
}

// --- bank / SWIFT code ---

func checkBankCode(rec *bulkfile.CreditTransfer, fctx *Context) []string {
	cur, ok := fctx.Currencies[rec.Currency]
	if !ok {
		return nil
	}
	switch {
	case cur.UsesLocalCode:
		if rec.CreditorBankCode == "" || !fctx.Banks.HasBankCode(rec.CreditorCountry, rec.CreditorBankCode) {
			return []string{fmt.Sprintf("bank code validation failed for %s in country %s",
				rec.CreditorBankCode, rec.CreditorCountry)}
		}
	case cur.UsesSwiftCode:
		if rec.CreditorSwiftCode == "" || !fctx.Banks.HasSwiftCode(rec.CreditorCountry, rec.CreditorSwiftCode) {
			return []string{fmt.Sprintf("swift code validation failed for %s in country %s",
				rec.CreditorSwiftCode, rec.CreditorCountry)}
		}
	}
	return nil
}

// --- purpose code ---

func checkPurposeCode(rec *bulkfile.CreditTransfer, fctx *Context) []string {
	cur, ok := fctx.Currencies[rec.Currency]
	if !ok || !cur.PurposeRequired {
		return nil
	}
	if rec.PurposeCode == "" {
		return []string{fmt.Sprintf("purpose code is mandatory for transaction currency %s", rec.Currency)}
	}
	return nil
}

// --- creditor name / phone ---

func checkCreditorName(rec *bulkfile.CreditTransfer, _ *Context) []string {
	if strings.TrimSpace(rec.CreditorName) == "" {
		return []string{"creditor name must not be empty"}
	}
	return nil
}

func checkPhoneCountryCode(rec *bulkfile.CreditTransfer, fctx *Context) []string {
	cur, ok := fctx.Currencies[rec.Currency]
	if !ok || !cur.PhoneCheck {
		return nil
	}
	if rec.CreditorPhone == "" {
		return []string{fmt.Sprintf("phone number must not be empty for transaction currency %s", rec.Currency)}
	}
	code, _, found := strings.Cut(rec.CreditorPhone, "-")
	if !found {
		return []string{fmt.Sprintf("phone number %s has no country code prefix", rec.CreditorPhone)}
	}
	country, ok := fctx.Countries[rec.CreditorCountry]
	if !ok || country.PhoneCode != code {
		return []string{fmt.Sprintf("phone code %s does not match creditor agent country %s for currency %s",
			code, rec.CreditorCountry, rec.Currency)}
	}
	return nil
}

// --- address lines ---

// checkAddressLines applies only to the configured currency subset. The
// joined lines must decompose into exactly four non-empty semicolon
// delimited segments.
func checkAddressLines(rec *bulkfile.CreditTransfer, fctx *Context) []string {
	cur, ok := fctx.Currencies[rec.Currency]
	if !ok || !cur.AddressCheck {
		return nil
	}
	segments := strings.Split(strings.Join(rec.AddressLines, ""), ";")
	if len(segments) != 4 {
		return []string{fmt.Sprintf("invalid address line for transaction currency %s", rec.Currency)}
	}
	for _, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			return []string{fmt.Sprintf("invalid address line for transaction currency %s", rec.Currency)}
		}
	}
	return nil
}
