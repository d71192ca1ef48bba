package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/wakala/bulkpay/internal/bulkfile"
	"github.com/wakala/bulkpay/internal/lookup"
)

func testContext(policy lookup.Policy) *Context {
	return &Context{
		ResourceID: "CROSS_BORDER",
		FeatureID:  "BULK_UPLOAD",
		Policy:     policy,
		Currencies: lookup.CurrencyDirectory{
			"USD": {Code: "USD", MinorUnit: 2, Threshold: decimal.RequireFromString("1000000"), UsesSwiftCode: true},
			"JPY": {Code: "JPY", MinorUnit: 0, Threshold: decimal.RequireFromString("120000000"), UsesSwiftCode: true, FxManaged: true},
			"KES": {Code: "KES", MinorUnit: 2, UsesLocalCode: true, PhoneCheck: true, PurposeRequired: true},
			"EUR": {Code: "EUR", MinorUnit: 2, UsesSwiftCode: true, AddressCheck: true},
		},
		Countries: lookup.CountryDirectory{
			"US": {Alpha2: "US", PhoneCode: "1"},
			"JP": {Alpha2: "JP", PhoneCode: "81"},
			"KE": {Alpha2: "KE", PhoneCode: "254"},
			"DE": {Alpha2: "DE", PhoneCode: "49", RequiresIBAN: true},
		},
		Banks: lookup.BankDirectory{
			"US": {{CountryCode: "US", SwiftCode: "CHASUS33"}},
			"JP": {{CountryCode: "JP", SwiftCode: "BOTKJPJT"}},
			"KE": {{CountryCode: "KE", BankCode: "01", SwiftCode: "KCBLKENX"}},
			"DE": {{CountryCode: "DE", SwiftCode: "DEUTDEFF"}},
		},
		Now: time.Now(),
	}
}

func usdTransfer() bulkfile.CreditTransfer {
	return bulkfile.CreditTransfer{
		Amount:            decimal.RequireFromString("2500.50"),
		Currency:          "USD",
		CreditorName:      "Acme Supplies Inc",
		CreditorAccount:   "0044556677",
		CreditorCountry:   "US",
		CreditorSwiftCode: "CHASUS33",
	}
}

func TestValidateAcceptsCleanRecord(t *testing.T) {
	chain := NewChain()
	rec := usdTransfer()

	out := chain.Validate(&rec, testContext(lookup.PolicyRejectRecord))

	assert.True(t, out.OK())
	assert.Empty(t, out.Errors)
	assert.Equal(t, Accepted, out.Disposition)
}

func TestValidateRuleFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*bulkfile.CreditTransfer)
		errPart string
	}{
		{
			name:    "unsupported country",
			mutate:  func(r *bulkfile.CreditTransfer) { r.CreditorCountry = "XX" },
			errPart: "country XX is not supported",
		},
		{
			name: "iban country without iban",
			mutate: func(r *bulkfile.CreditTransfer) {
				r.CreditorCountry = "DE"
				r.CreditorAccount = "not-an-iban"
				r.CreditorSwiftCode = "DEUTDEFF"
			},
			errPart: "IBAN validation failed",
		},
		{
			name:    "unsupported currency",
			mutate:  func(r *bulkfile.CreditTransfer) { r.Currency = "XOF" },
			errPart: "currency XOF is not supported",
		},
		{
			name: "fractional amount for zero minor unit",
			mutate: func(r *bulkfile.CreditTransfer) {
				r.Currency = "JPY"
				r.CreditorCountry = "JP"
				r.CreditorSwiftCode = "BOTKJPJT"
				r.FxContractID = "FX-100"
				r.Amount = decimal.RequireFromString("100.25")
			},
			errPart: "currency minor unit is 0",
		},
		{
			name:    "amount over threshold",
			mutate:  func(r *bulkfile.CreditTransfer) { r.Amount = decimal.RequireFromString("1000000.01") },
			errPart: "greater than threshold",
		},
		{
			name:    "unknown swift code",
			mutate:  func(r *bulkfile.CreditTransfer) { r.CreditorSwiftCode = "NOPEUS00" },
			errPart: "swift code validation failed",
		},
		{
			name: "missing fx contract for managed currency",
			mutate: func(r *bulkfile.CreditTransfer) {
				r.Currency = "JPY"
				r.CreditorCountry = "JP"
				r.CreditorSwiftCode = "BOTKJPJT"
				r.Amount = decimal.RequireFromString("100")
			},
			errPart: "contract id is mandatory",
		},
		{
			name:    "empty creditor name",
			mutate:  func(r *bulkfile.CreditTransfer) { r.CreditorName = "  " },
			errPart: "creditor name must not be empty",
		},
	}

	chain := NewChain()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := usdTransfer()
			tt.mutate(&rec)

			out := chain.Validate(&rec, testContext(lookup.PolicyRejectRecord))

			assert.False(t, out.OK())
			assert.Equal(t, RejectRecord, out.Disposition)
			found := false
			for _, e := range out.Errors {
				if strings.Contains(e, tt.errPart) {
					found = true
				}
			}
			assert.True(t, found, "expected an error containing %q, got %v", tt.errPart, out.Errors)
		})
	}
}

func TestValidateLocalBankAndPhoneRules(t *testing.T) {
	chain := NewChain()
	ctx := testContext(lookup.PolicyRejectRecord)

	rec := bulkfile.CreditTransfer{
		Amount:           decimal.RequireFromString("5000"),
		Currency:         "KES",
		CreditorName:     "Jane Wanjiku",
		CreditorAccount:  "1122334455",
		CreditorCountry:  "KE",
		CreditorBankCode: "01",
		CreditorPhone:    "254-722000111",
		PurposeCode:      "SALA",
	}
	assert.True(t, chain.Validate(&rec, ctx).OK())

	rec.CreditorPhone = "255-722000111"
	out := chain.Validate(&rec, ctx)
	assert.False(t, out.OK())
	assert.Contains(t, out.Errors[0], "phone code 255 does not match")

	rec.CreditorPhone = ""
	out = chain.Validate(&rec, ctx)
	assert.False(t, out.OK())
	assert.Contains(t, out.Errors[0], "phone number must not be empty")

	rec.CreditorPhone = "254-722000111"
	rec.PurposeCode = ""
	out = chain.Validate(&rec, ctx)
	assert.False(t, out.OK())
	assert.Contains(t, out.Errors[0], "purpose code is mandatory")

	rec.PurposeCode = "SALA"
	rec.CreditorBankCode = "99"
	out = chain.Validate(&rec, ctx)
	assert.False(t, out.OK())
	assert.Contains(t, out.Errors[0], "bank code validation failed")
}

func TestValidateAddressLines(t *testing.T) {
	chain := NewChain()
	ctx := testContext(lookup.PolicyRejectRecord)

	rec := usdTransfer()
	rec.Currency = "EUR"

	rec.AddressLines = []string{"Hauptstrasse 1;", "10115;Berlin", ";DE"}
	assert.True(t, chain.Validate(&rec, ctx).OK())

	rec.AddressLines = []string{"Hauptstrasse 1;Berlin"}
	out := chain.Validate(&rec, ctx)
	assert.False(t, out.OK())
	assert.Contains(t, out.Errors[0], "invalid address line")

	rec.AddressLines = []string{"a;;c;d"}
	out = chain.Validate(&rec, ctx)
	assert.False(t, out.OK())
}

func TestValidateAccumulatesAcrossCategories(t *testing.T) {
	chain := NewChain()
	rec := usdTransfer()
	rec.CreditorName = ""
	rec.CreditorSwiftCode = ""

	out := chain.Validate(&rec, testContext(lookup.PolicyRejectRecord))

	assert.Len(t, out.Errors, 2)
}

func TestValidateShortCircuitsWithinCategory(t *testing.T) {
	chain := NewChain()
	rec := usdTransfer()
	// An unsupported currency fails the first currencyAmount rule; the
	// threshold rule of the same category must not add a second error.
	rec.Currency = "XOF"
	rec.Amount = decimal.RequireFromString("999999999")

	out := chain.Validate(&rec, testContext(lookup.PolicyRejectRecord))

	assert.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "not supported")
}

func TestValidateDispositionFollowsPolicy(t *testing.T) {
	chain := NewChain()
	rec := usdTransfer()
	rec.CreditorName = ""

	out := chain.Validate(&rec, testContext(lookup.PolicyAbortFile))
	assert.Equal(t, AbortFile, out.Disposition)

	out = chain.Validate(&rec, testContext(lookup.PolicyRejectRecord))
	assert.Equal(t, RejectRecord, out.Disposition)
}
