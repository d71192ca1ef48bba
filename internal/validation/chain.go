package validation

import (
	"github.com/wakala/bulkpay/internal/bulkfile"
	"github.com/wakala/bulkpay/internal/lookup"
)

// Chain is the ordered set of rule categories applied to every record.
type Chain struct {
	categories []category
}

// NewChain builds the default rule chain. Category order matters only for
// the order errors accumulate in; every category always gets its turn.
func NewChain() *Chain {
	return &Chain{
		categories: []category{
			{name: "ibanCountry", rules: []Rule{checkCountryCode, checkIBAN}},
			{name: "batchPayment", rules: []Rule{checkBatchBookingContract, checkFxContractRequired}},
			{name: "currencyAmount", rules: []Rule{checkCurrencyMinorUnit, checkAmountThreshold}},
			{name: "bankCode", rules: []Rule{checkBankCode}},
			{name: "purposeCode", rules: []Rule{checkPurposeCode}},
			{name: "creditorContact", rules: []Rule{checkCreditorName, checkPhoneCountryCode}},
			{name: "address", rules: []Rule{checkAddressLines}},
		},
	}
}

// Validate runs the chain over one record. Within a category the first
// failing rule stops the category's later rules; sibling categories still
// run so the record accumulates every applicable error before disposition.
func (c *Chain) Validate(rec *bulkfile.CreditTransfer, fctx *Context) Outcome {
	var errs []string
	for _, cat := range c.categories {
		for _, rule := range cat.rules {
			if found := rule(rec, fctx); len(found) > 0 {
				errs = append(errs, found...)
				break
			}
		}
	}

	if len(errs) == 0 {
		return Outcome{Disposition: Accepted}
	}
	return Outcome{Errors: errs, Disposition: dispositionFor(fctx)}
}

func dispositionFor(fctx *Context) Disposition {
	if fctx.Policy == lookup.PolicyAbortFile {
		return AbortFile
	}
	return RejectRecord
}
