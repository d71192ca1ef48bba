// Package validation implements the per-record rule chain for bulk payment
// files. Each rule is a pure function over one credit-transfer line and the
// file-level context; the chain owns short-circuiting and the reject-record
// versus abort-file policy.
package validation

import (
	"time"

	"github.com/wakala/bulkpay/internal/lookup"
)

// Context is the file-level state shared by every rule evaluation. It is
// built once per file; rules never reach out to collaborators themselves.
type Context struct {
	ResourceID      string
	FeatureID       string
	AccountCurrency string
	Policy          lookup.Policy
	Currencies      lookup.CurrencyDirectory
	Countries       lookup.CountryDirectory
	Banks           lookup.BankDirectory
	BatchBooking    bool
	PayrollResource bool
	Now             time.Time
}

// Disposition is the final outcome of validating one record.
type Disposition int

const (
	// Accepted means the record carries no validation errors.
	Accepted Disposition = iota
	// RejectRecord means the record is rejected but sibling records are
	// still processed.
	RejectRecord
	// AbortFile means the whole file must be discarded and remaining
	// records are not evaluated.
	AbortFile
)

func (d Disposition) String() string {
	switch d {
	case Accepted:
		return "ACCEPTED"
	case RejectRecord:
		return "REJECT_RECORD"
	case AbortFile:
		return "ABORT_FILE"
	default:
		return "UNKNOWN"
	}
}

// Outcome carries a record's accumulated errors and its disposition.
type Outcome struct {
	Errors      []string
	Disposition Disposition
}

func (o Outcome) OK() bool {
	return o.Disposition == Accepted
}
