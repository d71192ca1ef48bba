// Package bulkfile defines the deserialized form of an inbound bulk payment
// instruction file. Upstream parsing and transport are out of scope; the
// pipeline consumes only this structure.
package bulkfile

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Document is one deserialized bulk file: a group header plus one payment
// instruction per batch.
type Document struct {
	Header       GroupHeader          `json:"group_header"`
	Instructions []PaymentInstruction `json:"payment_information"`
}

// GroupHeader carries the file-level fields the pipeline needs.
type GroupHeader struct {
	FileReference     string   `json:"file_reference"`
	FileName          string   `json:"file_name"`
	FileStatusCode    string   `json:"file_status"`
	ErrorDescriptions []string `json:"error_descriptions,omitempty"`
	NumberOfBatches   int      `json:"number_of_batches"`
	CreationDateTime  string   `json:"creation_date_time,omitempty"`
}

// PaymentInstruction is one payment-information group: common debtor-side
// fields plus its credit-transfer lines.
type PaymentInstruction struct {
	InstructionID          string           `json:"payment_information_identification"`
	DebtorAccount          string           `json:"debtor_account"`
	BatchBooking           bool             `json:"batch_booking"`
	RequestedExecutionDate string           `json:"requested_execution_date"`
	BulkStatusCode         string           `json:"bulk_status"`
	ErrorDescriptions      []string         `json:"error_descriptions,omitempty"`
	Transfers              []CreditTransfer `json:"credit_transfer_transaction_information"`
}

// CreditTransfer is one payment line within an instruction.
type CreditTransfer struct {
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	CreditorName      string          `json:"creditor_name"`
	CreditorAccount   string          `json:"creditor_account"`
	CreditorCountry   string          `json:"creditor_country"`
	CreditorBankCode  string          `json:"creditor_bank_code,omitempty"`
	CreditorSwiftCode string          `json:"creditor_swift_code,omitempty"`
	CreditorPhone     string          `json:"creditor_phone,omitempty"`
	AddressLines      []string        `json:"address_lines,omitempty"`
	PurposeCode       string          `json:"purpose_code,omitempty"`
	CustomerReference string          `json:"customer_reference,omitempty"`
	PaymentDetails    string          `json:"payment_details,omitempty"`
	FxContractID      string          `json:"fx_contract_id,omitempty"`
	FxRate            decimal.Decimal `json:"fx_rate,omitempty"`
	StatusCode        string          `json:"transaction_status"`
	ErrorDescriptions []string        `json:"error_descriptions,omitempty"`
	ChargeBearer      string          `json:"charge_bearer,omitempty"`
	AdviceDelivery    string          `json:"advice_delivery,omitempty"`
}

// Decode unmarshals a deserialized bulk document and checks the minimum the
// pipeline depends on: a file reference must be present.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode bulk document: %w", err)
	}
	if doc.Header.FileReference == "" {
		return nil, fmt.Errorf("decode bulk document: missing file reference")
	}
	return &doc, nil
}
