package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BulkStatus string

const (
	BulkAccepted BulkStatus = "ACCEPTED"
	BulkRejected BulkStatus = "REJECTED"
	BulkPartial  BulkStatus = "PARTIAL"
	BulkDeleted  BulkStatus = "DELETED"
)

// BulkStatusFromCode maps a wire status code to a batch status.
func BulkStatusFromCode(code string) BulkStatus {
	switch code {
	case CodeAccepted:
		return BulkAccepted
	case CodePartial:
		return BulkPartial
	default:
		return BulkRejected
	}
}

// RollupBulkStatus derives a batch status purely from the statuses of its
// children. It is the only source of truth for the batch outcome.
func RollupBulkStatus(children []RecordStatus) BulkStatus {
	if len(children) == 0 {
		return BulkDeleted
	}
	deleted := 0
	for _, st := range children {
		if st == RecordDeleted {
			deleted++
		}
	}
	switch deleted {
	case 0:
		return BulkAccepted
	case len(children):
		return BulkDeleted
	default:
		return BulkPartial
	}
}

// PaymentBatch is one payment-information group of a file. It owns 1..N
// PaymentRecord children; TransactionID is the storage-generated key.
type PaymentBatch struct {
	TransactionID       int64           `json:"transaction_id"`
	FileUploadID        int64           `json:"file_upload_id"`
	BankReferenceID     string          `json:"bank_reference_id"`
	DebtorAccount       string          `json:"debtor_account"`
	AccountCurrency     string          `json:"account_currency"`
	TransactionCurrency string          `json:"transaction_currency"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	HighestAmount       decimal.Decimal `json:"highest_amount"`
	TotalChild          int             `json:"total_child"`
	RejectedChild       int             `json:"rejected_child"`
	BatchBooking        bool            `json:"batch_booking"`
	RecipientsReference string          `json:"recipients_reference,omitempty"`
	Status              BulkStatus      `json:"status"`
	TransferDate        *time.Time      `json:"transfer_date,omitempty"`
	InitiatedBy         int64           `json:"initiated_by"`
	CreatedAt           time.Time       `json:"created_at"`
}

type RecordStatus string

const (
	RecordPending  RecordStatus = "PENDING"
	RecordAccepted RecordStatus = "ACCEPTED"
	RecordDeleted  RecordStatus = "DELETED"
)

// PaymentRecord is one credit-transfer line inside a batch. Deletion is a
// status flip, never a physical delete, so the audit trail survives.
type PaymentRecord struct {
	RecordID          int64           `json:"record_id"`
	TransactionID     int64           `json:"transaction_id"`
	BankReferenceID   string          `json:"bank_reference_id"`
	ChildBankRef      string          `json:"child_bank_reference_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	CreditorName      string          `json:"creditor_name"`
	CreditorAccount   string          `json:"creditor_account"`
	CreditorBankCode  string          `json:"creditor_bank_code,omitempty"`
	CreditorSwiftCode string          `json:"creditor_swift_code,omitempty"`
	CreditorCountry   string          `json:"creditor_country"`
	CustomerReference string          `json:"customer_reference,omitempty"`
	PurposeCode       string          `json:"purpose_code,omitempty"`
	FxContractID      string          `json:"fx_contract_id,omitempty"`
	FxFlag            string          `json:"fx_flag,omitempty"`
	PaymentDetails    string          `json:"payment_details,omitempty"`
	ValueDate         time.Time       `json:"value_date"`
	Status            RecordStatus    `json:"status"`
	RejectReason      string          `json:"reject_reason,omitempty"`
	RejectCode        string          `json:"reject_code,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Satellite rows, all keyed by (bank reference, child bank reference).

type TransactionCharge struct {
	ChargeID      int64           `json:"charge_id"`
	TransactionID int64           `json:"transaction_id"`
	ChildBankRef  string          `json:"child_bank_reference_id"`
	FeesAmount    decimal.Decimal `json:"fees_amount"`
	FeesCurrency  string          `json:"fees_currency"`
	ChargeBearer  string          `json:"charge_bearer,omitempty"`
}

type TransactionAdvice struct {
	AdviceID      int64  `json:"advice_id"`
	TransactionID int64  `json:"transaction_id"`
	ChildBankRef  string `json:"child_bank_reference_id"`
	DeliveryMode  string `json:"delivery_mode"`
	PartyName     string `json:"party_name"`
	Address       string `json:"address,omitempty"`
}

type PartyContact struct {
	ContactID     int64  `json:"contact_id"`
	TransactionID int64  `json:"transaction_id"`
	ChildBankRef  string `json:"child_bank_reference_id"`
	PartyName     string `json:"party_name"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	AddressLine1  string `json:"address_line_1,omitempty"`
	AddressLine2  string `json:"address_line_2,omitempty"`
	AddressLine3  string `json:"address_line_3,omitempty"`
	AddressLine4  string `json:"address_line_4,omitempty"`
	Country       string `json:"country,omitempty"`
}

type FxContract struct {
	ContractRowID  int64           `json:"contract_row_id"`
	TransactionID  int64           `json:"transaction_id"`
	ChildBankRef   string          `json:"child_bank_reference_id"`
	ContractID     string          `json:"contract_id"`
	ContractType   string          `json:"contract_type"`
	Rate           decimal.Decimal `json:"rate"`
	TargetCurrency string          `json:"target_currency"`
	ContractAmount decimal.Decimal `json:"contract_amount"`
	UtilisedAmount decimal.Decimal `json:"utilised_amount"`
	ValueDate      *time.Time      `json:"value_date,omitempty"`
	EquivalentCurr string          `json:"equivalent_currency,omitempty"`
}
