package domain

import "time"

// RejectedRecord is the append-only audit row written for every rejection,
// whether record-, batch- or file-level. Rows are never mutated or deleted.
type RejectedRecord struct {
	RejectedID      string    `json:"rejected_id"`
	FileUploadID    int64     `json:"file_upload_id"`
	BankReferenceID string    `json:"bank_reference_id,omitempty"`
	ChildBankRef    string    `json:"child_bank_reference_id,omitempty"`
	EntityType      string    `json:"entity_type"`
	LineNumber      int       `json:"line_number,omitempty"`
	RejectCode      string    `json:"reject_code,omitempty"`
	Detail          string    `json:"detail"`
	CreatedAt       time.Time `json:"created_at"`
}

// Entity types recorded on rejected rows.
const (
	RejectedEntityFile   = "FILE"
	RejectedEntityBatch  = "BATCH"
	RejectedEntityRecord = "RECORD"
)

// Reject codes surfaced to callers.
const (
	RejectCodeDuplicate  = "CEW-8803"
	RejectCodeValidation = "CEW-8801"
	RejectCodePolicy     = "CEW-8802"
)

// DuplicateReason is the detail written for reconciliation soft-deletes.
const DuplicateReason = "duplicate transaction"
