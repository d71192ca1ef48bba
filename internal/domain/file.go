package domain

import "time"

type FileStatus string

const (
	FileStatusNew          FileStatus = "NEW"
	FileStatusPartial      FileStatus = "PARTIAL"
	FileStatusSuccess      FileStatus = "SUCCESS"
	FileStatusUploadFailed FileStatus = "UPLOAD_FAILED"
	FileStatusRejected     FileStatus = "REJECTED"
)

// Terminal reports whether no further mutation of the file is allowed.
func (s FileStatus) Terminal() bool {
	switch s {
	case FileStatusSuccess, FileStatusUploadFailed, FileStatusRejected:
		return true
	}
	return false
}

// Wire status codes carried by the inbound document at file, batch and
// record level.
const (
	CodeAccepted = "01"
	CodeRejected = "02"
	CodePartial  = "03"
)

// FileUpload is the aggregate root for one inbound bulk payment file.
type FileUpload struct {
	FileUploadID    int64      `json:"file_upload_id"`
	FileReferenceID string     `json:"file_reference_id"`
	BankReferenceID string     `json:"bank_reference_id,omitempty"`
	FileName        string     `json:"file_name"`
	ResourceID      string     `json:"resource_id"`
	FeatureID       string     `json:"feature_id"`
	CompanyID       int64      `json:"company_id"`
	CompanyGroupID  int64      `json:"company_group_id,omitempty"`
	Status          FileStatus `json:"status"`
	RejectCode      string     `json:"reject_code,omitempty"`
	CreatedBy       string     `json:"created_by"`
	UpdatedBy       string     `json:"updated_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
