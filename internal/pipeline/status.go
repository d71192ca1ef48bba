package pipeline

import "github.com/wakala/bulkpay/internal/domain"

// Aggregate derives a file status from what actually survived. It is pure:
// the orchestrator calls it after validation and again after duplicate
// reconciliation, and both calls with equal inputs agree.
//
// Rules, in priority order: nothing persisted beats everything else; losing
// batches against the reservation count makes the file partial; otherwise
// the header's own status code decides, with a partial batch demoting a
// would-be success.
func Aggregate(fileStatusCode string, batchStatuses []domain.BulkStatus, reserved, persisted int) domain.FileStatus {
	if persisted == 0 {
		return domain.FileStatusUploadFailed
	}
	if persisted < reserved {
		return domain.FileStatusPartial
	}

	var status domain.FileStatus
	switch fileStatusCode {
	case domain.CodeAccepted:
		status = domain.FileStatusSuccess
	case domain.CodeRejected:
		return domain.FileStatusUploadFailed
	default:
		return domain.FileStatusPartial
	}

	for _, bs := range batchStatuses {
		if bs == domain.BulkPartial {
			return domain.FileStatusPartial
		}
	}
	return status
}
