package notify

import (
	"log"
	"time"

	"github.com/wakala/bulkpay/internal/domain"
)

// FileNotification tells interested parties that a file reached a terminal
// status.
type FileNotification struct {
	FileReferenceID string            `json:"file_reference_id"`
	FileName        string            `json:"file_name"`
	Status          domain.FileStatus `json:"status"`
	CompanyID       int64             `json:"company_id"`
	ResourceID      string            `json:"resource_id"`
	FeatureID       string            `json:"feature_id"`
	RejectedCount   int               `json:"rejected_count"`
	CompletedAt     time.Time         `json:"completed_at"`
}

// BatchEvent carries the accepted transaction ids of a successful file into
// the downstream authorization workflow.
type BatchEvent struct {
	FileReferenceID string    `json:"file_reference_id"`
	TransactionIDs  []int64   `json:"transaction_ids"`
	InitiatedBy     int64     `json:"initiated_by"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Notifier publishes fire-and-forget completion messages. Implementations
// must never block the pipeline on downstream availability.
type Notifier interface {
	PublishFileNotification(n FileNotification)
	PublishBatchEvent(e BatchEvent)
}

// LogNotifier writes notifications to the process log. It stands in where
// no broker is wired.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) PublishFileNotification(n FileNotification) {
	log.Printf("[notify] File %s (%s) completed with status %s, %d rejections",
		n.FileReferenceID, n.FileName, n.Status, n.RejectedCount)
}

func (LogNotifier) PublishBatchEvent(e BatchEvent) {
	log.Printf("[notify] File %s accepted %d batches for authorization",
		e.FileReferenceID, len(e.TransactionIDs))
}
