package duplicate

import (
	"context"
	"fmt"
	"log"

	"github.com/wakala/bulkpay/internal/domain"
	"github.com/wakala/bulkpay/internal/lookup"
	"github.com/wakala/bulkpay/internal/repository"
)

// Outcome is what reconciliation did to an already-persisted file.
type Outcome struct {
	FileStatus        domain.FileStatus
	FileRejected      bool
	DuplicateChildren int
	BatchStatuses     []domain.BulkStatus
}

// Coordinator runs the post-commit duplicate check. It mutates batch and
// record statuses via soft deletes only; nothing here removes rows.
type Coordinator struct {
	files    *repository.FileRepo
	batches  *repository.BatchRepo
	rejected *repository.RejectedRepo
	checker  Checker
}

func NewCoordinator(files *repository.FileRepo, batches *repository.BatchRepo, rejected *repository.RejectedRepo, checker Checker) *Coordinator {
	return &Coordinator{files: files, batches: batches, rejected: rejected, checker: checker}
}

// Reconcile checks the file's surviving batches against the duplicate
// service and applies the verdict. A transport failure is not an error:
// duplicate detection is advisory and the file stands as persisted.
func (c *Coordinator) Reconcile(ctx context.Context, file *domain.FileUpload, policy lookup.Policy, userID int64) (*Outcome, error) {
	out := &Outcome{FileStatus: file.Status}

	if file.Status == domain.FileStatusRejected || file.Status == domain.FileStatusUploadFailed {
		log.Printf("[duplicate] Skipping reconciliation for %s: file already %s", file.FileReferenceID, file.Status)
		return out, nil
	}

	batches, err := c.batches.BatchesByFile(ctx, file.FileUploadID)
	if err != nil {
		return nil, fmt.Errorf("load batches for %s: %w", file.FileReferenceID, err)
	}

	req, surviving := c.buildRequest(ctx, file, userID, batches)
	if len(req.Instructions) == 0 {
		return out, nil
	}

	resp, err := c.checker.Check(ctx, req)
	if err != nil {
		log.Printf("[duplicate] Check failed for %s, continuing without duplicates: %v", file.FileReferenceID, err)
		return out, nil
	}

	if resp.IsFileReject {
		return c.rejectWholeFile(ctx, file, surviving)
	}
	return c.applyChildVerdicts(ctx, file, policy, surviving, resp)
}

func (c *Coordinator) buildRequest(ctx context.Context, file *domain.FileUpload, userID int64, batches []domain.PaymentBatch) (*CheckRequest, []domain.PaymentBatch) {
	req := &CheckRequest{
		UserID:          userID,
		ResourceIDs:     []string{file.ResourceID},
		FeatureIDs:      []string{file.FeatureID},
		FileReferenceID: file.FileReferenceID,
	}
	var surviving []domain.PaymentBatch
	for _, b := range batches {
		if b.Status == domain.BulkDeleted {
			continue
		}
		records, err := c.batches.RecordsByBatch(ctx, b.BankReferenceID)
		if err != nil {
			log.Printf("[duplicate] Could not load records for batch %s: %v", b.BankReferenceID, err)
			continue
		}
		inst := CheckInstruction{BankReferenceID: b.BankReferenceID, DebtorAccount: b.DebtorAccount}
		for _, rec := range records {
			if rec.Status == domain.RecordDeleted {
				continue
			}
			inst.Transactions = append(inst.Transactions, CheckTransaction{
				ChildBankReferenceID: rec.ChildBankRef,
				Amount:               rec.Amount,
				Currency:             rec.Currency,
				ValueDate:            rec.ValueDate,
				CustomerReference:    rec.CustomerReference,
			})
		}
		if len(inst.Transactions) == 0 {
			continue
		}
		req.Instructions = append(req.Instructions, inst)
		surviving = append(surviving, b)
	}
	return req, surviving
}

func (c *Coordinator) rejectWholeFile(ctx context.Context, file *domain.FileUpload, batches []domain.PaymentBatch) (*Outcome, error) {
	for _, b := range batches {
		if err := c.batches.SoftDeleteBatch(ctx, b.BankReferenceID, domain.DuplicateReason, domain.RejectCodeDuplicate); err != nil {
			return nil, err
		}
		evidence := &domain.RejectedRecord{
			FileUploadID:    file.FileUploadID,
			BankReferenceID: b.BankReferenceID,
			EntityType:      domain.RejectedEntityBatch,
			RejectCode:      domain.RejectCodeDuplicate,
			Detail:          domain.DuplicateReason,
		}
		if err := c.rejected.Insert(ctx, evidence); err != nil {
			return nil, err
		}
	}

	log.Printf("[duplicate] File %s rejected by duplicate service, %d batches deleted", file.FileReferenceID, len(batches))
	if err := c.markFile(ctx, file, domain.FileStatusUploadFailed); err != nil {
		return nil, err
	}
	out := &Outcome{FileStatus: domain.FileStatusUploadFailed, FileRejected: true}
	for range batches {
		out.BatchStatuses = append(out.BatchStatuses, domain.BulkDeleted)
	}
	return out, nil
}

func (c *Coordinator) applyChildVerdicts(ctx context.Context, file *domain.FileUpload, policy lookup.Policy, batches []domain.PaymentBatch, resp *CheckResponse) (*Outcome, error) {
	verdicts := make(map[string][]TransactionResult, len(resp.Instructions))
	for _, inst := range resp.Instructions {
		verdicts[inst.BankReferenceID] = inst.Transactions
	}

	out := &Outcome{FileStatus: file.Status}
	anyDeleted := false
	var partials []int

	for i, b := range batches {
		touched := false
		for _, txn := range verdicts[b.BankReferenceID] {
			if !txn.IsDuplicate {
				continue
			}
			if err := c.batches.SoftDeleteRecord(ctx, txn.ChildBankReferenceID, domain.DuplicateReason, domain.RejectCodeDuplicate); err != nil {
				return nil, err
			}
			evidence := &domain.RejectedRecord{
				FileUploadID:    file.FileUploadID,
				BankReferenceID: b.BankReferenceID,
				ChildBankRef:    txn.ChildBankReferenceID,
				EntityType:      domain.RejectedEntityRecord,
				RejectCode:      domain.RejectCodeDuplicate,
				Detail:          domain.DuplicateReason,
			}
			if err := c.rejected.Insert(ctx, evidence); err != nil {
				return nil, err
			}
			out.DuplicateChildren++
			touched = true
		}

		status := b.Status
		if touched {
			if err := c.batches.RecomputeAggregates(ctx, b.TransactionID); err != nil {
				return nil, err
			}
			children, err := c.batches.ChildStatuses(ctx, b.BankReferenceID)
			if err != nil {
				return nil, err
			}
			status = domain.RollupBulkStatus(children)
			if err := c.batches.UpdateBatchStatus(ctx, b.TransactionID, status); err != nil {
				return nil, err
			}
		}
		out.BatchStatuses = append(out.BatchStatuses, status)
		switch status {
		case domain.BulkDeleted:
			anyDeleted = true
		case domain.BulkPartial:
			partials = append(partials, i)
		}
	}

	switch {
	case anyDeleted:
		out.FileStatus = domain.FileStatusUploadFailed
		out.FileRejected = true
	case len(partials) > 0 && policy == lookup.PolicyAbortFile:
		// Under an abort-file policy a partially-duplicated batch cannot
		// survive: its remaining records are withdrawn with it.
		for _, i := range partials {
			b := batches[i]
			if err := c.batches.SoftDeleteBatch(ctx, b.BankReferenceID, domain.DuplicateReason, domain.RejectCodeDuplicate); err != nil {
				return nil, err
			}
			evidence := &domain.RejectedRecord{
				FileUploadID:    file.FileUploadID,
				BankReferenceID: b.BankReferenceID,
				EntityType:      domain.RejectedEntityBatch,
				RejectCode:      domain.RejectCodeDuplicate,
				Detail:          domain.DuplicateReason,
			}
			if err := c.rejected.Insert(ctx, evidence); err != nil {
				return nil, err
			}
			out.BatchStatuses[i] = domain.BulkDeleted
		}
		out.FileStatus = domain.FileStatusUploadFailed
		out.FileRejected = true
	case len(partials) > 0:
		out.FileStatus = domain.FileStatusPartial
	}

	if out.FileStatus != file.Status {
		log.Printf("[duplicate] File %s escalated to %s after reconciliation (%d duplicate records)",
			file.FileReferenceID, out.FileStatus, out.DuplicateChildren)
		if err := c.markFile(ctx, file, out.FileStatus); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Coordinator) markFile(ctx context.Context, file *domain.FileUpload, status domain.FileStatus) error {
	file.Status = status
	if status == domain.FileStatusUploadFailed {
		file.RejectCode = domain.RejectCodeDuplicate
	}
	if err := c.files.UpdateStatus(ctx, file); err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	return nil
}
