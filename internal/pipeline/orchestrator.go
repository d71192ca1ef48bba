// Package pipeline drives one bulk payment file from receipt to a terminal
// status. Processing is strictly sequential within a file: reference numbers
// and batch aggregates depend on earlier records. Files are independent;
// concurrent pipelines share only the sequence source.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/bulkpay/internal/bulkfile"
	"github.com/wakala/bulkpay/internal/domain"
	"github.com/wakala/bulkpay/internal/duplicate"
	"github.com/wakala/bulkpay/internal/lookup"
	"github.com/wakala/bulkpay/internal/notify"
	"github.com/wakala/bulkpay/internal/refgen"
	"github.com/wakala/bulkpay/internal/repository"
	"github.com/wakala/bulkpay/internal/validation"
)

const actionCreate = "CREATE"

// BatchOutcome reports what happened to one payment instruction.
type BatchOutcome struct {
	InstructionID   string            `json:"instruction_id"`
	BankReferenceID string            `json:"bank_reference_id,omitempty"`
	TransactionID   int64             `json:"transaction_id,omitempty"`
	Status          domain.BulkStatus `json:"status"`
}

// Result is what the caller gets back: always a terminal file status.
type Result struct {
	FileReferenceID string            `json:"file_reference_id"`
	FileStatus      domain.FileStatus `json:"file_status"`
	Batches         []BatchOutcome    `json:"batches"`
	RejectedCount   int               `json:"rejected_count"`
}

type Orchestrator struct {
	db         *sql.DB
	files      *repository.FileRepo
	batches    *repository.BatchRepo
	rejected   *repository.RejectedRepo
	lookups    *lookup.Loader
	sequences  refgen.SequenceSource
	refs       *refgen.Generator
	chain      *validation.Chain
	reconciler *duplicate.Coordinator
	notifier   notify.Notifier
}

func NewOrchestrator(
	db *sql.DB,
	files *repository.FileRepo,
	batches *repository.BatchRepo,
	rejected *repository.RejectedRepo,
	lookups *lookup.Loader,
	sequences refgen.SequenceSource,
	refs *refgen.Generator,
	chain *validation.Chain,
	reconciler *duplicate.Coordinator,
	notifier notify.Notifier,
) *Orchestrator {
	return &Orchestrator{
		db:         db,
		files:      files,
		batches:    batches,
		rejected:   rejected,
		lookups:    lookups,
		sequences:  sequences,
		refs:       refs,
		chain:      chain,
		reconciler: reconciler,
		notifier:   notifier,
	}
}

// run is the per-file mutable state threaded through the stages. It replaces
// ad hoc shared maps with one explicit value.
type run struct {
	file      *domain.FileUpload
	doc       *bulkfile.Document
	userID    int64
	policy    lookup.Policy
	now       time.Time
	reserved  int
	persisted int
	statuses  []domain.BulkStatus
	written   []int64
	outcomes  []BatchOutcome
	childLine int
}

// Process drives a file to FINALIZED. Validation failures and policy aborts
// are handled internally and reflected in the result; an error return means
// the file itself could not be loaded or its final status could not be
// written.
func (o *Orchestrator) Process(ctx context.Context, doc *bulkfile.Document, userID int64) (*Result, error) {
	file, err := o.files.GetByReference(ctx, doc.Header.FileReference)
	if err != nil {
		return nil, fmt.Errorf("load file %s: %w", doc.Header.FileReference, err)
	}
	if file == nil {
		return nil, fmt.Errorf("file %s: no upload registered", doc.Header.FileReference)
	}
	if file.Status.Terminal() {
		return nil, fmt.Errorf("file %s: already finalized as %s", file.FileReferenceID, file.Status)
	}
	log.Printf("[pipeline] File %s: received, %d instructions", file.FileReferenceID, len(doc.Instructions))

	r := &run{file: file, doc: doc, userID: userID, now: time.Now().UTC()}

	policy, err := o.lookups.CompanyPolicy(ctx, file.CompanyID)
	if err != nil {
		return o.failFile(ctx, r, domain.RejectCodePolicy, fmt.Sprintf("reject-file-on-error policy: %v", err))
	}
	r.policy = policy

	// Header short-circuit: a pre-rejected file with upstream errors never
	// reaches batch processing.
	if doc.Header.FileStatusCode == domain.CodeRejected && len(doc.Header.ErrorDescriptions) > 0 {
		detail := strings.Join(doc.Header.ErrorDescriptions, "; ")
		return o.failFile(ctx, r, domain.RejectCodeValidation, detail)
	}
	log.Printf("[pipeline] File %s: header validated", file.FileReferenceID)

	refData, err := o.loadReferenceData(ctx, file)
	if err != nil {
		return o.failFile(ctx, r, "", fmt.Sprintf("load reference data: %v", err))
	}

	r.reserved = len(doc.Instructions)
	seqs, err := o.sequences.Reserve(ctx, r.reserved)
	if err != nil {
		return o.failFile(ctx, r, "", fmt.Sprintf("reserve bank references: %v", err))
	}

	buf := repository.NewWriteBuffer(o.db)
	for i := range doc.Instructions {
		aborted, err := o.processInstruction(ctx, r, buf, &doc.Instructions[i], seqs[i], refData)
		if err != nil {
			buf.Discard()
			o.compensate(ctx, buf, r)
			return o.failFile(ctx, r, "", err.Error())
		}
		if aborted {
			log.Printf("[pipeline] File %s: aborting on policy, compensating %d batches",
				file.FileReferenceID, len(r.written))
			buf.Discard()
			o.compensate(ctx, buf, r)
			return o.failFile(ctx, r, domain.RejectCodeValidation, "file aborted by reject-file-on-error policy")
		}
	}
	log.Printf("[pipeline] File %s: records validated, %d/%d batches persisted",
		file.FileReferenceID, r.persisted, r.reserved)

	file.Status = Aggregate(doc.Header.FileStatusCode, r.statuses, r.reserved, r.persisted)
	if err := o.files.UpdateStatus(ctx, file); err != nil {
		return nil, fmt.Errorf("persist file status: %w", err)
	}

	if out, err := o.reconciler.Reconcile(ctx, file, r.policy, userID); err != nil {
		log.Printf("[pipeline] File %s: reconciliation error, keeping persisted state: %v",
			file.FileReferenceID, err)
	} else if len(out.BatchStatuses) == len(r.statuses) {
		r.statuses = out.BatchStatuses
		next := 0
		for i := range r.outcomes {
			if r.outcomes[i].TransactionID != 0 && next < len(out.BatchStatuses) {
				r.outcomes[i].Status = out.BatchStatuses[next]
				next++
			}
		}
	}
	log.Printf("[pipeline] File %s: reconciled, status %s", file.FileReferenceID, file.Status)

	return o.finalize(ctx, r)
}

// referenceData is the per-file snapshot of everything the validators need.
type referenceData struct {
	currencies  lookup.CurrencyDirectory
	countries   lookup.CountryDirectory
	banks       lookup.BankDirectory
	accounts    map[string]string
	entitlement *lookup.Entitlement
	maxChildren int
}

func (o *Orchestrator) loadReferenceData(ctx context.Context, file *domain.FileUpload) (*referenceData, error) {
	d := &referenceData{}
	var err error
	if d.currencies, err = o.lookups.Currencies(ctx, file.ResourceID); err != nil {
		return nil, err
	}
	if d.countries, err = o.lookups.Countries(ctx); err != nil {
		return nil, err
	}
	if d.banks, err = o.lookups.Banks(ctx, file.ResourceID); err != nil {
		return nil, err
	}
	if d.accounts, err = o.lookups.CompanyAccounts(ctx, file.CompanyID); err != nil {
		return nil, err
	}
	if d.entitlement, err = o.lookups.Entitlement(ctx, file.CreatedBy); err != nil {
		return nil, err
	}
	if d.maxChildren, err = o.lookups.MaxChildTransactions(ctx, file.ResourceID); err != nil {
		return nil, err
	}
	return d, nil
}

// processInstruction handles one payment-information group. A returned error
// is infrastructural and fatal to the file; aborted=true means the
// reject-file-on-error policy fired on a validation failure.
func (o *Orchestrator) processInstruction(ctx context.Context, r *run, buf *repository.WriteBuffer, inst *bulkfile.PaymentInstruction, seq int64, ref *referenceData) (aborted bool, err error) {
	line := len(r.outcomes) + 1

	// Pre-marked rejected batches carry upstream errors; they are recorded
	// and skipped without triggering the abort-file policy.
	if inst.BulkStatusCode == domain.CodeRejected {
		detail := strings.Join(inst.ErrorDescriptions, "; ")
		if detail == "" {
			detail = "batch rejected upstream"
		}
		o.rejectBatch(ctx, r, inst, line, domain.RejectCodeValidation, detail)
		return false, nil
	}

	if ref.entitlement == nil || !ref.entitlement.Allows(actionCreate) {
		o.rejectBatch(ctx, r, inst, line, domain.RejectCodeValidation,
			fmt.Sprintf("user %s not entitled to create bulk payments", r.file.CreatedBy))
		return false, nil
	}

	accountCurrency, ok := ref.accounts[inst.DebtorAccount]
	if !ok {
		o.rejectBatch(ctx, r, inst, line, domain.RejectCodeValidation,
			fmt.Sprintf("debtor account %s does not belong to company %d", inst.DebtorAccount, r.file.CompanyID))
		return false, nil
	}

	execDate, err := time.Parse("2006-01-02", inst.RequestedExecutionDate)
	if err != nil {
		o.rejectBatch(ctx, r, inst, line, domain.RejectCodeValidation,
			fmt.Sprintf("invalid requested execution date %q", inst.RequestedExecutionDate))
		return false, nil
	}
	if execDate.Before(r.now.Truncate(24 * time.Hour)) {
		o.rejectBatch(ctx, r, inst, line, domain.RejectCodeValidation,
			fmt.Sprintf("requested execution date %s is in the past", inst.RequestedExecutionDate))
		return false, nil
	}

	bankRef := o.refs.BatchReference(r.now, seq)
	batch := &domain.PaymentBatch{
		FileUploadID:    r.file.FileUploadID,
		BankReferenceID: bankRef,
		DebtorAccount:   inst.DebtorAccount,
		AccountCurrency: accountCurrency,
		TotalChild:      len(inst.Transfers),
		BatchBooking:    inst.BatchBooking,
		Status:          domain.BulkAccepted,
		TransferDate:    &execDate,
		InitiatedBy:     r.userID,
	}
	if len(inst.Transfers) > 0 {
		batch.TransactionCurrency = inst.Transfers[0].Currency
	}
	txnID, err := o.batches.InsertBatch(ctx, buf, batch)
	if err != nil {
		return false, err
	}
	r.written = append(r.written, txnID)

	if ref.maxChildren > 0 && len(inst.Transfers) > ref.maxChildren {
		if err := buf.DeleteAggregate(ctx, txnID); err != nil {
			return false, err
		}
		r.written = r.written[:len(r.written)-1]
		o.rejectBatch(ctx, r, inst, line, domain.RejectCodeValidation,
			fmt.Sprintf("batch exceeds the %d transaction limit", ref.maxChildren))
		return false, nil
	}

	fctx := &validation.Context{
		ResourceID:      r.file.ResourceID,
		FeatureID:       r.file.FeatureID,
		AccountCurrency: accountCurrency,
		Policy:          r.policy,
		Currencies:      ref.currencies,
		Countries:       ref.countries,
		Banks:           ref.banks,
		BatchBooking:    inst.BatchBooking,
		PayrollResource: strings.Contains(strings.ToUpper(r.file.ResourceID), "PAYROLL"),
		Now:             r.now,
	}

	childSeqs, err := o.sequences.Reserve(ctx, len(inst.Transfers))
	if err != nil {
		return false, err
	}

	accepted := 0
	for j := range inst.Transfers {
		tr := &inst.Transfers[j]
		r.childLine++
		childRef := o.refs.ChildReference(r.now, childSeqs[j])
		rec := o.buildRecord(txnID, bankRef, childRef, tr, execDate)

		if tr.StatusCode == domain.CodeRejected {
			detail := strings.Join(tr.ErrorDescriptions, "; ")
			if detail == "" {
				detail = "record rejected upstream"
			}
			o.rejectRecord(ctx, r, buf, rec, detail)
			continue
		}

		out := o.chain.Validate(tr, fctx)
		if out.OK() {
			rec.Status = domain.RecordAccepted
			o.batches.StageRecord(buf, rec)
			o.stageSatellites(buf, txnID, childRef, tr, execDate)
			accepted++
			continue
		}

		o.rejectRecord(ctx, r, buf, rec, strings.Join(out.Errors, "; "))
		if out.Disposition == validation.AbortFile {
			return true, nil
		}
	}

	// A batch whose every line failed never becomes visible.
	if accepted == 0 {
		buf.Discard()
		if err := buf.DeleteAggregate(ctx, txnID); err != nil {
			return false, err
		}
		r.written = r.written[:len(r.written)-1]
		r.outcomes = append(r.outcomes, BatchOutcome{
			InstructionID: inst.InstructionID,
			Status:        domain.BulkRejected,
		})
		return false, nil
	}

	if err := buf.Flush(ctx); err != nil {
		return false, err
	}
	if err := o.batches.RecomputeAggregates(ctx, txnID); err != nil {
		return false, err
	}

	status := domain.BulkAccepted
	if accepted < len(inst.Transfers) {
		status = domain.BulkPartial
	}
	if err := o.batches.UpdateBatchStatus(ctx, txnID, status); err != nil {
		return false, err
	}

	r.persisted++
	r.statuses = append(r.statuses, status)
	r.outcomes = append(r.outcomes, BatchOutcome{
		InstructionID:   inst.InstructionID,
		BankReferenceID: bankRef,
		TransactionID:   txnID,
		Status:          status,
	})
	return false, nil
}

func (o *Orchestrator) buildRecord(txnID int64, bankRef, childRef string, tr *bulkfile.CreditTransfer, execDate time.Time) *domain.PaymentRecord {
	rec := &domain.PaymentRecord{
		TransactionID:     txnID,
		BankReferenceID:   bankRef,
		ChildBankRef:      childRef,
		Amount:            tr.Amount,
		Currency:          tr.Currency,
		CreditorName:      tr.CreditorName,
		CreditorAccount:   tr.CreditorAccount,
		CreditorBankCode:  tr.CreditorBankCode,
		CreditorSwiftCode: tr.CreditorSwiftCode,
		CreditorCountry:   tr.CreditorCountry,
		CustomerReference: tr.CustomerReference,
		PurposeCode:       tr.PurposeCode,
		FxContractID:      tr.FxContractID,
		PaymentDetails:    tr.PaymentDetails,
		ValueDate:         execDate,
	}
	if tr.FxContractID != "" {
		rec.FxFlag = "Y"
	}
	return rec
}

// rejectRecord persists the failed line as a DELETED record so the audit
// trail and the batch rollup both see it, and writes the evidence row.
func (o *Orchestrator) rejectRecord(ctx context.Context, r *run, buf *repository.WriteBuffer, rec *domain.PaymentRecord, detail string) {
	rec.Status = domain.RecordDeleted
	rec.RejectReason = detail
	rec.RejectCode = domain.RejectCodeValidation
	o.batches.StageRecord(buf, rec)

	evidence := &domain.RejectedRecord{
		FileUploadID:    r.file.FileUploadID,
		BankReferenceID: rec.BankReferenceID,
		ChildBankRef:    rec.ChildBankRef,
		EntityType:      domain.RejectedEntityRecord,
		LineNumber:      r.childLine,
		RejectCode:      domain.RejectCodeValidation,
		Detail:          detail,
	}
	if err := o.rejected.Insert(ctx, evidence); err != nil {
		log.Printf("[pipeline] Could not record rejection for %s: %v", rec.ChildBankRef, err)
	}
}

func (o *Orchestrator) rejectBatch(ctx context.Context, r *run, inst *bulkfile.PaymentInstruction, line int, code, detail string) {
	evidence := &domain.RejectedRecord{
		FileUploadID: r.file.FileUploadID,
		EntityType:   domain.RejectedEntityBatch,
		LineNumber:   line,
		RejectCode:   code,
		Detail:       detail,
	}
	if err := o.rejected.Insert(ctx, evidence); err != nil {
		log.Printf("[pipeline] Could not record batch rejection: %v", err)
	}
	r.outcomes = append(r.outcomes, BatchOutcome{
		InstructionID: inst.InstructionID,
		Status:        domain.BulkRejected,
	})
}

// compensate removes every aggregate this run wrote. Evidence rows survive.
func (o *Orchestrator) compensate(ctx context.Context, buf *repository.WriteBuffer, r *run) {
	for _, txnID := range r.written {
		if err := buf.DeleteAggregate(ctx, txnID); err != nil {
			log.Printf("[pipeline] Compensation failed for transaction %d: %v", txnID, err)
		}
	}
	// Outcomes for removed aggregates flip to DELETED and drop their
	// transaction ids so the result never reports rows that no longer exist.
	for i := range r.outcomes {
		if r.outcomes[i].TransactionID != 0 {
			r.outcomes[i].Status = domain.BulkDeleted
			r.outcomes[i].TransactionID = 0
		}
	}
	r.written = nil
	r.persisted = 0
	r.statuses = nil
}

// failFile finalizes the file as UPLOAD_FAILED with one file-level evidence
// row. It is the single error exit of the pipeline.
func (o *Orchestrator) failFile(ctx context.Context, r *run, code, detail string) (*Result, error) {
	if code == "" {
		code = domain.RejectCodeValidation
	}
	evidence := &domain.RejectedRecord{
		FileUploadID: r.file.FileUploadID,
		EntityType:   domain.RejectedEntityFile,
		RejectCode:   code,
		Detail:       detail,
	}
	if err := o.rejected.Insert(ctx, evidence); err != nil {
		log.Printf("[pipeline] Could not record file rejection: %v", err)
	}

	r.file.Status = domain.FileStatusUploadFailed
	r.file.RejectCode = code
	if err := o.files.UpdateStatus(ctx, r.file); err != nil {
		return nil, fmt.Errorf("finalize failed file: %w", err)
	}
	log.Printf("[pipeline] File %s: failed, %s", r.file.FileReferenceID, detail)
	return o.finalize(ctx, r)
}

// finalize publishes notifications and assembles the result. The returned
// status is always terminal.
func (o *Orchestrator) finalize(ctx context.Context, r *run) (*Result, error) {
	rejectedCount, err := o.rejected.CountByFile(ctx, r.file.FileUploadID)
	if err != nil {
		log.Printf("[pipeline] Could not count rejections for %s: %v", r.file.FileReferenceID, err)
	}

	o.notifier.PublishFileNotification(notify.FileNotification{
		FileReferenceID: r.file.FileReferenceID,
		FileName:        r.file.FileName,
		Status:          r.file.Status,
		CompanyID:       r.file.CompanyID,
		ResourceID:      r.file.ResourceID,
		FeatureID:       r.file.FeatureID,
		RejectedCount:   rejectedCount,
		CompletedAt:     time.Now().UTC(),
	})

	if r.file.Status == domain.FileStatusSuccess {
		var acceptedIDs []int64
		for _, out := range r.outcomes {
			if out.TransactionID != 0 && out.Status == domain.BulkAccepted {
				acceptedIDs = append(acceptedIDs, out.TransactionID)
			}
		}
		o.notifier.PublishBatchEvent(notify.BatchEvent{
			FileReferenceID: r.file.FileReferenceID,
			TransactionIDs:  acceptedIDs,
			InitiatedBy:     r.userID,
			OccurredAt:      time.Now().UTC(),
		})
	}

	log.Printf("[pipeline] File %s: finalized as %s", r.file.FileReferenceID, r.file.Status)
	return &Result{
		FileReferenceID: r.file.FileReferenceID,
		FileStatus:      r.file.Status,
		Batches:         r.outcomes,
		RejectedCount:   rejectedCount,
	}, nil
}

// stageSatellites enqueues the optional per-record rows alongside the record
// itself so they land in the same flush.
func (o *Orchestrator) stageSatellites(buf *repository.WriteBuffer, txnID int64, childRef string, tr *bulkfile.CreditTransfer, execDate time.Time) {
	if tr.ChargeBearer != "" {
		o.batches.StageCharge(buf, &domain.TransactionCharge{
			TransactionID: txnID,
			ChildBankRef:  childRef,
			FeesAmount:    decimal.Zero,
			FeesCurrency:  tr.Currency,
			ChargeBearer:  tr.ChargeBearer,
		})
	}
	if tr.AdviceDelivery != "" {
		o.batches.StageAdvice(buf, &domain.TransactionAdvice{
			TransactionID: txnID,
			ChildBankRef:  childRef,
			DeliveryMode:  tr.AdviceDelivery,
			PartyName:     tr.CreditorName,
			Address:       strings.Join(tr.AddressLines, ";"),
		})
	}
	if tr.CreditorPhone != "" || len(tr.AddressLines) > 0 {
		contact := &domain.PartyContact{
			TransactionID: txnID,
			ChildBankRef:  childRef,
			PartyName:     tr.CreditorName,
			PhoneNumber:   tr.CreditorPhone,
			Country:       tr.CreditorCountry,
		}
		lines := []*string{&contact.AddressLine1, &contact.AddressLine2, &contact.AddressLine3, &contact.AddressLine4}
		for i, l := range tr.AddressLines {
			if i >= len(lines) {
				break
			}
			*lines[i] = l
		}
		o.batches.StageContact(buf, contact)
	}
	if tr.FxContractID != "" {
		o.batches.StageFxContract(buf, &domain.FxContract{
			TransactionID:  txnID,
			ChildBankRef:   childRef,
			ContractID:     tr.FxContractID,
			Rate:           tr.FxRate,
			TargetCurrency: tr.Currency,
			ContractAmount: tr.Amount,
			UtilisedAmount: tr.Amount,
			ValueDate:      &execDate,
		})
	}
}
