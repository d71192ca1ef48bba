package duplicate

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/bulkpay/internal/domain"
	"github.com/wakala/bulkpay/internal/lookup"
	"github.com/wakala/bulkpay/internal/repository"
)

// stubChecker returns a canned response or error and captures the request.
type stubChecker struct {
	resp *CheckResponse
	err  error
	got  *CheckRequest
}

func (s *stubChecker) Check(_ context.Context, req *CheckRequest) (*CheckResponse, error) {
	s.got = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type fixture struct {
	db       *sql.DB
	files    *repository.FileRepo
	batches  *repository.BatchRepo
	rejected *repository.RejectedRepo
	file     *domain.FileUpload
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:       db,
		files:    repository.NewFileRepo(db),
		batches:  repository.NewBatchRepo(db),
		rejected: repository.NewRejectedRepo(db),
	}
	f.file = &domain.FileUpload{
		FileReferenceID: "FREF-1001",
		FileName:        "payments.json",
		ResourceID:      "CROSS_BORDER",
		FeatureID:       "BULK_UPLOAD",
		CompanyID:       1001,
		Status:          domain.FileStatusSuccess,
		CreatedBy:       "ops.maker",
	}
	_, err = f.files.Insert(context.Background(), f.file)
	require.NoError(t, err)
	return f
}

func (f *fixture) addBatch(t *testing.T, ref string, childRefs ...string) int64 {
	t.Helper()
	buf := repository.NewWriteBuffer(f.db)
	transfer := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	txnID, err := f.batches.InsertBatch(context.Background(), buf, &domain.PaymentBatch{
		FileUploadID:    f.file.FileUploadID,
		BankReferenceID: ref,
		DebtorAccount:   "0011223344",
		TotalAmount:     decimal.Zero,
		HighestAmount:   decimal.Zero,
		TotalChild:      len(childRefs),
		Status:          domain.BulkAccepted,
		TransferDate:    &transfer,
		InitiatedBy:     42,
	})
	require.NoError(t, err)
	for _, child := range childRefs {
		f.batches.StageRecord(buf, &domain.PaymentRecord{
			TransactionID:   txnID,
			BankReferenceID: ref,
			ChildBankRef:    child,
			Amount:          decimal.RequireFromString("100"),
			Currency:        "USD",
			CreditorName:    "Acme Supplies Inc",
			CreditorAccount: "0044556677",
			CreditorCountry: "US",
			ValueDate:       transfer,
			Status:          domain.RecordAccepted,
		})
	}
	require.NoError(t, buf.Flush(context.Background()))
	return txnID
}

func TestReconcileSkipsFailedFiles(t *testing.T) {
	f := newFixture(t)
	f.file.Status = domain.FileStatusUploadFailed
	checker := &stubChecker{}
	coord := NewCoordinator(f.files, f.batches, f.rejected, checker)

	out, err := coord.Reconcile(context.Background(), f.file, lookup.PolicyRejectRecord, 42)
	require.NoError(t, err)

	assert.Equal(t, domain.FileStatusUploadFailed, out.FileStatus)
	assert.Nil(t, checker.got, "skipped files must not reach the duplicate service")
}

func TestReconcileFailsOpenOnTransportError(t *testing.T) {
	f := newFixture(t)
	f.addBatch(t, "GCB2609010000200W", "GCC2609010000201W")
	checker := &stubChecker{err: errors.New("connection refused")}
	coord := NewCoordinator(f.files, f.batches, f.rejected, checker)

	out, err := coord.Reconcile(context.Background(), f.file, lookup.PolicyRejectRecord, 42)
	require.NoError(t, err)

	assert.Equal(t, domain.FileStatusSuccess, out.FileStatus)
	assert.False(t, out.FileRejected)
	assert.Zero(t, out.DuplicateChildren)

	statuses, serr := f.batches.ChildStatuses(context.Background(), "GCB2609010000200W")
	require.NoError(t, serr)
	assert.Equal(t, domain.BulkAccepted, domain.RollupBulkStatus(statuses))
}

func TestReconcileFileReject(t *testing.T) {
	f := newFixture(t)
	f.addBatch(t, "GCB2609010000210W", "GCC2609010000211W")
	f.addBatch(t, "GCB2609010000212W", "GCC2609010000213W")
	checker := &stubChecker{resp: &CheckResponse{IsFileReject: true}}
	coord := NewCoordinator(f.files, f.batches, f.rejected, checker)
	ctx := context.Background()

	out, err := coord.Reconcile(ctx, f.file, lookup.PolicyRejectRecord, 42)
	require.NoError(t, err)

	assert.Equal(t, domain.FileStatusUploadFailed, out.FileStatus)
	assert.True(t, out.FileRejected)
	assert.Equal(t, []domain.BulkStatus{domain.BulkDeleted, domain.BulkDeleted}, out.BatchStatuses)

	for _, ref := range []string{"GCB2609010000210W", "GCB2609010000212W"} {
		batch, berr := f.batches.GetByBankReference(ctx, ref)
		require.NoError(t, berr)
		assert.Equal(t, domain.BulkDeleted, batch.Status)
	}

	stored, ferr := f.files.GetByReference(ctx, f.file.FileReferenceID)
	require.NoError(t, ferr)
	assert.Equal(t, domain.FileStatusUploadFailed, stored.Status)

	rows, rerr := f.rejected.ListByFile(ctx, f.file.FileUploadID)
	require.NoError(t, rerr)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, domain.RejectCodeDuplicate, row.RejectCode)
		assert.Equal(t, domain.DuplicateReason, row.Detail)
	}
}

func TestReconcileSoftDeletesDuplicateChildren(t *testing.T) {
	f := newFixture(t)
	f.addBatch(t, "GCB2609010000220W", "GCC2609010000221W", "GCC2609010000222W")
	checker := &stubChecker{resp: &CheckResponse{
		Instructions: []InstructionResult{{
			BankReferenceID: "GCB2609010000220W",
			Transactions: []TransactionResult{
				{ChildBankReferenceID: "GCC2609010000221W", IsDuplicate: true},
				{ChildBankReferenceID: "GCC2609010000222W"},
			},
		}},
	}}
	coord := NewCoordinator(f.files, f.batches, f.rejected, checker)
	ctx := context.Background()

	out, err := coord.Reconcile(ctx, f.file, lookup.PolicyRejectRecord, 42)
	require.NoError(t, err)

	assert.Equal(t, domain.FileStatusPartial, out.FileStatus)
	assert.Equal(t, 1, out.DuplicateChildren)
	assert.Equal(t, []domain.BulkStatus{domain.BulkPartial}, out.BatchStatuses)

	records, rerr := f.batches.RecordsByBatch(ctx, "GCB2609010000220W")
	require.NoError(t, rerr)
	assert.Equal(t, domain.RecordDeleted, records[0].Status)
	assert.Equal(t, domain.DuplicateReason, records[0].RejectReason)
	assert.Equal(t, domain.RecordAccepted, records[1].Status)
}

func TestReconcilePartialBatchAbortsFileUnderStrictPolicy(t *testing.T) {
	f := newFixture(t)
	f.addBatch(t, "GCB2609010000230W", "GCC2609010000231W", "GCC2609010000232W")
	checker := &stubChecker{resp: &CheckResponse{
		Instructions: []InstructionResult{{
			BankReferenceID: "GCB2609010000230W",
			Transactions: []TransactionResult{
				{ChildBankReferenceID: "GCC2609010000231W", IsDuplicate: true},
			},
		}},
	}}
	coord := NewCoordinator(f.files, f.batches, f.rejected, checker)

	ctx := context.Background()
	out, err := coord.Reconcile(ctx, f.file, lookup.PolicyAbortFile, 42)
	require.NoError(t, err)

	assert.Equal(t, domain.FileStatusUploadFailed, out.FileStatus)
	assert.True(t, out.FileRejected)
	assert.Equal(t, []domain.BulkStatus{domain.BulkDeleted}, out.BatchStatuses)

	// The partial batch and its surviving record go down with the file.
	batch, err := f.batches.GetByBankReference(ctx, "GCB2609010000230W")
	require.NoError(t, err)
	assert.Equal(t, domain.BulkDeleted, batch.Status)

	records, err := f.batches.RecordsByBatch(ctx, "GCB2609010000230W")
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, domain.RecordDeleted, rec.Status)
		assert.Equal(t, domain.RejectCodeDuplicate, rec.RejectCode)
	}

	evidence, err := f.rejected.ListByFile(ctx, f.file.FileUploadID)
	require.NoError(t, err)
	var batchRows int
	for _, e := range evidence {
		if e.EntityType == domain.RejectedEntityBatch {
			batchRows++
		}
	}
	assert.Equal(t, 1, batchRows)

	stored, err := f.files.GetByReference(ctx, f.file.FileReferenceID)
	require.NoError(t, err)
	assert.Equal(t, domain.FileStatusUploadFailed, stored.Status)
}

func TestReconcileAllChildrenDuplicateDeletesBatch(t *testing.T) {
	f := newFixture(t)
	f.addBatch(t, "GCB2609010000240W", "GCC2609010000241W")
	checker := &stubChecker{resp: &CheckResponse{
		Instructions: []InstructionResult{{
			BankReferenceID: "GCB2609010000240W",
			Transactions: []TransactionResult{
				{ChildBankReferenceID: "GCC2609010000241W", IsDuplicate: true},
			},
		}},
	}}
	coord := NewCoordinator(f.files, f.batches, f.rejected, checker)

	out, err := coord.Reconcile(context.Background(), f.file, lookup.PolicyRejectRecord, 42)
	require.NoError(t, err)

	assert.Equal(t, []domain.BulkStatus{domain.BulkDeleted}, out.BatchStatuses)
	assert.Equal(t, domain.FileStatusUploadFailed, out.FileStatus)
}
