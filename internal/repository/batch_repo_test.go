package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/bulkpay/internal/domain"
)

func TestBatchRoundTrip(t *testing.T) {
	db := newTestDB(t)
	file := insertTestFile(t, db)
	repo := NewBatchRepo(db)
	buf := NewWriteBuffer(db)
	ctx := context.Background()

	in := makeBatch(file.FileUploadID, "GCB2609010000100W")
	in.TotalAmount = decimal.RequireFromString("300.50")
	in.HighestAmount = decimal.RequireFromString("200")
	_, err := repo.InsertBatch(ctx, buf, in)
	require.NoError(t, err)

	batches, err := repo.BatchesByFile(ctx, file.FileUploadID)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	got := batches[0]
	assert.Equal(t, in.BankReferenceID, got.BankReferenceID)
	assert.Equal(t, in.DebtorAccount, got.DebtorAccount)
	assert.True(t, got.TotalAmount.Equal(in.TotalAmount))
	assert.True(t, got.HighestAmount.Equal(in.HighestAmount))
	assert.Equal(t, domain.BulkAccepted, got.Status)
	require.NotNil(t, got.TransferDate)
	assert.Equal(t, in.TransferDate.Unix(), got.TransferDate.Unix())

	ids, err := repo.TransactionIDs(ctx, file.FileUploadID)
	require.NoError(t, err)
	assert.Equal(t, []int64{in.TransactionID}, ids)
}

func TestSoftDeleteRecordAndRollup(t *testing.T) {
	db := newTestDB(t)
	file := insertTestFile(t, db)
	repo := NewBatchRepo(db)
	buf := NewWriteBuffer(db)
	ctx := context.Background()

	txnID, err := repo.InsertBatch(ctx, buf, makeBatch(file.FileUploadID, "GCB2609010000110W"))
	require.NoError(t, err)
	repo.StageRecord(buf, makeRecord(txnID, "GCB2609010000110W", "GCC2609010000111W", "100"))
	repo.StageRecord(buf, makeRecord(txnID, "GCB2609010000110W", "GCC2609010000112W", "250"))
	require.NoError(t, buf.Flush(ctx))

	require.NoError(t, repo.SoftDeleteRecord(ctx, "GCC2609010000112W",
		domain.DuplicateReason, domain.RejectCodeDuplicate))

	statuses, err := repo.ChildStatuses(ctx, "GCB2609010000110W")
	require.NoError(t, err)
	assert.Equal(t, domain.BulkPartial, domain.RollupBulkStatus(statuses))

	records, err := repo.RecordsByBatch(ctx, "GCB2609010000110W")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.RecordDeleted, records[1].Status)
	assert.Equal(t, domain.DuplicateReason, records[1].RejectReason)
	assert.Equal(t, domain.RejectCodeDuplicate, records[1].RejectCode)
}

func TestSoftDeleteBatch(t *testing.T) {
	db := newTestDB(t)
	file := insertTestFile(t, db)
	repo := NewBatchRepo(db)
	buf := NewWriteBuffer(db)
	ctx := context.Background()

	txnID, err := repo.InsertBatch(ctx, buf, makeBatch(file.FileUploadID, "GCB2609010000120W"))
	require.NoError(t, err)
	repo.StageRecord(buf, makeRecord(txnID, "GCB2609010000120W", "GCC2609010000121W", "100"))
	require.NoError(t, buf.Flush(ctx))

	require.NoError(t, repo.SoftDeleteBatch(ctx, "GCB2609010000120W",
		domain.DuplicateReason, domain.RejectCodeDuplicate))

	batch, err := repo.GetByBankReference(ctx, "GCB2609010000120W")
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, domain.BulkDeleted, batch.Status)

	statuses, err := repo.ChildStatuses(ctx, "GCB2609010000120W")
	require.NoError(t, err)
	assert.Equal(t, domain.BulkDeleted, domain.RollupBulkStatus(statuses))
}

func TestRecomputeAggregates(t *testing.T) {
	db := newTestDB(t)
	file := insertTestFile(t, db)
	repo := NewBatchRepo(db)
	buf := NewWriteBuffer(db)
	ctx := context.Background()

	txnID, err := repo.InsertBatch(ctx, buf, makeBatch(file.FileUploadID, "GCB2609010000130W"))
	require.NoError(t, err)
	repo.StageRecord(buf, makeRecord(txnID, "GCB2609010000130W", "GCC2609010000131W", "100.25"))
	repo.StageRecord(buf, makeRecord(txnID, "GCB2609010000130W", "GCC2609010000132W", "400"))
	repo.StageRecord(buf, makeRecord(txnID, "GCB2609010000130W", "GCC2609010000133W", "50"))
	require.NoError(t, buf.Flush(ctx))

	require.NoError(t, repo.SoftDeleteRecord(ctx, "GCC2609010000133W", "bad record", domain.RejectCodeValidation))
	require.NoError(t, repo.RecomputeAggregates(ctx, txnID))

	batch, err := repo.GetByBankReference(ctx, "GCB2609010000130W")
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.True(t, batch.TotalAmount.Equal(decimal.RequireFromString("500.25")), "total %s", batch.TotalAmount)
	assert.True(t, batch.HighestAmount.Equal(decimal.RequireFromString("400")))
	assert.Equal(t, 3, batch.TotalChild)
	assert.Equal(t, 1, batch.RejectedChild)
}

func TestRejectedRepo(t *testing.T) {
	db := newTestDB(t)
	file := insertTestFile(t, db)
	repo := NewRejectedRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, &domain.RejectedRecord{
		FileUploadID: file.FileUploadID,
		EntityType:   domain.RejectedEntityFile,
		RejectCode:   domain.RejectCodeValidation,
		Detail:       "header rejected upstream",
	}))
	require.NoError(t, repo.Insert(ctx, &domain.RejectedRecord{
		FileUploadID:    file.FileUploadID,
		BankReferenceID: "GCB2609010000140W",
		ChildBankRef:    "GCC2609010000141W",
		EntityType:      domain.RejectedEntityRecord,
		LineNumber:      3,
		RejectCode:      domain.RejectCodeDuplicate,
		Detail:          domain.DuplicateReason,
	}))

	rows, err := repo.ListByFile(ctx, file.FileUploadID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotEmpty(t, row.RejectedID)
		assert.False(t, row.CreatedAt.IsZero())
	}

	n, err := repo.CountByFile(ctx, file.FileUploadID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
