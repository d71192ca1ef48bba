package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wakala/bulkpay/internal/domain"
)

// RejectedRepo writes rejection evidence. Inserts go straight to the
// database, not through the write buffer: evidence must survive even when
// the surrounding aggregate is rolled back.
type RejectedRepo struct {
	db *sql.DB
}

func NewRejectedRepo(db *sql.DB) *RejectedRepo {
	return &RejectedRepo{db: db}
}

func (r *RejectedRepo) Insert(ctx context.Context, rec *domain.RejectedRecord) error {
	if rec.RejectedID == "" {
		rec.RejectedID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rejected_records
		(rejected_id, file_upload_id, bank_reference_id, child_bank_reference_id,
		 entity_type, line_number, reject_code, detail, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.RejectedID, rec.FileUploadID, nullableString(rec.BankReferenceID),
		nullableString(rec.ChildBankRef), rec.EntityType, rec.LineNumber,
		nullableString(rec.RejectCode), rec.Detail,
		rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert rejected record: %w", err)
	}
	return nil
}

func (r *RejectedRepo) ListByFile(ctx context.Context, fileUploadID int64) ([]domain.RejectedRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT * FROM rejected_records WHERE file_upload_id = ? ORDER BY created_at, rejected_id",
		fileUploadID)
	if err != nil {
		return nil, fmt.Errorf("query rejected records: %w", err)
	}
	defer rows.Close()

	var records []domain.RejectedRecord
	for rows.Next() {
		var rec domain.RejectedRecord
		var entityType, createdAt string
		var bankRef, childRef, code sql.NullString
		var line sql.NullInt64
		err := rows.Scan(&rec.RejectedID, &rec.FileUploadID, &bankRef, &childRef,
			&entityType, &line, &code, &rec.Detail, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan rejected record: %w", err)
		}
		rec.BankReferenceID = bankRef.String
		rec.ChildBankRef = childRef.String
		rec.EntityType = entityType
		rec.LineNumber = int(line.Int64)
		rec.RejectCode = code.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *RejectedRepo) CountByFile(ctx context.Context, fileUploadID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM rejected_records WHERE file_upload_id = ?",
		fileUploadID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rejected records: %w", err)
	}
	return n, nil
}
