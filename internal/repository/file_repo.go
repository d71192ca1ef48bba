package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wakala/bulkpay/internal/domain"
)

type FileRepo struct {
	db *sql.DB
}

func NewFileRepo(db *sql.DB) *FileRepo {
	return &FileRepo{db: db}
}

func (r *FileRepo) Insert(ctx context.Context, f *domain.FileUpload) (int64, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO file_uploads
		(file_reference_id, bank_reference_id, file_name, resource_id, feature_id,
		 company_id, company_group_id, status, reject_code, created_by, updated_by,
		 created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		f.FileReferenceID, nullableString(f.BankReferenceID), f.FileName,
		f.ResourceID, f.FeatureID, f.CompanyID, f.CompanyGroupID,
		string(f.Status), nullableString(f.RejectCode), f.CreatedBy,
		nullableString(f.UpdatedBy), now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("insert file upload: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("file upload key: %w", err)
	}
	f.FileUploadID = id
	return id, nil
}

// GetByReference returns the file for the given client reference, or nil
// when no file with that reference exists.
func (r *FileRepo) GetByReference(ctx context.Context, fileRef string) (*domain.FileUpload, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT * FROM file_uploads WHERE file_reference_id = ?", fileRef)
	f, err := scanFileUpload(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file by reference: %w", err)
	}
	return f, nil
}

// UpdateStatus persists the file's terminal fields: status, bank reference,
// reject code and the updating user.
func (r *FileRepo) UpdateStatus(ctx context.Context, f *domain.FileUpload) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE file_uploads
		 SET status = ?, bank_reference_id = ?, reject_code = ?, updated_by = ?, updated_at = ?
		 WHERE file_upload_id = ?`,
		string(f.Status), nullableString(f.BankReferenceID), nullableString(f.RejectCode),
		nullableString(f.UpdatedBy), time.Now().UTC().Format(time.RFC3339), f.FileUploadID,
	)
	if err != nil {
		return fmt.Errorf("update file status: %w", err)
	}
	return nil
}

type FileFilter struct {
	Status    string
	CompanyID int64
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

func (r *FileRepo) List(ctx context.Context, f FileFilter) ([]domain.FileUpload, int, error) {
	where, args := buildFileWhere(f)

	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM file_uploads"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	rows, err := r.db.QueryContext(ctx,
		"SELECT * FROM file_uploads"+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?",
		append(args, f.Limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var files []domain.FileUpload
	for rows.Next() {
		fu, err := scanFileUploadRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		files = append(files, *fu)
	}
	return files, total, rows.Err()
}

// DashboardStats holds aggregate file-processing statistics.
type DashboardStats struct {
	TotalFiles   int `json:"total_files"`
	Success      int `json:"success"`
	Partial      int `json:"partial"`
	UploadFailed int `json:"upload_failed"`
	Rejected     int `json:"rejected"`
	TotalBatches int `json:"total_batches"`
	TotalRecords int `json:"total_records"`
}

func (r *FileRepo) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	s := &DashboardStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status='SUCCESS' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status='PARTIAL' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status='UPLOAD_FAILED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status='REJECTED' THEN 1 ELSE 0 END), 0),
			(SELECT COUNT(*) FROM payment_batches),
			(SELECT COUNT(*) FROM payment_records)
		FROM file_uploads
	`).Scan(&s.TotalFiles, &s.Success, &s.Partial, &s.UploadFailed, &s.Rejected,
		&s.TotalBatches, &s.TotalRecords)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return s, nil
}

// --- helpers ---

func buildFileWhere(f FileFilter) (string, []any) {
	var clauses []string
	var args []any

	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.CompanyID != 0 {
		clauses = append(clauses, "company_id = ?")
		args = append(args, f.CompanyID)
	}
	if f.From != nil {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From.Format(time.RFC3339))
	}
	if f.To != nil {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, f.To.Format(time.RFC3339))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileUpload(row rowScanner) (*domain.FileUpload, error) {
	var f domain.FileUpload
	var status, createdAt, updatedAt string
	var bankRef, rejectCode, updatedBy sql.NullString
	var groupID sql.NullInt64

	err := row.Scan(
		&f.FileUploadID, &f.FileReferenceID, &bankRef, &f.FileName,
		&f.ResourceID, &f.FeatureID, &f.CompanyID, &groupID, &status,
		&rejectCode, &f.CreatedBy, &updatedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Status = domain.FileStatus(status)
	f.BankReferenceID = bankRef.String
	f.RejectCode = rejectCode.String
	f.UpdatedBy = updatedBy.String
	f.CompanyGroupID = groupID.Int64
	f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &f, nil
}

func scanFileUploadRows(rows *sql.Rows) (*domain.FileUpload, error) {
	return scanFileUpload(rows)
}
