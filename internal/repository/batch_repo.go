package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/bulkpay/internal/domain"
)

type BatchRepo struct {
	db *sql.DB
}

func NewBatchRepo(db *sql.DB) *BatchRepo {
	return &BatchRepo{db: db}
}

// InsertBatch flushes the buffer with the batch header insert and returns
// the generated transaction id. Children are staged afterwards against it.
func (r *BatchRepo) InsertBatch(ctx context.Context, buf *WriteBuffer, b *domain.PaymentBatch) (int64, error) {
	id, err := buf.InsertAndFlush(ctx,
		`INSERT INTO payment_batches
		(file_upload_id, bank_reference_id, debtor_account, account_currency,
		 transaction_currency, total_amount, highest_amount, total_child,
		 rejected_child, batch_booking, recipients_reference, status,
		 transfer_date, initiated_by, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.FileUploadID, b.BankReferenceID, b.DebtorAccount, b.AccountCurrency,
		b.TransactionCurrency, b.TotalAmount.String(), b.HighestAmount.String(),
		b.TotalChild, b.RejectedChild, b.BatchBooking, nullableString(b.RecipientsReference),
		string(b.Status), formatNullableTime(b.TransferDate), b.InitiatedBy,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("insert payment batch: %w", err)
	}
	b.TransactionID = id
	return id, nil
}

// StageRecord enqueues a payment record insert on the buffer.
func (r *BatchRepo) StageRecord(buf *WriteBuffer, rec *domain.PaymentRecord) {
	buf.Stage(
		`INSERT INTO payment_records
		(transaction_id, bank_reference_id, child_bank_reference_id, amount,
		 currency, creditor_name, creditor_account, creditor_bank_code,
		 creditor_swift_code, creditor_country, customer_reference, purpose_code,
		 fx_contract_id, fx_flag, payment_details, value_date, status,
		 reject_reason, reject_code, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.TransactionID, rec.BankReferenceID, rec.ChildBankRef, rec.Amount.String(),
		rec.Currency, rec.CreditorName, rec.CreditorAccount,
		nullableString(rec.CreditorBankCode), nullableString(rec.CreditorSwiftCode),
		rec.CreditorCountry, nullableString(rec.CustomerReference),
		nullableString(rec.PurposeCode), nullableString(rec.FxContractID),
		nullableString(rec.FxFlag), nullableString(rec.PaymentDetails),
		rec.ValueDate.Format(time.RFC3339), string(rec.Status),
		nullableString(rec.RejectReason), nullableString(rec.RejectCode),
		time.Now().UTC().Format(time.RFC3339),
	)
}

func (r *BatchRepo) StageCharge(buf *WriteBuffer, c *domain.TransactionCharge) {
	buf.Stage(
		`INSERT INTO transaction_charges
		(transaction_id, child_bank_reference_id, fees_amount, fees_currency, charge_bearer)
		VALUES (?,?,?,?,?)`,
		c.TransactionID, c.ChildBankRef, c.FeesAmount.String(),
		nullableString(c.FeesCurrency), nullableString(c.ChargeBearer),
	)
}

func (r *BatchRepo) StageAdvice(buf *WriteBuffer, a *domain.TransactionAdvice) {
	buf.Stage(
		`INSERT INTO transaction_advices
		(transaction_id, child_bank_reference_id, delivery_mode, party_name, address)
		VALUES (?,?,?,?,?)`,
		a.TransactionID, a.ChildBankRef, nullableString(a.DeliveryMode),
		a.PartyName, nullableString(a.Address),
	)
}

func (r *BatchRepo) StageContact(buf *WriteBuffer, c *domain.PartyContact) {
	buf.Stage(
		`INSERT INTO party_contacts
		(transaction_id, child_bank_reference_id, party_name, phone_number,
		 address_line_1, address_line_2, address_line_3, address_line_4, country)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		c.TransactionID, c.ChildBankRef, c.PartyName, nullableString(c.PhoneNumber),
		nullableString(c.AddressLine1), nullableString(c.AddressLine2),
		nullableString(c.AddressLine3), nullableString(c.AddressLine4),
		nullableString(c.Country),
	)
}

func (r *BatchRepo) StageFxContract(buf *WriteBuffer, fx *domain.FxContract) {
	buf.Stage(
		`INSERT INTO fx_contracts
		(transaction_id, child_bank_reference_id, contract_id, contract_type,
		 rate, target_currency, contract_amount, utilised_amount, value_date,
		 equivalent_currency)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		fx.TransactionID, fx.ChildBankRef, fx.ContractID, nullableString(fx.ContractType),
		fx.Rate.String(), nullableString(fx.TargetCurrency), fx.ContractAmount.String(),
		fx.UtilisedAmount.String(), formatNullableTime(fx.ValueDate),
		nullableString(fx.EquivalentCurr),
	)
}

// TransactionIDs returns the ids of every batch persisted for a file, in
// insertion order.
func (r *BatchRepo) TransactionIDs(ctx context.Context, fileUploadID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT transaction_id FROM payment_batches WHERE file_upload_id = ? ORDER BY transaction_id",
		fileUploadID)
	if err != nil {
		return nil, fmt.Errorf("query transaction ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan transaction id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *BatchRepo) BatchesByFile(ctx context.Context, fileUploadID int64) ([]domain.PaymentBatch, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT * FROM payment_batches WHERE file_upload_id = ? ORDER BY transaction_id",
		fileUploadID)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []domain.PaymentBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

func (r *BatchRepo) GetByBankReference(ctx context.Context, bankRef string) (*domain.PaymentBatch, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT * FROM payment_batches WHERE bank_reference_id = ?", bankRef)
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return b, nil
}

// ChildStatuses returns the status of every record of a batch. The batch
// outcome is always derived from this list, never stored independently.
func (r *BatchRepo) ChildStatuses(ctx context.Context, bankRef string) ([]domain.RecordStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status FROM payment_records WHERE bank_reference_id = ?", bankRef)
	if err != nil {
		return nil, fmt.Errorf("query child statuses: %w", err)
	}
	defer rows.Close()

	var statuses []domain.RecordStatus
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan child status: %w", err)
		}
		statuses = append(statuses, domain.RecordStatus(s))
	}
	return statuses, rows.Err()
}

func (r *BatchRepo) RecordsByBatch(ctx context.Context, bankRef string) ([]domain.PaymentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT * FROM payment_records WHERE bank_reference_id = ? ORDER BY record_id", bankRef)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []domain.PaymentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *BatchRepo) UpdateBatchStatus(ctx context.Context, transactionID int64, status domain.BulkStatus) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE payment_batches SET status = ? WHERE transaction_id = ?",
		string(status), transactionID)
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	return nil
}

// SoftDeleteRecord flips one record to DELETED with a reason; the row stays
// for the audit trail.
func (r *BatchRepo) SoftDeleteRecord(ctx context.Context, childRef, reason, code string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_records SET status = ?, reject_reason = ?, reject_code = ?
		 WHERE child_bank_reference_id = ?`,
		string(domain.RecordDeleted), reason, code, childRef)
	if err != nil {
		return fmt.Errorf("soft delete record %s: %w", childRef, err)
	}
	return nil
}

// SoftDeleteBatch flips a batch and all its records to DELETED.
func (r *BatchRepo) SoftDeleteBatch(ctx context.Context, bankRef, reason, code string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payment_records SET status = ?, reject_reason = ?, reject_code = ?
		 WHERE bank_reference_id = ?`,
		string(domain.RecordDeleted), reason, code, bankRef)
	if err != nil {
		return fmt.Errorf("soft delete batch records %s: %w", bankRef, err)
	}
	_, err = r.db.ExecContext(ctx,
		"UPDATE payment_batches SET status = ? WHERE bank_reference_id = ?",
		string(domain.BulkDeleted), bankRef)
	if err != nil {
		return fmt.Errorf("soft delete batch %s: %w", bankRef, err)
	}
	return nil
}

// RecomputeAggregates refreshes a batch's derived columns (total amount,
// highest amount, child counts) from its surviving records.
func (r *BatchRepo) RecomputeAggregates(ctx context.Context, transactionID int64) error {
	rows, err := r.db.QueryContext(ctx,
		"SELECT amount, status FROM payment_records WHERE transaction_id = ?", transactionID)
	if err != nil {
		return fmt.Errorf("query record amounts: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	highest := decimal.Zero
	children, rejected := 0, 0
	for rows.Next() {
		var amountStr, status string
		if err := rows.Scan(&amountStr, &status); err != nil {
			return fmt.Errorf("scan record amount: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("parse amount %q: %w", amountStr, err)
		}
		children++
		if domain.RecordStatus(status) == domain.RecordDeleted {
			rejected++
			continue
		}
		total = total.Add(amount)
		if amount.GreaterThan(highest) {
			highest = amount
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE payment_batches
		 SET total_amount = ?, highest_amount = ?, total_child = ?, rejected_child = ?
		 WHERE transaction_id = ?`,
		total.String(), highest.String(), children, rejected, transactionID)
	if err != nil {
		return fmt.Errorf("update aggregates: %w", err)
	}
	return nil
}

// --- helpers ---

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func scanBatch(row rowScanner) (*domain.PaymentBatch, error) {
	var b domain.PaymentBatch
	var totalStr, highestStr, status, createdAt string
	var accountCur, txnCur, recipRef, transferDate sql.NullString

	err := row.Scan(
		&b.TransactionID, &b.FileUploadID, &b.BankReferenceID, &b.DebtorAccount,
		&accountCur, &txnCur, &totalStr, &highestStr, &b.TotalChild,
		&b.RejectedChild, &b.BatchBooking, &recipRef, &status, &transferDate,
		&b.InitiatedBy, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	b.AccountCurrency = accountCur.String
	b.TransactionCurrency = txnCur.String
	b.RecipientsReference = recipRef.String
	b.Status = domain.BulkStatus(status)
	if b.TotalAmount, err = decimal.NewFromString(totalStr); err != nil {
		return nil, fmt.Errorf("parse total amount: %w", err)
	}
	if b.HighestAmount, err = decimal.NewFromString(highestStr); err != nil {
		return nil, fmt.Errorf("parse highest amount: %w", err)
	}
	if transferDate.Valid {
		t, err := time.Parse(time.RFC3339, transferDate.String)
		if err == nil {
			b.TransferDate = &t
		}
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &b, nil
}

func scanRecord(row rowScanner) (*domain.PaymentRecord, error) {
	var rec domain.PaymentRecord
	var amountStr, status, valueDate, createdAt string
	var bankCode, swiftCode, custRef, purpose, fxID, fxFlag, details, reason, code sql.NullString

	err := row.Scan(
		&rec.RecordID, &rec.TransactionID, &rec.BankReferenceID, &rec.ChildBankRef,
		&amountStr, &rec.Currency, &rec.CreditorName, &rec.CreditorAccount,
		&bankCode, &swiftCode, &rec.CreditorCountry, &custRef, &purpose,
		&fxID, &fxFlag, &details, &valueDate, &status, &reason, &code, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("parse record amount: %w", err)
	}
	rec.CreditorBankCode = bankCode.String
	rec.CreditorSwiftCode = swiftCode.String
	rec.CustomerReference = custRef.String
	rec.PurposeCode = purpose.String
	rec.FxContractID = fxID.String
	rec.FxFlag = fxFlag.String
	rec.PaymentDetails = details.String
	rec.Status = domain.RecordStatus(status)
	rec.RejectReason = reason.String
	rec.RejectCode = code.String
	rec.ValueDate, _ = time.Parse(time.RFC3339, valueDate)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &rec, nil
}
