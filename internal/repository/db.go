package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS file_uploads (
			file_upload_id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_reference_id TEXT UNIQUE NOT NULL,
			bank_reference_id TEXT,
			file_name TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			feature_id TEXT NOT NULL,
			company_id INTEGER NOT NULL,
			company_group_id INTEGER,
			status TEXT NOT NULL,
			reject_code TEXT,
			created_by TEXT NOT NULL,
			updated_by TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_file_uploads_status ON file_uploads(status)`,

		`CREATE TABLE IF NOT EXISTS payment_batches (
			transaction_id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_upload_id INTEGER NOT NULL,
			bank_reference_id TEXT UNIQUE NOT NULL,
			debtor_account TEXT NOT NULL,
			account_currency TEXT,
			transaction_currency TEXT,
			total_amount TEXT NOT NULL DEFAULT '0',
			highest_amount TEXT NOT NULL DEFAULT '0',
			total_child INTEGER NOT NULL DEFAULT 0,
			rejected_child INTEGER NOT NULL DEFAULT 0,
			batch_booking INTEGER NOT NULL DEFAULT 0,
			recipients_reference TEXT,
			status TEXT NOT NULL,
			transfer_date DATETIME,
			initiated_by INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (file_upload_id) REFERENCES file_uploads(file_upload_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_batches_file ON payment_batches(file_upload_id)`,

		`CREATE TABLE IF NOT EXISTS payment_records (
			record_id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id INTEGER NOT NULL,
			bank_reference_id TEXT NOT NULL,
			child_bank_reference_id TEXT UNIQUE NOT NULL,
			amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			creditor_name TEXT NOT NULL,
			creditor_account TEXT NOT NULL,
			creditor_bank_code TEXT,
			creditor_swift_code TEXT,
			creditor_country TEXT NOT NULL,
			customer_reference TEXT,
			purpose_code TEXT,
			fx_contract_id TEXT,
			fx_flag TEXT,
			payment_details TEXT,
			value_date DATETIME NOT NULL,
			status TEXT NOT NULL,
			reject_reason TEXT,
			reject_code TEXT,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (transaction_id) REFERENCES payment_batches(transaction_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_records_txn ON payment_records(transaction_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_records_batch_ref ON payment_records(bank_reference_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_records_status ON payment_records(status)`,

		`CREATE TABLE IF NOT EXISTS rejected_records (
			rejected_id TEXT PRIMARY KEY,
			file_upload_id INTEGER NOT NULL,
			bank_reference_id TEXT,
			child_bank_reference_id TEXT,
			entity_type TEXT NOT NULL,
			line_number INTEGER,
			reject_code TEXT,
			detail TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rejected_records_file ON rejected_records(file_upload_id)`,

		`CREATE TABLE IF NOT EXISTS transaction_charges (
			charge_id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id INTEGER NOT NULL,
			child_bank_reference_id TEXT NOT NULL,
			fees_amount TEXT NOT NULL DEFAULT '0',
			fees_currency TEXT,
			charge_bearer TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_charges_txn ON transaction_charges(transaction_id)`,

		`CREATE TABLE IF NOT EXISTS transaction_advices (
			advice_id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id INTEGER NOT NULL,
			child_bank_reference_id TEXT NOT NULL,
			delivery_mode TEXT,
			party_name TEXT,
			address TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_advices_txn ON transaction_advices(transaction_id)`,

		`CREATE TABLE IF NOT EXISTS party_contacts (
			contact_id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id INTEGER NOT NULL,
			child_bank_reference_id TEXT NOT NULL,
			party_name TEXT,
			phone_number TEXT,
			address_line_1 TEXT,
			address_line_2 TEXT,
			address_line_3 TEXT,
			address_line_4 TEXT,
			country TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_party_contacts_txn ON party_contacts(transaction_id)`,

		`CREATE TABLE IF NOT EXISTS fx_contracts (
			contract_row_id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id INTEGER NOT NULL,
			child_bank_reference_id TEXT NOT NULL,
			contract_id TEXT NOT NULL,
			contract_type TEXT,
			rate TEXT NOT NULL DEFAULT '0',
			target_currency TEXT,
			contract_amount TEXT NOT NULL DEFAULT '0',
			utilised_amount TEXT NOT NULL DEFAULT '0',
			value_date DATETIME,
			equivalent_currency TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fx_contracts_txn ON fx_contracts(transaction_id)`,

		`CREATE TABLE IF NOT EXISTS reference_sequences (
			name TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`,
		`INSERT OR IGNORE INTO reference_sequences (name, value) VALUES ('bank_ref', 0)`,

		// Reference data, seeded externally and read once per file.
		`CREATE TABLE IF NOT EXISTS ref_currencies (
			resource_id TEXT NOT NULL,
			code TEXT NOT NULL,
			minor_unit INTEGER NOT NULL DEFAULT 2,
			threshold TEXT NOT NULL DEFAULT '0',
			phone_check INTEGER NOT NULL DEFAULT 0,
			purpose_required INTEGER NOT NULL DEFAULT 0,
			uses_local_code INTEGER NOT NULL DEFAULT 0,
			uses_swift_code INTEGER NOT NULL DEFAULT 0,
			address_check INTEGER NOT NULL DEFAULT 0,
			fx_managed INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (resource_id, code)
		)`,
		`CREATE TABLE IF NOT EXISTS ref_countries (
			alpha2 TEXT PRIMARY KEY,
			phone_code TEXT NOT NULL,
			requires_iban INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS ref_banks (
			resource_id TEXT NOT NULL,
			country_code TEXT NOT NULL,
			bank_code TEXT,
			swift_code TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ref_banks_resource ON ref_banks(resource_id, country_code)`,
		`CREATE TABLE IF NOT EXISTS ref_entitlements (
			user_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			feature_id TEXT NOT NULL,
			action TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ref_company_accounts (
			company_id INTEGER NOT NULL,
			account_number TEXT NOT NULL,
			account_currency TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ref_company_policies (
			company_id INTEGER PRIMARY KEY,
			reject_file_on_error TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ref_resource_configs (
			resource_id TEXT NOT NULL,
			config_code TEXT NOT NULL,
			config_value TEXT NOT NULL,
			PRIMARY KEY (resource_id, config_code)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
