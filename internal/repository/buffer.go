package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// WriteBuffer accumulates pending writes for one pipeline run and commits
// them at explicit flush checkpoints. A flush applies every staged statement
// in enqueue order inside a single transaction: it either fully succeeds or
// leaves the database untouched.
type WriteBuffer struct {
	db     *sql.DB
	staged []stagedStmt
}

type stagedStmt struct {
	query string
	args  []any
}

func NewWriteBuffer(db *sql.DB) *WriteBuffer {
	return &WriteBuffer{db: db}
}

// Stage enqueues one write without touching the database.
func (b *WriteBuffer) Stage(query string, args ...any) {
	b.staged = append(b.staged, stagedStmt{query: query, args: args})
}

// Pending returns the number of staged, unflushed writes.
func (b *WriteBuffer) Pending() int {
	return len(b.staged)
}

// Flush commits all staged writes as one durable unit and clears the queue.
func (b *WriteBuffer) Flush(ctx context.Context) error {
	_, err := b.flush(ctx, nil)
	return err
}

// InsertAndFlush stages a single insert, flushes everything staged so far in
// one transaction, and returns the insert's generated key. Used when a later
// step needs the key, e.g. the batch transaction id before building children.
func (b *WriteBuffer) InsertAndFlush(ctx context.Context, query string, args ...any) (int64, error) {
	return b.flush(ctx, &stagedStmt{query: query, args: args})
}

func (b *WriteBuffer) flush(ctx context.Context, last *stagedStmt) (int64, error) {
	if len(b.staged) == 0 && last == nil {
		return 0, nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin flush tx: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range b.staged {
		if _, err := tx.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return 0, fmt.Errorf("flush stmt %d: %w", i, err)
		}
	}

	var key int64
	if last != nil {
		res, err := tx.ExecContext(ctx, last.query, last.args...)
		if err != nil {
			return 0, fmt.Errorf("flush insert: %w", err)
		}
		if key, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("flush insert key: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit flush: %w", err)
	}
	b.staged = b.staged[:0]
	return key, nil
}

// Discard drops all staged writes without applying them.
func (b *WriteBuffer) Discard() {
	b.staged = b.staged[:0]
}

// DeleteAggregate removes a payment batch, its records and every satellite
// row for the given transaction id. This is the single compensation
// primitive invoked from every abort path; nothing flushed can be rolled
// back any other way.
func (b *WriteBuffer) DeleteAggregate(ctx context.Context, transactionID int64) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	tables := []string{
		"transaction_charges",
		"transaction_advices",
		"party_contacts",
		"fx_contracts",
		"payment_records",
		"payment_batches",
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE transaction_id = ?", transactionID); err != nil {
			return fmt.Errorf("delete %s for txn %d: %w", table, transactionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	log.Printf("[repository] Deleted aggregate for transaction %d", transactionID)
	return nil
}
