// Package refgen reserves monotonic sequence numbers and synthesizes
// human-readable bank reference numbers from them.
package refgen

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SequenceSource reserves n sequence values. Values are monotonic and unique
// across concurrent callers; gaps are expected when a caller aborts after
// reserving. A reservation failure is fatal for the whole file.
type SequenceSource interface {
	Reserve(ctx context.Context, n int) ([]int64, error)
}

// SQLiteSequence backs reservations with a single-row counter table. The
// whole block is claimed by one UPDATE, so concurrent callers can never
// overlap.
type SQLiteSequence struct {
	db   *sql.DB
	name string
}

func NewSQLiteSequence(db *sql.DB, name string) *SQLiteSequence {
	return &SQLiteSequence{db: db, name: name}
}

func (s *SQLiteSequence) Reserve(ctx context.Context, n int) ([]int64, error) {
	if n <= 0 {
		return nil, nil
	}

	var last int64
	err := s.db.QueryRowContext(ctx,
		"UPDATE reference_sequences SET value = value + ? WHERE name = ? RETURNING value",
		n, s.name,
	).Scan(&last)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("reserve sequence %q: sequence not seeded", s.name)
	}
	if err != nil {
		return nil, fmt.Errorf("reserve sequence %q: %w", s.name, err)
	}

	ids := make([]int64, n)
	for i := range ids {
		ids[i] = last - int64(n) + int64(i) + 1
	}
	return ids, nil
}

// Generator synthesizes bank reference numbers from a date, a reserved
// sequence value and per-resource metadata.
type Generator struct {
	batchPrefix string
	childPrefix string
	entityCode  string
}

func NewGenerator(batchPrefix, childPrefix, entityCode string) *Generator {
	return &Generator{
		batchPrefix: batchPrefix,
		childPrefix: childPrefix,
		entityCode:  entityCode,
	}
}

// BatchReference builds a batch-level bank reference, e.g. "GCB2603050000123W".
func (g *Generator) BatchReference(t time.Time, seq int64) string {
	return fmt.Sprintf("%s%s%07d%s", g.batchPrefix, t.Format("060102"), seq, g.entityCode)
}

// ChildReference builds a record-level bank reference for one payment line.
func (g *Generator) ChildReference(t time.Time, seq int64) string {
	return fmt.Sprintf("%s%s%07d%s", g.childPrefix, t.Format("060102"), seq, g.entityCode)
}
