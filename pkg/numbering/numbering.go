// Package numbering allocates business-scoped monotonic document numbers
// (subscriptions, invoices) from an upsert counter table. Numbers are
// gap-tolerant: a rolled-back caller leaves a hole, never a duplicate.
package numbering

import (
	"context"
	"database/sql"
	"fmt"
)

// Scope names an independent number sequence within a business. Job numbers
// are not allocated here: they continue the numeric suffix of whatever
// numbering the business already uses, see pkg/jobs.
type Scope string

const (
	ScopeSubscription Scope = "subscription"
	ScopeInvoice      Scope = "invoice"
)

// Allocator hands out the next number for a business-scoped sequence
type Allocator interface {
	Next(ctx context.Context, businessID int64, scope Scope) (int64, error)
}

// PostgresAllocator implements Allocator on a counter table
type PostgresAllocator struct {
	db *sql.DB
}

// NewPostgresAllocator creates a new PostgresAllocator
func NewPostgresAllocator(db *sql.DB) (*PostgresAllocator, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	a := &PostgresAllocator{db: db}
	if err := a.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure number_sequences table: %w", err)
	}
	return a, nil
}

func (a *PostgresAllocator) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS number_sequences (
		business_id BIGINT NOT NULL,
		scope VARCHAR(40) NOT NULL,
		last_value BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (business_id, scope)
	);
	`
	_, err := a.db.Exec(query)
	return err
}

// Next atomically increments and returns the sequence value. The upsert row
// lock serializes concurrent allocators for the same (business, scope).
func (a *PostgresAllocator) Next(ctx context.Context, businessID int64, scope Scope) (int64, error) {
	query := `
		INSERT INTO number_sequences (business_id, scope, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (business_id, scope) DO UPDATE
		SET last_value = number_sequences.last_value + 1, updated_at = NOW()
		RETURNING last_value
	`

	var value int64
	if err := a.db.QueryRowContext(ctx, query, businessID, scope).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to allocate %s number: %w", scope, err)
	}
	return value, nil
}

// Format renders a sequence value as a document number, e.g. SUB-00042
func Format(scope Scope, value int64) string {
	prefix := map[Scope]string{
		ScopeSubscription: "SUB",
		ScopeInvoice:      "INV",
	}[scope]
	return fmt.Sprintf("%s-%05d", prefix, value)
}
