package postgres

import (
	"database/sql"
	"fmt"
)

// EnsureSchema creates the engine's core tables if they don't exist. The
// audit log and number sequence tables are owned by their packages and
// bootstrap themselves the same way.
func EnsureSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id BIGSERIAL PRIMARY KEY,
			business_id BIGINT NOT NULL,
			name VARCHAR(255) NOT NULL,
			email VARCHAR(255),
			address_line1 VARCHAR(255),
			address_line2 VARCHAR(255),
			city VARCHAR(100),
			region VARCHAR(100),
			postal_code VARCHAR(20),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			id BIGSERIAL PRIMARY KEY,
			public_id UUID NOT NULL UNIQUE,
			business_id BIGINT NOT NULL,
			customer_id BIGINT NOT NULL REFERENCES customers(id),
			service_plan_id BIGINT,
			subscription_number VARCHAR(40) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'draft',
			frequency VARCHAR(20) NOT NULL,
			billing_model VARCHAR(20) NOT NULL,
			price_per_visit NUMERIC(12,2) NOT NULL DEFAULT 0,
			start_date DATE NOT NULL,
			end_date DATE,
			pause_start DATE,
			pause_end DATE,
			preferred_day SMALLINT,
			preferred_start VARCHAR(5),
			preferred_end VARCHAR(5),
			timezone VARCHAR(64) NOT NULL DEFAULT 'UTC',
			next_service_date DATE,
			next_billing_date DATE,
			cancel_reason TEXT,
			cancelled_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (business_id, subscription_number)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_subscriptions_customer ON subscriptions(business_id, customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_status ON subscriptions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_next_billing ON subscriptions(next_billing_date) WHERE status = 'active'`,

		`CREATE TABLE IF NOT EXISTS subscription_line_items (
			id BIGSERIAL PRIMARY KEY,
			subscription_id BIGINT NOT NULL REFERENCES subscriptions(id) ON DELETE CASCADE,
			description VARCHAR(500) NOT NULL,
			quantity NUMERIC(10,2) NOT NULL DEFAULT 1,
			unit_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			total NUMERIC(12,2) NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS schedule_entries (
			id BIGSERIAL PRIMARY KEY,
			subscription_id BIGINT NOT NULL REFERENCES subscriptions(id),
			business_id BIGINT NOT NULL,
			scheduled_date DATE NOT NULL,
			window_start VARCHAR(5),
			window_end VARCHAR(5),
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			version BIGINT NOT NULL DEFAULT 1,
			job_id BIGINT,
			skip_reason TEXT,
			skipped_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (subscription_id, scheduled_date)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_schedule_entries_due ON schedule_entries(scheduled_date) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_schedule_entries_subscription ON schedule_entries(subscription_id, status)`,

		`CREATE TABLE IF NOT EXISTS jobs (
			id BIGSERIAL PRIMARY KEY,
			business_id BIGINT NOT NULL,
			customer_id BIGINT NOT NULL REFERENCES customers(id),
			subscription_id BIGINT NOT NULL REFERENCES subscriptions(id),
			schedule_entry_id BIGINT NOT NULL REFERENCES schedule_entries(id),
			job_number VARCHAR(40) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'scheduled',
			scheduled_start TIMESTAMP WITH TIME ZONE NOT NULL,
			scheduled_end TIMESTAMP WITH TIME ZONE NOT NULL,
			address_line1 VARCHAR(255) NOT NULL DEFAULT '',
			address_line2 VARCHAR(255) NOT NULL DEFAULT '',
			city VARCHAR(100) NOT NULL DEFAULT '',
			region VARCHAR(100) NOT NULL DEFAULT '',
			postal_code VARCHAR(20) NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (schedule_entry_id),
			UNIQUE (business_id, job_number)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_jobs_business ON jobs(business_id, id DESC)`,

		`CREATE TABLE IF NOT EXISTS invoices (
			id BIGSERIAL PRIMARY KEY,
			business_id BIGINT NOT NULL,
			customer_id BIGINT NOT NULL REFERENCES customers(id),
			subscription_id BIGINT NOT NULL REFERENCES subscriptions(id),
			schedule_entry_id BIGINT REFERENCES schedule_entries(id),
			invoice_number VARCHAR(40) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'open',
			period_start DATE NOT NULL,
			period_end DATE NOT NULL,
			subtotal NUMERIC(12,2) NOT NULL DEFAULT 0,
			total NUMERIC(12,2) NOT NULL DEFAULT 0,
			due_date DATE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (business_id, invoice_number)
		)`,

		`CREATE TABLE IF NOT EXISTS invoice_line_items (
			id BIGSERIAL PRIMARY KEY,
			invoice_id BIGINT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
			description VARCHAR(500) NOT NULL,
			quantity NUMERIC(10,2) NOT NULL DEFAULT 1,
			unit_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			total NUMERIC(12,2) NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
