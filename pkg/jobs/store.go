package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Store persists jobs. Create and NextNumber take the caller's transaction
// so job creation commits atomically with the schedule entry transition that
// produced it.
type Store interface {
	Create(ctx context.Context, tx *sql.Tx, job *Job) error
	Get(ctx context.Context, id int64) (*Job, error)
	NextNumber(ctx context.Context, tx *sql.Tx, businessID int64) (string, error)
}

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts the job within the caller's transaction and populates its
// ID and timestamps.
func (s *PostgresStore) Create(ctx context.Context, tx *sql.Tx, job *Job) error {
	if job.Status == "" {
		job.Status = JobStatusScheduled
	}

	query := `
		INSERT INTO jobs (
			business_id, customer_id, subscription_id, schedule_entry_id, job_number,
			status, scheduled_start, scheduled_end,
			address_line1, address_line2, city, region, postal_code
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, $13
		) RETURNING id, created_at, updated_at
	`
	err := tx.QueryRowContext(ctx, query,
		job.BusinessID, job.CustomerID, job.SubscriptionID, job.ScheduleEntryID, job.JobNumber,
		job.Status, job.ScheduledStart, job.ScheduledEnd,
		job.AddressLine1, job.AddressLine2, job.City, job.Region, job.PostalCode,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get returns a job by id
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Job, error) {
	query := `
		SELECT id, business_id, customer_id, subscription_id, schedule_entry_id, job_number,
		       status, scheduled_start, scheduled_end,
		       address_line1, address_line2, city, region, postal_code,
		       created_at, updated_at
		FROM jobs
		WHERE id = $1
	`
	job := &Job{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.BusinessID, &job.CustomerID, &job.SubscriptionID, &job.ScheduleEntryID, &job.JobNumber,
		&job.Status, &job.ScheduledStart, &job.ScheduledEnd,
		&job.AddressLine1, &job.AddressLine2, &job.City, &job.Region, &job.PostalCode,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// IsNumberConflict reports whether err is a unique violation on the
// business-scoped job number. With no jobs yet for a business the latest-row
// lock in NextNumber has nothing to lock, so two concurrent allocations can
// both derive the first number; the loser's insert trips the constraint and
// the caller retries with a fresh read.
func IsNumberConflict(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) &&
		pqErr.Code.Name() == "unique_violation" &&
		strings.Contains(pqErr.Constraint, "job_number")
}

var numberSuffix = regexp.MustCompile(`(\d+)$`)

// NextNumber derives the next business-scoped job number from the numeric
// suffix of the latest existing number. Locking the latest row serializes
// concurrent allocators within a business.
func (s *PostgresStore) NextNumber(ctx context.Context, tx *sql.Tx, businessID int64) (string, error) {
	var latest string
	err := tx.QueryRowContext(ctx, `
		SELECT job_number FROM jobs
		WHERE business_id = $1
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE
	`, businessID).Scan(&latest)
	if err == sql.ErrNoRows {
		return "JOB-00001", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read latest job number: %w", err)
	}

	match := numberSuffix.FindString(latest)
	if match == "" {
		return "JOB-00001", nil
	}
	n, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return "", fmt.Errorf("failed to parse job number %q: %w", latest, err)
	}
	return fmt.Sprintf("JOB-%05d", n+1), nil
}
