package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldvine/fieldvine/pkg/audit"
	"github.com/fieldvine/fieldvine/pkg/jobs"
	"github.com/fieldvine/fieldvine/pkg/observability"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

// Default business-day bounds applied when neither the entry nor the
// subscription carries a preferred time window.
const (
	defaultDayStartHour = 8
	defaultDayEndHour   = 17
)

// Executor claims due schedule entries and materializes them into jobs,
// exactly once. The claim uses FOR UPDATE SKIP LOCKED: a worker either takes
// a free pending row or moves on immediately, never waiting on a peer.
type Executor struct {
	db     *sql.DB
	jobs   jobs.Store
	events audit.Logger
	cache  subscriptions.PortalCache
	logger *observability.Logger
}

// NewExecutor creates a new Executor. events and cache may be nil.
func NewExecutor(db *sql.DB, jobStore jobs.Store, events audit.Logger, cache subscriptions.PortalCache, logger *observability.Logger) *Executor {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Executor{db: db, jobs: jobStore, events: events, cache: cache, logger: logger}
}

// Cold-start job-number races are rare; one retry usually suffices.
const maxNumberRetries = 3

// MaterializeJob converts a pending schedule entry into a job. A nil job
// with nil error means another worker already claimed the entry or its
// status changed; that is a normal outcome, not a failure.
func (e *Executor) MaterializeJob(ctx context.Context, scheduleEntryID int64) (*jobs.Job, error) {
	var lastErr error
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		job, err := e.materializeOnce(ctx, scheduleEntryID)
		if jobs.IsNumberConflict(err) {
			// A concurrent materialization for the same business took the
			// number first. The rolled-back claim left the entry pending,
			// so re-run with a fresh number read.
			lastErr = err
			continue
		}
		return job, err
	}
	return nil, fmt.Errorf("failed to allocate job number after %d attempts: %w", maxNumberRetries, lastErr)
}

func (e *Executor) materializeOnce(ctx context.Context, scheduleEntryID int64) (*jobs.Job, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		subscriptionID, businessID int64
		scheduledDate              time.Time
		windowStart, windowEnd     *string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT subscription_id, business_id, scheduled_date, window_start, window_end
		FROM schedule_entries
		WHERE id = $1 AND status = 'pending'
		FOR UPDATE SKIP LOCKED
	`, scheduleEntryID).Scan(&subscriptionID, &businessID, &scheduledDate, &windowStart, &windowEnd)
	if err == sql.ErrNoRows {
		// Claimed elsewhere or no longer pending.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim schedule entry: %w", err)
	}

	var (
		customerID                   int64
		status                       subscriptions.Status
		timezone                     string
		preferredStart, preferredEnd *string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT customer_id, status, timezone, preferred_start, preferred_end
		FROM subscriptions
		WHERE id = $1
	`, subscriptionID).Scan(&customerID, &status, &timezone, &preferredStart, &preferredEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}
	if status != subscriptions.StatusActive {
		return nil, fmt.Errorf("cannot materialize entry %d: %w", scheduleEntryID, subscriptions.ErrNotActive)
	}

	job := &jobs.Job{
		BusinessID:      businessID,
		CustomerID:      customerID,
		SubscriptionID:  subscriptionID,
		ScheduleEntryID: scheduleEntryID,
	}
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(address_line1, ''), COALESCE(address_line2, ''),
		       COALESCE(city, ''), COALESCE(region, ''), COALESCE(postal_code, '')
		FROM customers
		WHERE id = $1
	`, customerID).Scan(&job.AddressLine1, &job.AddressLine2, &job.City, &job.Region, &job.PostalCode)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot customer address: %w", err)
	}

	if windowStart == nil {
		windowStart = preferredStart
	}
	if windowEnd == nil {
		windowEnd = preferredEnd
	}
	loc := loadLocation(timezone)
	startHour, startMin := windowClock(windowStart, defaultDayStartHour, 0)
	endHour, endMin := windowClock(windowEnd, defaultDayEndHour, 0)
	job.ScheduledStart = time.Date(scheduledDate.Year(), scheduledDate.Month(), scheduledDate.Day(), startHour, startMin, 0, 0, loc)
	job.ScheduledEnd = time.Date(scheduledDate.Year(), scheduledDate.Month(), scheduledDate.Day(), endHour, endMin, 0, 0, loc)

	job.JobNumber, err = e.jobs.NextNumber(ctx, tx, businessID)
	if err != nil {
		return nil, err
	}
	if err := e.jobs.Create(ctx, tx, job); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE schedule_entries
		SET status = 'job_created', job_id = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
	`, scheduleEntryID, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark entry materialized: %w", err)
	}

	if err := subscriptions.RecomputeNextServiceDate(ctx, tx, subscriptionID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit materialization: %w", err)
	}

	e.logAudit(ctx, &audit.Event{
		EventType:       audit.EventJobMaterialized,
		ActorType:       audit.ActorSystem,
		BusinessID:      businessID,
		SubscriptionID:  &subscriptionID,
		ScheduleEntryID: &scheduleEntryID,
		JobID:           &job.ID,
		Message:         fmt.Sprintf("job %s materialized for %s", job.JobNumber, scheduledDate.Format("2006-01-02")),
	})
	e.invalidate(ctx, businessID, customerID)

	return job, nil
}

// Skip marks a pending future entry skipped. Self-service callers must give
// at least SelfServiceLeadTime notice; staff may skip any future entry. When
// expectedVersion is supplied and stale the call fails with
// ErrVersionConflict and mutates nothing.
func (e *Executor) Skip(ctx context.Context, scheduleEntryID int64, reason string, actor audit.Actor, expectedVersion *int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		subscriptionID, businessID, customerID int64
		scheduledDate                          time.Time
		status                                 EntryStatus
		version                                int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT e.subscription_id, e.business_id, s.customer_id, e.scheduled_date, e.status, e.version
		FROM schedule_entries e
		JOIN subscriptions s ON s.id = e.subscription_id
		WHERE e.id = $1
		FOR UPDATE OF e
	`, scheduleEntryID).Scan(&subscriptionID, &businessID, &customerID, &scheduledDate, &status, &version)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock schedule entry: %w", err)
	}

	if expectedVersion != nil && *expectedVersion != version {
		return fmt.Errorf("expected version %d, found %d: %w", *expectedVersion, version, ErrVersionConflict)
	}
	if status != EntryPending {
		return fmt.Errorf("entry is %q: %w", status, ErrNotPending)
	}

	now := time.Now().UTC()
	if !scheduledDate.After(now) {
		return ErrPastDate
	}
	if actor.Type == audit.ActorCustomer && scheduledDate.Before(now.Add(SelfServiceLeadTime)) {
		return ErrTooLate
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE schedule_entries
		SET status = 'skipped', skip_reason = $2, skipped_at = NOW(),
		    version = version + 1, updated_at = NOW()
		WHERE id = $1
	`, scheduleEntryID, reason)
	if err != nil {
		return fmt.Errorf("failed to skip schedule entry: %w", err)
	}

	if err := subscriptions.RecomputeNextServiceDate(ctx, tx, subscriptionID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit skip: %w", err)
	}

	e.logAudit(ctx, &audit.Event{
		EventType:       audit.EventEntrySkipped,
		ActorType:       actor.Type,
		ActorID:         actor.ID,
		BusinessID:      businessID,
		SubscriptionID:  &subscriptionID,
		ScheduleEntryID: &scheduleEntryID,
		Message:         fmt.Sprintf("visit on %s skipped", scheduledDate.Format("2006-01-02")),
		Metadata:        map[string]any{"reason": reason},
	})
	e.invalidate(ctx, businessID, customerID)

	return nil
}

// GetEntry returns a schedule entry by id
func (e *Executor) GetEntry(ctx context.Context, id int64) (*Entry, error) {
	entry := &Entry{}
	var skipReason sql.NullString
	err := e.db.QueryRowContext(ctx, `
		SELECT id, subscription_id, business_id, scheduled_date, window_start, window_end,
		       status, version, job_id, skip_reason, skipped_at, created_at, updated_at
		FROM schedule_entries
		WHERE id = $1
	`, id).Scan(
		&entry.ID, &entry.SubscriptionID, &entry.BusinessID, &entry.ScheduledDate,
		&entry.WindowStart, &entry.WindowEnd, &entry.Status, &entry.Version,
		&entry.JobID, &skipReason, &entry.SkippedAt, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule entry: %w", err)
	}
	entry.SkipReason = skipReason.String
	return entry, nil
}

// DueEntries returns pending entries due within the lead window, oldest
// first. The sweep feeds these to MaterializeJob.
func (e *Executor) DueEntries(ctx context.Context, businessID int64, leadDays, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := e.db.QueryContext(ctx, `
		SELECT e.id
		FROM schedule_entries e
		JOIN subscriptions s ON s.id = e.subscription_id
		WHERE e.status = 'pending'
		  AND s.status = 'active'
		  AND e.scheduled_date <= CURRENT_DATE + $1 * INTERVAL '1 day'
		  AND ($2 = 0 OR e.business_id = $2)
		ORDER BY e.scheduled_date
		LIMIT $3
	`, leadDays, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due entries: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan due entry: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (e *Executor) logAudit(ctx context.Context, event *audit.Event) {
	if e.events == nil {
		return
	}
	if err := e.events.Log(ctx, event); err != nil {
		e.logger.WithError(err).WithField("event_type", string(event.EventType)).Warn("audit write failed")
	}
}

func (e *Executor) invalidate(ctx context.Context, businessID, customerID int64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateCustomer(ctx, businessID, customerID); err != nil {
		e.logger.WithError(err).Warn("portal cache invalidation failed")
	}
}
