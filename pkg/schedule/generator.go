package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldvine/fieldvine/pkg/audit"
	"github.com/fieldvine/fieldvine/pkg/observability"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

// Generator projects future visit dates from a subscription's recurrence
// rule into a rolling window. Generation is idempotent: entries insert with
// ON CONFLICT DO NOTHING, so repeated invocation never duplicates a date.
type Generator struct {
	db     *sql.DB
	events audit.Logger
	cache  subscriptions.PortalCache
	logger *observability.Logger
}

// NewGenerator creates a new Generator. events and cache may be nil.
func NewGenerator(db *sql.DB, events audit.Logger, cache subscriptions.PortalCache, logger *observability.Logger) *Generator {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Generator{db: db, events: events, cache: cache, logger: logger}
}

// Generate tops up the subscription's schedule out to monthsAhead from
// today and returns how many entries were inserted. Non-active
// subscriptions generate nothing. Invoked on create, on resume, and by the
// periodic sweep.
func (g *Generator) Generate(ctx context.Context, subscriptionID int64, monthsAhead int) (int, error) {
	if monthsAhead <= 0 {
		monthsAhead = subscriptions.DefaultWindowMonths
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		businessID, customerID       int64
		status                       subscriptions.Status
		frequency                    subscriptions.Frequency
		startDate                    time.Time
		endDate                      *time.Time
		preferredStart, preferredEnd *string
	)
	// The row lock holds the status stable until commit; without it a
	// concurrent cancel or pause could land between this read and the
	// inserts, leaving fresh pending entries on a terminal subscription.
	err = tx.QueryRowContext(ctx, `
		SELECT business_id, customer_id, status, frequency, start_date, end_date,
		       preferred_start, preferred_end
		FROM subscriptions
		WHERE id = $1
		FOR UPDATE
	`, subscriptionID).Scan(&businessID, &customerID, &status, &frequency,
		&startDate, &endDate, &preferredStart, &preferredEnd)
	if err == sql.ErrNoRows {
		return 0, subscriptions.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read subscription: %w", err)
	}

	if status != subscriptions.StatusActive {
		return 0, nil
	}

	var latest sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT MAX(scheduled_date) FROM schedule_entries WHERE subscription_id = $1
	`, subscriptionID).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to find latest entry: %w", err)
	}

	// With no existing entries, synthesize a last date one step before the
	// start date so the walk emits the start date itself first.
	last := startDate
	if latest.Valid {
		last = latest.Time
	} else {
		days, months := frequency.Step()
		last = startDate.AddDate(0, -months, -days)
	}

	windowEnd := time.Now().UTC().AddDate(0, monthsAhead, 0)
	if endDate != nil && endDate.Before(windowEnd) {
		windowEnd = *endDate
	}

	inserted := 0
	for _, date := range ProjectDates(frequency, last, startDate, windowEnd) {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_entries (subscription_id, business_id, scheduled_date, window_start, window_end, status, version)
			VALUES ($1, $2, $3, $4, $5, 'pending', 1)
			ON CONFLICT (subscription_id, scheduled_date) DO NOTHING
		`, subscriptionID, businessID, date, preferredStart, preferredEnd)
		if err != nil {
			return 0, fmt.Errorf("failed to insert schedule entry: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := subscriptions.RecomputeNextServiceDate(ctx, tx, subscriptionID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit generation: %w", err)
	}

	if inserted > 0 {
		g.logAudit(ctx, &audit.Event{
			EventType:      audit.EventScheduleGenerated,
			ActorType:      audit.ActorSystem,
			BusinessID:     businessID,
			SubscriptionID: &subscriptionID,
			Message:        fmt.Sprintf("generated %d schedule entries", inserted),
			Metadata:       map[string]any{"months_ahead": monthsAhead, "inserted": inserted},
		})
		g.invalidate(ctx, businessID, customerID)
	}

	return inserted, nil
}

func (g *Generator) logAudit(ctx context.Context, event *audit.Event) {
	if g.events == nil {
		return
	}
	if err := g.events.Log(ctx, event); err != nil {
		g.logger.WithError(err).WithField("event_type", string(event.EventType)).Warn("audit write failed")
	}
}

func (g *Generator) invalidate(ctx context.Context, businessID, customerID int64) {
	if g.cache == nil {
		return
	}
	if err := g.cache.InvalidateCustomer(ctx, businessID, customerID); err != nil {
		g.logger.WithError(err).Warn("portal cache invalidation failed")
	}
}
