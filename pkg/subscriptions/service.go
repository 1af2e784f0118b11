package subscriptions

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/fieldvine/fieldvine/pkg/audit"
	"github.com/fieldvine/fieldvine/pkg/numbering"
	"github.com/fieldvine/fieldvine/pkg/observability"
)

// DefaultWindowMonths is how far ahead the schedule window is kept populated
const DefaultWindowMonths = 3

// WindowGenerator tops up the forward schedule window for a subscription.
// Implemented by schedule.Generator.
type WindowGenerator interface {
	Generate(ctx context.Context, subscriptionID int64, monthsAhead int) (int, error)
}

// PortalCache caches the per-customer portal read model. Implementations may
// be nil-safe no-ops; the service treats a nil cache as disabled.
type PortalCache interface {
	GetCustomerSubscriptions(ctx context.Context, businessID, customerID int64, upcoming int) ([]*CustomerSubscription, bool, error)
	SetCustomerSubscriptions(ctx context.Context, businessID, customerID int64, upcoming int, subs []*CustomerSubscription) error
	InvalidateCustomer(ctx context.Context, businessID, customerID int64) error
}

// Service manages the subscription lifecycle
type Service interface {
	Create(ctx context.Context, req *CreateSubscriptionRequest, actor audit.Actor) (*Subscription, error)
	Get(ctx context.Context, id int64) (*Subscription, error)
	Pause(ctx context.Context, id int64, req *PauseRequest, actor audit.Actor) error
	Resume(ctx context.Context, id int64, actor audit.Actor) error
	Cancel(ctx context.Context, id int64, reason string, actor audit.Actor) error
	UpdateLineItems(ctx context.Context, id int64, items []*LineItemInput, actor audit.Actor) error
	ListByCustomer(ctx context.Context, businessID, customerID int64, upcoming int) ([]*CustomerSubscription, error)
	CompleteIfExpired(ctx context.Context, id int64, actor audit.Actor) (bool, error)
}

// PostgresService implements Service using PostgreSQL. Every lifecycle
// operation runs in one transaction and holds a FOR UPDATE lock on the
// subscription row, so concurrent calls on the same subscription serialize
// while other subscriptions proceed in parallel.
type PostgresService struct {
	db        *sql.DB
	sequences numbering.Allocator
	generator WindowGenerator
	events    audit.Logger
	cache     PortalCache
	logger    *observability.Logger
}

// NewPostgresService creates a new PostgresService. generator, events and
// cache may be nil; the corresponding behavior is skipped.
func NewPostgresService(db *sql.DB, sequences numbering.Allocator, generator WindowGenerator, events audit.Logger, cache PortalCache, logger *observability.Logger) *PostgresService {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &PostgresService{
		db:        db,
		sequences: sequences,
		generator: generator,
		events:    events,
		cache:     cache,
		logger:    logger,
	}
}

const subscriptionColumns = `
	id, public_id, business_id, customer_id, service_plan_id, subscription_number,
	status, frequency, billing_model, price_per_visit, start_date, end_date,
	pause_start, pause_end, preferred_day, preferred_start, preferred_end,
	timezone, next_service_date, next_billing_date, cancel_reason, cancelled_at,
	created_at, updated_at`

// Create validates the request, allocates a business-scoped subscription
// number and persists the subscription with its line items. When
// ActivateImmediately is set the initial rolling window is generated and the
// subscription starts active, otherwise pending.
func (s *PostgresService) Create(ctx context.Context, req *CreateSubscriptionRequest, actor audit.Actor) (*Subscription, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	seq, err := s.sequences.Next(ctx, req.BusinessID, numbering.ScopeSubscription)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate subscription number: %w", err)
	}

	status := StatusPending
	if req.ActivateImmediately {
		status = StatusActive
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	sub := &Subscription{
		PublicID:           uuid.NewString(),
		BusinessID:         req.BusinessID,
		CustomerID:         req.CustomerID,
		ServicePlanID:      req.ServicePlanID,
		SubscriptionNumber: numbering.Format(numbering.ScopeSubscription, seq),
		Status:             status,
		Frequency:          req.Frequency,
		BillingModel:       req.BillingModel,
		PricePerVisit:      req.PricePerVisit,
		StartDate:          dateOnly(req.StartDate),
		EndDate:            req.EndDate,
		PreferredDay:       req.PreferredDay,
		PreferredStart:     req.PreferredStart,
		PreferredEnd:       req.PreferredEnd,
		Timezone:           timezone,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO subscriptions (
			public_id, business_id, customer_id, service_plan_id, subscription_number,
			status, frequency, billing_model, price_per_visit, start_date, end_date,
			preferred_day, preferred_start, preferred_end, timezone, next_billing_date
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16
		) RETURNING id, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, insert,
		sub.PublicID, sub.BusinessID, sub.CustomerID, sub.ServicePlanID, sub.SubscriptionNumber,
		sub.Status, sub.Frequency, sub.BillingModel, sub.PricePerVisit, sub.StartDate, sub.EndDate,
		sub.PreferredDay, sub.PreferredStart, sub.PreferredEnd, sub.Timezone, sub.StartDate,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	firstBilling := sub.StartDate
	sub.NextBillingDate = &firstBilling

	if err := insertLineItems(ctx, tx, sub.ID, req.LineItems); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit subscription: %w", err)
	}

	if req.ActivateImmediately && s.generator != nil {
		if _, err := s.generator.Generate(ctx, sub.ID, DefaultWindowMonths); err != nil {
			// The sweep retries generation; creation itself has committed.
			s.logger.WithError(err).WithField("subscription_id", sub.ID).Warn("initial window generation failed")
		}
	}

	s.logAudit(ctx, &audit.Event{
		EventType:      audit.EventSubscriptionCreated,
		ActorType:      actor.Type,
		ActorID:        actor.ID,
		BusinessID:     sub.BusinessID,
		SubscriptionID: &sub.ID,
		Message:        fmt.Sprintf("subscription %s created (%s)", sub.SubscriptionNumber, sub.Status),
		Metadata: map[string]any{
			"frequency":     string(sub.Frequency),
			"billing_model": string(sub.BillingModel),
		},
	})
	s.invalidateCustomer(ctx, sub.BusinessID, sub.CustomerID)

	return s.Get(ctx, sub.ID)
}

// Get returns the subscription with its current line items
func (s *PostgresService) Get(ctx context.Context, id int64) (*Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	sub.LineItems, err = s.loadLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Pause transitions an active subscription to paused and parks every pending
// entry whose date falls inside the pause window.
func (s *PostgresService) Pause(ctx context.Context, id int64, req *PauseRequest, actor audit.Actor) error {
	if req == nil || req.Start.IsZero() {
		return fmt.Errorf("%w: pause start date is required", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	locked, err := lockSubscription(ctx, tx, id)
	if err != nil {
		return err
	}
	if locked.Status != StatusActive {
		return fmt.Errorf("cannot pause subscription in status %q: %w", locked.Status, ErrNotActive)
	}

	start := dateOnly(req.Start)
	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $2, pause_start = $3, pause_end = $4, updated_at = NOW()
		WHERE id = $1
	`, id, StatusPaused, start, nullableDate(req.End))
	if err != nil {
		return fmt.Errorf("failed to pause subscription: %w", err)
	}

	entryQuery := `
		UPDATE schedule_entries
		SET status = 'paused', version = version + 1, updated_at = NOW()
		WHERE subscription_id = $1 AND status = 'pending' AND scheduled_date >= $2
	`
	args := []interface{}{id, start}
	if req.End != nil {
		entryQuery += ` AND scheduled_date < $3`
		args = append(args, dateOnly(*req.End))
	}
	if _, err := tx.ExecContext(ctx, entryQuery, args...); err != nil {
		return fmt.Errorf("failed to pause schedule entries: %w", err)
	}

	if err := RecomputeNextServiceDate(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pause: %w", err)
	}

	s.logAudit(ctx, &audit.Event{
		EventType:      audit.EventSubscriptionPaused,
		ActorType:      actor.Type,
		ActorID:        actor.ID,
		BusinessID:     locked.BusinessID,
		SubscriptionID: &id,
		Message:        "subscription paused",
		Metadata:       map[string]any{"pause_start": start.Format("2006-01-02"), "reason": req.Reason},
	})
	s.invalidateCustomer(ctx, locked.BusinessID, locked.CustomerID)

	return nil
}

// Resume transitions a paused subscription back to active, reactivates its
// parked future entries and refills the rolling window.
func (s *PostgresService) Resume(ctx context.Context, id int64, actor audit.Actor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	locked, err := lockSubscription(ctx, tx, id)
	if err != nil {
		return err
	}
	if locked.Status != StatusPaused {
		return fmt.Errorf("cannot resume subscription in status %q: %w", locked.Status, ErrNotPaused)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $2, pause_start = NULL, pause_end = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, StatusActive)
	if err != nil {
		return fmt.Errorf("failed to resume subscription: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE schedule_entries
		SET status = 'pending', version = version + 1, updated_at = NOW()
		WHERE subscription_id = $1 AND status = 'paused' AND scheduled_date >= CURRENT_DATE
	`, id)
	if err != nil {
		return fmt.Errorf("failed to reactivate schedule entries: %w", err)
	}

	if err := RecomputeNextServiceDate(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resume: %w", err)
	}

	if s.generator != nil {
		if _, err := s.generator.Generate(ctx, id, DefaultWindowMonths); err != nil {
			s.logger.WithError(err).WithField("subscription_id", id).Warn("window refill after resume failed")
		}
	}

	s.logAudit(ctx, &audit.Event{
		EventType:      audit.EventSubscriptionResumed,
		ActorType:      actor.Type,
		ActorID:        actor.ID,
		BusinessID:     locked.BusinessID,
		SubscriptionID: &id,
		Message:        "subscription resumed",
	})
	s.invalidateCustomer(ctx, locked.BusinessID, locked.CustomerID)

	return nil
}

// Cancel terminates a subscription from any non-terminal state. Every
// pending or paused entry is atomically converted to skipped; nothing
// remains claimable once the transaction commits.
func (s *PostgresService) Cancel(ctx context.Context, id int64, reason string, actor audit.Actor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	locked, err := lockSubscription(ctx, tx, id)
	if err != nil {
		return err
	}
	if locked.Status.IsTerminal() {
		return fmt.Errorf("cannot cancel subscription in status %q: %w", locked.Status, ErrTerminal)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $2, end_date = CURRENT_DATE, cancel_reason = $3,
		    cancelled_at = NOW(), next_service_date = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, StatusCancelled, reason)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE schedule_entries
		SET status = 'skipped', skip_reason = 'subscription cancelled',
		    skipped_at = NOW(), version = version + 1, updated_at = NOW()
		WHERE subscription_id = $1 AND status IN ('pending', 'paused')
	`, id)
	if err != nil {
		return fmt.Errorf("failed to skip schedule entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancel: %w", err)
	}

	s.logAudit(ctx, &audit.Event{
		EventType:      audit.EventSubscriptionCancelled,
		ActorType:      actor.Type,
		ActorID:        actor.ID,
		BusinessID:     locked.BusinessID,
		SubscriptionID: &id,
		Message:        "subscription cancelled",
		Metadata:       map[string]any{"reason": reason},
	})
	s.invalidateCustomer(ctx, locked.BusinessID, locked.CustomerID)

	return nil
}

// UpdateLineItems replaces the subscription's line items wholesale. Invoices
// already issued keep their own copies and are unaffected.
func (s *PostgresService) UpdateLineItems(ctx context.Context, id int64, items []*LineItemInput, actor audit.Actor) error {
	for _, item := range items {
		if item.Description == "" {
			return fmt.Errorf("%w: line item description is required", ErrValidation)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	locked, err := lockSubscription(ctx, tx, id)
	if err != nil {
		return err
	}
	if locked.Status.IsTerminal() {
		return fmt.Errorf("cannot edit line items in status %q: %w", locked.Status, ErrTerminal)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscription_line_items WHERE subscription_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear line items: %w", err)
	}
	if err := insertLineItems(ctx, tx, id, items); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit line items: %w", err)
	}

	s.logAudit(ctx, &audit.Event{
		EventType:      audit.EventLineItemsReplaced,
		ActorType:      actor.Type,
		ActorID:        actor.ID,
		BusinessID:     locked.BusinessID,
		SubscriptionID: &id,
		Message:        fmt.Sprintf("line items replaced (%d items)", len(items)),
	})
	s.invalidateCustomer(ctx, locked.BusinessID, locked.CustomerID)

	return nil
}

// ListByCustomer returns the portal read model: each of the customer's
// subscriptions with its next `upcoming` pending visits. Served from the
// portal cache when one is configured.
func (s *PostgresService) ListByCustomer(ctx context.Context, businessID, customerID int64, upcoming int) ([]*CustomerSubscription, error) {
	if upcoming <= 0 {
		upcoming = 3
	}

	if s.cache != nil {
		if cached, ok, err := s.cache.GetCustomerSubscriptions(ctx, businessID, customerID, upcoming); err == nil && ok {
			return cached, nil
		}
	}

	query := `SELECT` + subscriptionColumns + `
		FROM subscriptions
		WHERE business_id = $1 AND customer_id = $2
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, businessID, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var result []*CustomerSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		result = append(result, &CustomerSubscription{Subscription: sub})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, cs := range result {
		cs.Subscription.LineItems, err = s.loadLineItems(ctx, cs.Subscription.ID)
		if err != nil {
			return nil, err
		}
		cs.Upcoming, err = s.loadUpcoming(ctx, cs.Subscription.ID, upcoming)
		if err != nil {
			return nil, err
		}
	}

	if s.cache != nil {
		if err := s.cache.SetCustomerSubscriptions(ctx, businessID, customerID, upcoming, result); err != nil {
			s.logger.WithError(err).Warn("portal cache write failed")
		}
	}

	return result, nil
}

// CompleteIfExpired marks a fixed-term subscription completed once its end
// date has passed and no pending entries remain. Returns whether the
// transition happened. Invoked by the sweep.
func (s *PostgresService) CompleteIfExpired(ctx context.Context, id int64, actor audit.Actor) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	locked, err := lockSubscription(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if locked.Status != StatusActive && locked.Status != StatusPaused {
		return false, nil
	}
	if locked.EndDate == nil || !locked.EndDate.Before(todayUTC()) {
		return false, nil
	}

	var pending int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM schedule_entries
		WHERE subscription_id = $1 AND status = 'pending'
	`, id).Scan(&pending)
	if err != nil {
		return false, fmt.Errorf("failed to count pending entries: %w", err)
	}
	if pending > 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $2, next_service_date = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, StatusCompleted)
	if err != nil {
		return false, fmt.Errorf("failed to complete subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit completion: %w", err)
	}

	s.logAudit(ctx, &audit.Event{
		EventType:      audit.EventSubscriptionCompleted,
		ActorType:      actor.Type,
		ActorID:        actor.ID,
		BusinessID:     locked.BusinessID,
		SubscriptionID: &id,
		Message:        "fixed-term subscription completed",
	})
	s.invalidateCustomer(ctx, locked.BusinessID, locked.CustomerID)

	return true, nil
}

// lockedSubscription is the subset of columns read under FOR UPDATE
type lockedSubscription struct {
	ID         int64
	BusinessID int64
	CustomerID int64
	Status     Status
	EndDate    *time.Time
}

// lockSubscription acquires the row lock that serializes lifecycle
// operations on one subscription for the transaction's duration.
func lockSubscription(ctx context.Context, tx *sql.Tx, id int64) (*lockedSubscription, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, business_id, customer_id, status, end_date
		FROM subscriptions
		WHERE id = $1
		FOR UPDATE
	`, id)

	locked := &lockedSubscription{}
	err := row.Scan(&locked.ID, &locked.BusinessID, &locked.CustomerID, &locked.Status, &locked.EndDate)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock subscription: %w", err)
	}
	return locked, nil
}

// RecomputeNextServiceDate keeps next_service_date equal to the earliest
// pending entry at or after today, or NULL when none remain.
func RecomputeNextServiceDate(ctx context.Context, tx *sql.Tx, subscriptionID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET next_service_date = (
			SELECT MIN(scheduled_date) FROM schedule_entries
			WHERE subscription_id = $1 AND status = 'pending' AND scheduled_date >= CURRENT_DATE
		), updated_at = NOW()
		WHERE id = $1
	`, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to recompute next service date: %w", err)
	}
	return nil
}

func insertLineItems(ctx context.Context, tx *sql.Tx, subscriptionID int64, items []*LineItemInput) error {
	for _, item := range items {
		total := item.Quantity.Mul(item.UnitPrice)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subscription_line_items (subscription_id, description, quantity, unit_price, total, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, subscriptionID, item.Description, item.Quantity, item.UnitPrice, total, item.SortOrder)
		if err != nil {
			return fmt.Errorf("failed to insert line item: %w", err)
		}
	}
	return nil
}

func (s *PostgresService) loadLineItems(ctx context.Context, subscriptionID int64) ([]*LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subscription_id, description, quantity, unit_price, total, sort_order
		FROM subscription_line_items
		WHERE subscription_id = $1
		ORDER BY sort_order, id
	`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load line items: %w", err)
	}
	defer rows.Close()

	var items []*LineItem
	for rows.Next() {
		item := &LineItem{}
		err := rows.Scan(&item.ID, &item.SubscriptionID, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.Total, &item.SortOrder)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresService) loadUpcoming(ctx context.Context, subscriptionID int64, limit int) ([]UpcomingVisit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scheduled_date, window_start, window_end, version
		FROM schedule_entries
		WHERE subscription_id = $1 AND status = 'pending' AND scheduled_date >= CURRENT_DATE
		ORDER BY scheduled_date
		LIMIT $2
	`, subscriptionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load upcoming visits: %w", err)
	}
	defer rows.Close()

	var visits []UpcomingVisit
	for rows.Next() {
		v := UpcomingVisit{}
		if err := rows.Scan(&v.ScheduleEntryID, &v.ScheduledDate, &v.WindowStart, &v.WindowEnd, &v.Version); err != nil {
			return nil, fmt.Errorf("failed to scan upcoming visit: %w", err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// logAudit writes an audit event best-effort: a failed write is logged but
// never fails the primary mutation.
func (s *PostgresService) logAudit(ctx context.Context, event *audit.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Log(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event_type", string(event.EventType)).Warn("audit write failed")
	}
}

func (s *PostgresService) invalidateCustomer(ctx context.Context, businessID, customerID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCustomer(ctx, businessID, customerID); err != nil {
		s.logger.WithError(err).Warn("portal cache invalidation failed")
	}
}

func validateCreate(req *CreateSubscriptionRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is required", ErrValidation)
	}
	if req.BusinessID == 0 {
		return fmt.Errorf("%w: business_id is required", ErrValidation)
	}
	if req.CustomerID == 0 {
		return fmt.Errorf("%w: customer_id is required", ErrValidation)
	}
	if !req.Frequency.IsValid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrValidation, req.Frequency)
	}
	if !req.BillingModel.IsValid() {
		return fmt.Errorf("%w: unknown billing model %q", ErrValidation, req.BillingModel)
	}
	if req.StartDate.IsZero() {
		return fmt.Errorf("%w: start_date is required", ErrValidation)
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return fmt.Errorf("%w: end_date precedes start_date", ErrValidation)
	}
	for _, item := range req.LineItems {
		if item.Description == "" {
			return fmt.Errorf("%w: line item description is required", ErrValidation)
		}
	}
	return nil
}

// scanner matches *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row scanner) (*Subscription, error) {
	sub := &Subscription{}
	var cancelReason sql.NullString
	err := row.Scan(
		&sub.ID, &sub.PublicID, &sub.BusinessID, &sub.CustomerID, &sub.ServicePlanID, &sub.SubscriptionNumber,
		&sub.Status, &sub.Frequency, &sub.BillingModel, &sub.PricePerVisit, &sub.StartDate, &sub.EndDate,
		&sub.PauseStart, &sub.PauseEnd, &sub.PreferredDay, &sub.PreferredStart, &sub.PreferredEnd,
		&sub.Timezone, &sub.NextServiceDate, &sub.NextBillingDate, &cancelReason, &sub.CancelledAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.CancelReason = cancelReason.String
	return sub, nil
}

func nullableDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return dateOnly(*t)
}

// dateOnly truncates to a UTC calendar date
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func todayUTC() time.Time {
	return dateOnly(time.Now().UTC())
}
