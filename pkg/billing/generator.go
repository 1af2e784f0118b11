package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/fieldvine/fieldvine/pkg/audit"
	"github.com/fieldvine/fieldvine/pkg/numbering"
	"github.com/fieldvine/fieldvine/pkg/observability"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

// Generator issues invoices from a subscription's current line items and
// advances its next billing date per the billing model.
type Generator struct {
	db        *sql.DB
	sequences numbering.Allocator
	events    audit.Logger
	logger    *observability.Logger
}

// NewGenerator creates a new invoice Generator. events may be nil.
func NewGenerator(db *sql.DB, sequences numbering.Allocator, events audit.Logger, logger *observability.Logger) *Generator {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Generator{db: db, sequences: sequences, events: events, logger: logger}
}

// GenerateInvoice totals the subscription's line items (falling back to a
// single line at price-per-visit when none exist), copies them onto the
// invoice as an immutable snapshot and advances next_billing_date:
// prepay moves to the day after the period end, per-visit and hybrid follow
// the next service date.
func (g *Generator) GenerateInvoice(ctx context.Context, req *GenerateInvoiceRequest, actor audit.Actor) (*Invoice, error) {
	if req == nil || req.SubscriptionID == 0 {
		return nil, fmt.Errorf("subscription_id is required")
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		businessID, customerID int64
		status                 subscriptions.Status
		billingModel           subscriptions.BillingModel
		frequency              subscriptions.Frequency
		pricePerVisit          decimal.Decimal
		nextServiceDate        *time.Time
		nextBillingDate        *time.Time
	)
	err = tx.QueryRowContext(ctx, `
		SELECT business_id, customer_id, status, billing_model, frequency,
		       price_per_visit, next_service_date, next_billing_date
		FROM subscriptions
		WHERE id = $1
		FOR UPDATE
	`, req.SubscriptionID).Scan(&businessID, &customerID, &status, &billingModel,
		&frequency, &pricePerVisit, &nextServiceDate, &nextBillingDate)
	if err == sql.ErrNoRows {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}
	if status.IsTerminal() {
		return nil, fmt.Errorf("cannot invoice subscription in status %q: %w", status, ErrSubscriptionTerminal)
	}

	lines, err := g.snapshotLines(ctx, tx, req.SubscriptionID, pricePerVisit)
	if err != nil {
		return nil, err
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Total)
	}

	periodStart, periodEnd := billingPeriod(req, frequency, nextBillingDate)

	number, err := g.sequences.Next(ctx, businessID, numbering.ScopeInvoice)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate invoice number: %w", err)
	}

	now := time.Now().UTC()
	invoice := &Invoice{
		BusinessID:      businessID,
		CustomerID:      customerID,
		SubscriptionID:  req.SubscriptionID,
		ScheduleEntryID: req.ScheduleEntryID,
		InvoiceNumber:   numbering.Format(numbering.ScopeInvoice, number),
		Status:          InvoiceStatusOpen,
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
		Subtotal:        subtotal,
		Total:           subtotal,
		DueDate:         now.AddDate(0, 0, DueTermDays),
		LineItems:       lines,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO invoices (
			business_id, customer_id, subscription_id, schedule_entry_id, invoice_number,
			status, period_start, period_end, subtotal, total, due_date
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		) RETURNING id, created_at, updated_at
	`, invoice.BusinessID, invoice.CustomerID, invoice.SubscriptionID, invoice.ScheduleEntryID,
		invoice.InvoiceNumber, invoice.Status, invoice.PeriodStart, invoice.PeriodEnd,
		invoice.Subtotal, invoice.Total, invoice.DueDate,
	).Scan(&invoice.ID, &invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	for _, line := range lines {
		line.InvoiceID = invoice.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_line_items (invoice_id, description, quantity, unit_price, total, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, invoice.ID, line.Description, line.Quantity, line.UnitPrice, line.Total, line.SortOrder)
		if err != nil {
			return nil, fmt.Errorf("failed to copy invoice line item: %w", err)
		}
	}

	nextBilling := nextBillingAfter(billingModel, periodEnd, nextServiceDate)
	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions SET next_billing_date = $2, updated_at = NOW() WHERE id = $1
	`, req.SubscriptionID, nullableTime(nextBilling))
	if err != nil {
		return nil, fmt.Errorf("failed to advance next billing date: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invoice: %w", err)
	}

	g.logAudit(ctx, &audit.Event{
		EventType:       audit.EventInvoiceIssued,
		ActorType:       actor.Type,
		ActorID:         actor.ID,
		BusinessID:      businessID,
		SubscriptionID:  &req.SubscriptionID,
		ScheduleEntryID: req.ScheduleEntryID,
		InvoiceID:       &invoice.ID,
		Message:         fmt.Sprintf("invoice %s issued for %s", invoice.InvoiceNumber, invoice.Total.StringFixed(2)),
		Metadata: map[string]any{
			"billing_model": string(billingModel),
			"period_start":  periodStart.Format("2006-01-02"),
			"period_end":    periodEnd.Format("2006-01-02"),
		},
	})

	return invoice, nil
}

// GetInvoice returns an invoice with its line items
func (g *Generator) GetInvoice(ctx context.Context, id int64) (*Invoice, error) {
	invoice := &Invoice{}
	err := g.db.QueryRowContext(ctx, `
		SELECT id, business_id, customer_id, subscription_id, schedule_entry_id, invoice_number,
		       status, period_start, period_end, subtotal, total, due_date, created_at, updated_at
		FROM invoices
		WHERE id = $1
	`, id).Scan(
		&invoice.ID, &invoice.BusinessID, &invoice.CustomerID, &invoice.SubscriptionID,
		&invoice.ScheduleEntryID, &invoice.InvoiceNumber, &invoice.Status,
		&invoice.PeriodStart, &invoice.PeriodEnd, &invoice.Subtotal, &invoice.Total,
		&invoice.DueDate, &invoice.CreatedAt, &invoice.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	rows, err := g.db.QueryContext(ctx, `
		SELECT id, invoice_id, description, quantity, unit_price, total, sort_order
		FROM invoice_line_items
		WHERE invoice_id = $1
		ORDER BY sort_order, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice line items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		line := &InvoiceLineItem{}
		err := rows.Scan(&line.ID, &line.InvoiceID, &line.Description,
			&line.Quantity, &line.UnitPrice, &line.Total, &line.SortOrder)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice line item: %w", err)
		}
		invoice.LineItems = append(invoice.LineItems, line)
	}
	return invoice, rows.Err()
}

// snapshotLines reads the subscription's current line items, falling back to
// one synthetic line at price-per-visit when it has none.
func (g *Generator) snapshotLines(ctx context.Context, tx *sql.Tx, subscriptionID int64, pricePerVisit decimal.Decimal) ([]*InvoiceLineItem, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT description, quantity, unit_price, total, sort_order
		FROM subscription_line_items
		WHERE subscription_id = $1
		ORDER BY sort_order, id
	`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read line items: %w", err)
	}
	defer rows.Close()

	var lines []*InvoiceLineItem
	for rows.Next() {
		line := &InvoiceLineItem{}
		if err := rows.Scan(&line.Description, &line.Quantity, &line.UnitPrice, &line.Total, &line.SortOrder); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(lines) == 0 {
		lines = append(lines, &InvoiceLineItem{
			Description: "Service visit",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   pricePerVisit,
			Total:       pricePerVisit,
		})
	}
	return lines, nil
}

// billingPeriod resolves the invoice period: explicit bounds win, otherwise
// the period starts at next_billing_date (or today) and spans one
// recurrence step.
func billingPeriod(req *GenerateInvoiceRequest, frequency subscriptions.Frequency, nextBillingDate *time.Time) (time.Time, time.Time) {
	if req.PeriodStart != nil && req.PeriodEnd != nil {
		return *req.PeriodStart, *req.PeriodEnd
	}

	start := time.Now().UTC().Truncate(24 * time.Hour)
	if nextBillingDate != nil {
		start = *nextBillingDate
	}
	if req.PeriodStart != nil {
		start = *req.PeriodStart
	}

	days, months := frequency.Step()
	end := start.AddDate(0, months, days).AddDate(0, 0, -1)
	if req.PeriodEnd != nil {
		end = *req.PeriodEnd
	}
	return start, end
}

// nextBillingAfter applies the billing model's advance rule
func nextBillingAfter(model subscriptions.BillingModel, periodEnd time.Time, nextServiceDate *time.Time) *time.Time {
	switch model {
	case subscriptions.BillingPrepay:
		next := periodEnd.AddDate(0, 0, 1)
		return &next
	default:
		// per-visit and hybrid bill against the next scheduled visit
		return nextServiceDate
	}
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func (g *Generator) logAudit(ctx context.Context, event *audit.Event) {
	if g.events == nil {
		return
	}
	if err := g.events.Log(ctx, event); err != nil {
		g.logger.WithError(err).WithField("event_type", string(event.EventType)).Warn("audit write failed")
	}
}
