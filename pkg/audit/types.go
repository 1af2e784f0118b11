package audit

import (
	"context"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Subscription lifecycle events
	EventSubscriptionCreated   EventType = "subscription.created"
	EventSubscriptionActivated EventType = "subscription.activated"
	EventSubscriptionPaused    EventType = "subscription.paused"
	EventSubscriptionResumed   EventType = "subscription.resumed"
	EventSubscriptionCancelled EventType = "subscription.cancelled"
	EventSubscriptionCompleted EventType = "subscription.completed"
	EventLineItemsReplaced     EventType = "subscription.line_items_replaced"

	// Schedule events
	EventScheduleGenerated EventType = "schedule.window_generated"
	EventEntrySkipped      EventType = "schedule.entry_skipped"
	EventJobMaterialized   EventType = "schedule.job_materialized"

	// Billing events
	EventInvoiceIssued EventType = "billing.invoice_issued"
)

// ActorType represents who performed a mutation
type ActorType string

const (
	ActorStaff    ActorType = "staff"
	ActorCustomer ActorType = "customer"
	ActorSystem   ActorType = "system"
)

// Actor identifies the principal behind a mutation. A nil ID with
// ActorSystem is the sweep or another internal process.
type Actor struct {
	Type ActorType `json:"type"`
	ID   *int64    `json:"id,omitempty"`
}

// System returns the actor used for internally-initiated mutations
func System() Actor {
	return Actor{Type: ActorSystem}
}

// Event represents a single audit log entry
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`

	ActorType ActorType `json:"actor_type"`
	ActorID   *int64    `json:"actor_id,omitempty"`

	BusinessID      int64  `json:"business_id"`
	SubscriptionID  *int64 `json:"subscription_id,omitempty"`
	ScheduleEntryID *int64 `json:"schedule_entry_id,omitempty"`
	JobID           *int64 `json:"job_id,omitempty"`
	InvoiceID       *int64 `json:"invoice_id,omitempty"`

	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Logger is the sink services write audit events to
type Logger interface {
	Log(ctx context.Context, event *Event) error
}

// Filter narrows a Query call. Zero values are ignored.
type Filter struct {
	BusinessID     int64
	SubscriptionID int64
	EventType      EventType
	Since          time.Time
	Until          time.Time
	Limit          int
}

// NopLogger discards all events. Useful in tests.
type NopLogger struct{}

// Log implements Logger
func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
