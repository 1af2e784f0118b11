package subscriptions

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle status of a subscription
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// IsTerminal reports whether the status permits no further transitions
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// IsValid reports whether the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusActive, StatusPaused, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Frequency represents how often service visits recur
type Frequency string

const (
	FrequencyWeekly     Frequency = "weekly"
	FrequencyBiweekly   Frequency = "biweekly"
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiannual Frequency = "semiannual"
	FrequencyAnnual     Frequency = "annual"
)

// IsValid reports whether the frequency is a known value
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencySemiannual, FrequencyAnnual:
		return true
	}
	return false
}

// Step returns the calendar advance between consecutive visits as
// (days, months). Exactly one of the two is non-zero.
func (f Frequency) Step() (days int, months int) {
	switch f {
	case FrequencyWeekly:
		return 7, 0
	case FrequencyBiweekly:
		return 14, 0
	case FrequencyMonthly:
		return 0, 1
	case FrequencyQuarterly:
		return 0, 3
	case FrequencySemiannual:
		return 0, 6
	case FrequencyAnnual:
		return 0, 12
	}
	return 0, 0
}

// BillingModel represents when a subscription is invoiced relative to service
type BillingModel string

const (
	// BillingPrepay invoices ahead of the service period
	BillingPrepay BillingModel = "prepay"
	// BillingPerVisit invoices after each completed visit
	BillingPerVisit BillingModel = "per_visit"
	// BillingHybrid mixes an upfront charge with per-visit billing
	BillingHybrid BillingModel = "hybrid"
)

// IsValid reports whether the billing model is a known value
func (b BillingModel) IsValid() bool {
	switch b {
	case BillingPrepay, BillingPerVisit, BillingHybrid:
		return true
	}
	return false
}

// Subscription represents a recurring service agreement with a customer
type Subscription struct {
	ID                 int64           `json:"id"`
	PublicID           string          `json:"public_id"`
	BusinessID         int64           `json:"business_id"`
	CustomerID         int64           `json:"customer_id"`
	ServicePlanID      *int64          `json:"service_plan_id,omitempty"`
	SubscriptionNumber string          `json:"subscription_number"`
	Status             Status          `json:"status"`
	Frequency          Frequency       `json:"frequency"`
	BillingModel       BillingModel    `json:"billing_model"`
	PricePerVisit      decimal.Decimal `json:"price_per_visit"`
	StartDate          time.Time       `json:"start_date"`
	EndDate            *time.Time      `json:"end_date,omitempty"`
	PauseStart         *time.Time      `json:"pause_start,omitempty"`
	PauseEnd           *time.Time      `json:"pause_end,omitempty"`
	PreferredDay       *int            `json:"preferred_day,omitempty"`
	PreferredStart     *string         `json:"preferred_start,omitempty"`
	PreferredEnd       *string         `json:"preferred_end,omitempty"`
	Timezone           string          `json:"timezone"`
	NextServiceDate    *time.Time      `json:"next_service_date,omitempty"`
	NextBillingDate    *time.Time      `json:"next_billing_date,omitempty"`
	CancelReason       string          `json:"cancel_reason,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`

	LineItems []*LineItem `json:"line_items,omitempty"`
}

// LineItem represents one priced line of a subscription. Line items are
// replaced wholesale on edit; invoices copy them at issue time.
type LineItem struct {
	ID             int64           `json:"id"`
	SubscriptionID int64           `json:"subscription_id"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	Total          decimal.Decimal `json:"total"`
	SortOrder      int             `json:"sort_order"`
}

// CreateSubscriptionRequest represents the input to create a subscription
type CreateSubscriptionRequest struct {
	BusinessID          int64           `json:"business_id"`
	CustomerID          int64           `json:"customer_id"`
	ServicePlanID       *int64          `json:"service_plan_id,omitempty"`
	Frequency           Frequency       `json:"frequency"`
	BillingModel        BillingModel    `json:"billing_model"`
	PricePerVisit       decimal.Decimal `json:"price_per_visit"`
	StartDate           time.Time       `json:"start_date"`
	EndDate             *time.Time      `json:"end_date,omitempty"`
	PreferredDay        *int            `json:"preferred_day,omitempty"`
	PreferredStart      *string         `json:"preferred_start,omitempty"`
	PreferredEnd        *string         `json:"preferred_end,omitempty"`
	Timezone            string          `json:"timezone"`
	ActivateImmediately bool            `json:"activate_immediately"`
	LineItems           []*LineItemInput `json:"line_items,omitempty"`
}

// LineItemInput represents one line item in a create or replace request
type LineItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SortOrder   int             `json:"sort_order"`
}

// PauseRequest represents the input to pause an active subscription
type PauseRequest struct {
	Start  time.Time  `json:"start"`
	End    *time.Time `json:"end,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// CustomerSubscription is the portal read model: a subscription joined with
// its next upcoming pending visits.
type CustomerSubscription struct {
	Subscription *Subscription   `json:"subscription"`
	Upcoming     []UpcomingVisit `json:"upcoming"`
}

// UpcomingVisit is one pending schedule entry as shown to the customer
type UpcomingVisit struct {
	ScheduleEntryID int64     `json:"schedule_entry_id"`
	ScheduledDate   time.Time `json:"scheduled_date"`
	WindowStart     *string   `json:"window_start,omitempty"`
	WindowEnd       *string   `json:"window_end,omitempty"`
	Version         int64     `json:"version"`
}
