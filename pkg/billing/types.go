// Package billing produces invoices from a subscription's line items per its
// billing model. Invoice line items are immutable snapshots: later edits to
// the subscription never retroactively alter an issued invoice.
package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the collection state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusOpen InvoiceStatus = "open"
	InvoiceStatusPaid InvoiceStatus = "paid"
	InvoiceStatusVoid InvoiceStatus = "void"
)

// DueTermDays is the fixed payment term applied to every invoice
const DueTermDays = 14

// Invoice represents a bill issued against a subscription
type Invoice struct {
	ID              int64           `json:"id"`
	BusinessID      int64           `json:"business_id"`
	CustomerID      int64           `json:"customer_id"`
	SubscriptionID  int64           `json:"subscription_id"`
	ScheduleEntryID *int64          `json:"schedule_entry_id,omitempty"`
	InvoiceNumber   string          `json:"invoice_number"`
	Status          InvoiceStatus   `json:"status"`
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Total           decimal.Decimal `json:"total"`
	DueDate         time.Time       `json:"due_date"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	LineItems []*InvoiceLineItem `json:"line_items,omitempty"`
}

// InvoiceLineItem is one line copied from the subscription at issue time
type InvoiceLineItem struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
	SortOrder   int             `json:"sort_order"`
}

// GenerateInvoiceRequest represents the input to issue an invoice. Nil
// period bounds default to the subscription's current billing period.
type GenerateInvoiceRequest struct {
	SubscriptionID  int64      `json:"subscription_id"`
	PeriodStart     *time.Time `json:"period_start,omitempty"`
	PeriodEnd       *time.Time `json:"period_end,omitempty"`
	ScheduleEntryID *int64     `json:"schedule_entry_id,omitempty"`
}

var (
	// ErrSubscriptionNotFound indicates the subscription does not exist
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrSubscriptionTerminal indicates invoicing a cancelled or completed subscription
	ErrSubscriptionTerminal = errors.New("subscription is in a terminal state")
	// ErrInvoiceNotFound indicates the invoice does not exist
	ErrInvoiceNotFound = errors.New("invoice not found")
)
