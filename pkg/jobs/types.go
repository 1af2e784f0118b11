// Package jobs persists the concrete work orders that materialized schedule
// entries produce. A job snapshots the customer's address at creation time
// rather than referencing it live.
package jobs

import "time"

// JobStatus represents the dispatch state of a job
type JobStatus string

const (
	JobStatusScheduled JobStatus = "scheduled"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents a scheduled service visit
type Job struct {
	ID              int64     `json:"id"`
	BusinessID      int64     `json:"business_id"`
	CustomerID      int64     `json:"customer_id"`
	SubscriptionID  int64     `json:"subscription_id"`
	ScheduleEntryID int64     `json:"schedule_entry_id"`
	JobNumber       string    `json:"job_number"`
	Status          JobStatus `json:"status"`
	ScheduledStart  time.Time `json:"scheduled_start"`
	ScheduledEnd    time.Time `json:"scheduled_end"`

	// Address snapshot taken at materialization time
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	Region       string `json:"region"`
	PostalCode   string `json:"postal_code"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
