package schedule

import (
	"errors"
	"time"
)

// EntryStatus represents the state of a schedule entry.
// pending -> job_created | skipped (terminal) or paused (reversible);
// paused -> pending (resume) | skipped (cancel while paused).
type EntryStatus string

const (
	EntryPending    EntryStatus = "pending"
	EntryJobCreated EntryStatus = "job_created"
	EntrySkipped    EntryStatus = "skipped"
	EntryPaused     EntryStatus = "paused"
)

// IsTerminal reports whether the entry can transition no further
func (s EntryStatus) IsTerminal() bool {
	return s == EntryJobCreated || s == EntrySkipped
}

// Entry represents one forecasted future service date for a subscription,
// distinct from any job it may later produce. At most one entry exists per
// (subscription, date).
type Entry struct {
	ID             int64       `json:"id"`
	SubscriptionID int64       `json:"subscription_id"`
	BusinessID     int64       `json:"business_id"`
	ScheduledDate  time.Time   `json:"scheduled_date"`
	WindowStart    *string     `json:"window_start,omitempty"`
	WindowEnd      *string     `json:"window_end,omitempty"`
	Status         EntryStatus `json:"status"`
	Version        int64       `json:"version"`
	JobID          *int64      `json:"job_id,omitempty"`
	SkipReason     string      `json:"skip_reason,omitempty"`
	SkippedAt      *time.Time  `json:"skipped_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

var (
	// ErrNotFound indicates the schedule entry does not exist
	ErrNotFound = errors.New("schedule entry not found")
	// ErrNotPending indicates the entry is not in a skippable state
	ErrNotPending = errors.New("schedule entry is not pending")
	// ErrVersionConflict indicates the caller's expected version is stale
	ErrVersionConflict = errors.New("schedule entry version conflict")
	// ErrPastDate indicates the entry's date has already arrived
	ErrPastDate = errors.New("schedule entry date is not in the future")
	// ErrTooLate indicates a self-service skip inside the 24h lead window
	ErrTooLate = errors.New("schedule entry can no longer be skipped by the customer")
)

// SelfServiceLeadTime is the minimum notice a customer must give to skip a
// visit. Staff calls are exempt.
const SelfServiceLeadTime = 24 * time.Hour
