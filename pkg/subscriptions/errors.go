package subscriptions

import "errors"

var (
	// ErrNotFound indicates the subscription does not exist
	ErrNotFound = errors.New("subscription not found")
	// ErrNotActive indicates an operation that requires an active subscription
	ErrNotActive = errors.New("subscription is not active")
	// ErrNotPaused indicates resume was called on a non-paused subscription
	ErrNotPaused = errors.New("subscription is not paused")
	// ErrTerminal indicates the subscription is cancelled or completed
	ErrTerminal = errors.New("subscription is in a terminal state")
	// ErrValidation indicates the request failed validation before any write
	ErrValidation = errors.New("validation failed")
)
