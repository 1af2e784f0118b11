// Package api implements the HTTP surface for subscriptions, schedules, and
// billing.
//
// # Routes
//
// Subscription lifecycle:
//
//	POST   /api/v1/subscriptions
//	GET    /api/v1/subscriptions/{id}
//	POST   /api/v1/subscriptions/{id}/pause
//	POST   /api/v1/subscriptions/{id}/resume
//	POST   /api/v1/subscriptions/{id}/cancel
//	PUT    /api/v1/subscriptions/{id}/line-items
//
// Schedule entries:
//
//	GET    /api/v1/schedule-entries/{id}
//	POST   /api/v1/schedule-entries/{id}/skip
//	POST   /api/v1/schedule-entries/{id}/materialize
//
// Billing:
//
//	POST   /api/v1/subscriptions/{id}/invoices
//	GET    /api/v1/invoices/{id}
//
// Customer portal:
//
//	GET    /api/v1/customers/{id}/subscriptions?business_id=N&upcoming=N
//
// # Error mapping
//
// Domain errors map onto HTTP statuses uniformly: validation failures are
// 400, missing resources are 404, optimistic-concurrency conflicts are 409,
// and state-rule violations (pausing a cancelled subscription, skipping a
// materialized entry) are 422. Everything else is a 500.
//
// # Actor attribution
//
// Mutating requests carry the acting identity in the X-Actor-Type and
// X-Actor-ID headers. Customer actors get extra guard rails: self-service
// skips are rejected inside the lead window before a visit.
package api
