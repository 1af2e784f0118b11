// Package sweep implements the periodic maintenance pass that keeps every
// subscription's schedule topped up and its billing current.
//
// A single Run performs four phases in order:
//
//  1. Window top-up: extend the pending schedule window for every active
//     subscription.
//  2. Materialization: convert pending entries that fall inside the lead
//     window into jobs.
//  3. Billing: issue invoices for subscriptions whose next billing date has
//     arrived.
//  4. Completion: close out fixed-term subscriptions whose end date has
//     passed.
//
// Each phase fans out across a bounded worker pool. Individual failures are
// counted and logged but never abort the run; the next run retries whatever
// was missed. All mutating work delegates to the schedule, billing, and
// subscriptions packages, whose operations are idempotent or claim-based, so
// overlapping sweeps are safe.
package sweep
