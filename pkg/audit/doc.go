// Package audit provides an append-only event log for every mutation the
// subscription engine performs. Events reference the subscription, schedule
// entry, job, or invoice they concern and are never updated or deleted.
package audit
