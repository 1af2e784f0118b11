package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBLogger implements audit logging to PostgreSQL
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-backed audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{db: db}

	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the audit_events table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		actor_type VARCHAR(20) NOT NULL,
		actor_id BIGINT,
		business_id BIGINT NOT NULL,
		subscription_id BIGINT,
		schedule_entry_id BIGINT,
		job_id BIGINT,
		invoice_id BIGINT,
		message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_audit_events_business_id ON audit_events(business_id);
	CREATE INDEX IF NOT EXISTS idx_audit_events_subscription_id ON audit_events(subscription_id);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log appends an audit event. The event's ID is populated on success.
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var metadataJSON []byte
	var err error
	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_events (
			timestamp, event_type, actor_type, actor_id,
			business_id, subscription_id, schedule_entry_id, job_id, invoice_id,
			message, metadata
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.ActorType, event.ActorID,
		event.BusinessID, event.SubscriptionID, event.ScheduleEntryID, event.JobID, event.InvoiceID,
		event.Message, nullableJSON(metadataJSON),
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// Query returns events matching the filter, newest first
func (l *DBLogger) Query(ctx context.Context, filter Filter) ([]*Event, error) {
	query := `
		SELECT id, timestamp, event_type, actor_type, actor_id,
		       business_id, subscription_id, schedule_entry_id, job_id, invoice_id,
		       message, metadata, created_at
		FROM audit_events
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.BusinessID != 0 {
		query += fmt.Sprintf(" AND business_id = $%d", argNum)
		args = append(args, filter.BusinessID)
		argNum++
	}
	if filter.SubscriptionID != 0 {
		query += fmt.Sprintf(" AND subscription_id = $%d", argNum)
		args = append(args, filter.SubscriptionID)
		argNum++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argNum)
		args = append(args, filter.EventType)
		argNum++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(" AND timestamp >= $%d", argNum)
		args = append(args, filter.Since)
		argNum++
	}
	if !filter.Until.IsZero() {
		query += fmt.Sprintf(" AND timestamp <= $%d", argNum)
		args = append(args, filter.Until)
		argNum++
	}

	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d", argNum)
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		var message sql.NullString
		var metadataJSON []byte

		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.ActorType, &event.ActorID,
			&event.BusinessID, &event.SubscriptionID, &event.ScheduleEntryID, &event.JobID, &event.InvoiceID,
			&message, &metadataJSON, &event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Message = message.String

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

// nullableJSON converts empty JSON to a SQL NULL
func nullableJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return data
}
