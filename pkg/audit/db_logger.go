package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/canopyhq/canopy/pkg/contextkeys"
	"github.com/canopyhq/canopy/pkg/storage/postgres"
)

// DBLogger appends audit events to the audit_logs table
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger. The audit_logs
// table is created by Migrations, run at startup.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Migrations returns the audit schema migrations
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create audit_logs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					user_id UUID,
					username VARCHAR(255),
					resource_type VARCHAR(50),
					resource_id VARCHAR(255),
					project_id UUID,
					ip_address VARCHAR(45),
					request_id VARCHAR(100),
					method VARCHAR(10),
					path TEXT,
					status_code INTEGER,
					message TEXT,
					metadata JSONB,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
				CREATE INDEX idx_audit_logs_event_type ON audit_logs(event_type);
				CREATE INDEX idx_audit_logs_user_id ON audit_logs(user_id);
				CREATE INDEX idx_audit_logs_project_id ON audit_logs(project_id);
				CREATE INDEX idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
			`,
		},
	}
}

// Log appends an audit event
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	var err error

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}

	query := `
		INSERT INTO audit_logs (
			timestamp, event_type, status,
			user_id, username,
			resource_type, resource_id, project_id,
			ip_address, request_id, method, path, status_code,
			message, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.UserID, event.Username,
		nullString(string(event.ResourceType)), nullString(event.ResourceID), nullString(event.ProjectID),
		nullString(event.IPAddress), nullString(event.RequestID), nullString(event.Method),
		nullString(event.Path), event.StatusCode,
		event.Message, metadataJSON,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}

	return nil
}

// LogMemberChange logs a membership ledger mutation
func (l *DBLogger) LogMemberChange(ctx context.Context, eventType EventType, actorID, projectID, targetUserID, role string) error {
	event := newEvent(eventType, EventStatusSuccess)
	event.UserID = &actorID
	event.ResourceType = ResourceTypeUser
	event.ResourceID = targetUserID
	event.ProjectID = projectID
	event.Metadata = map[string]interface{}{"role": role}
	return l.Log(ctx, event)
}

// LogAccessDenied logs a denied capability request
func (l *DBLogger) LogAccessDenied(ctx context.Context, userID *string, resourceType ResourceType, resourceID, capability string) error {
	event := newEvent(EventTypeAuthzAccessDenied, EventStatusDenied)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Metadata = map[string]interface{}{"capability": capability}
	return l.Log(ctx, event)
}

// LogMutation logs a data mutation event
func (l *DBLogger) LogMutation(ctx context.Context, eventType EventType, actorID string, resourceType ResourceType, resourceID, projectID string) error {
	event := newEvent(eventType, EventStatusSuccess)
	event.UserID = &actorID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.ProjectID = projectID
	return l.Log(ctx, event)
}

// Close is a no-op; the caller owns the database connection
func (l *DBLogger) Close() error {
	return nil
}

// nullString maps empty strings to NULL so partial events stay sparse
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
