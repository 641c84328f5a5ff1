package audit

import (
	"context"
	"time"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log appends an audit event
	Log(ctx context.Context, event *Event) error

	// LogMemberChange logs a membership ledger mutation
	LogMemberChange(ctx context.Context, eventType EventType, actorID, projectID, targetUserID, role string) error

	// LogAccessDenied logs a denied capability request
	LogAccessDenied(ctx context.Context, userID *string, resourceType ResourceType, resourceID, capability string) error

	// LogMutation logs a data mutation event
	LogMutation(ctx context.Context, eventType EventType, actorID string, resourceType ResourceType, resourceID, projectID string) error

	// Close flushes and releases the logger
	Close() error
}

// NopLogger discards all events. Used in tests and when auditing is
// disabled by configuration.
type NopLogger struct{}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

func (n *NopLogger) Log(ctx context.Context, event *Event) error { return nil }

func (n *NopLogger) LogMemberChange(ctx context.Context, eventType EventType, actorID, projectID, targetUserID, role string) error {
	return nil
}

func (n *NopLogger) LogAccessDenied(ctx context.Context, userID *string, resourceType ResourceType, resourceID, capability string) error {
	return nil
}

func (n *NopLogger) LogMutation(ctx context.Context, eventType EventType, actorID string, resourceType ResourceType, resourceID, projectID string) error {
	return nil
}

func (n *NopLogger) Close() error { return nil }

func newEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Status:    status,
	}
}
