package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthTokenCreate       EventType = "auth.token_create"
	EventTypeAuthTokenRevoke       EventType = "auth.token_revoke"
	EventTypeAuthTokenValidateFail EventType = "auth.token_validate_fail"

	// Authorization events
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"

	// Membership ledger events
	EventTypeMemberAdd        EventType = "member.add"
	EventTypeMemberRemove     EventType = "member.remove"
	EventTypeMemberRoleChange EventType = "member.role_change"

	// Data mutation events
	EventTypeProjectCreate EventType = "data.project_create"
	EventTypeProjectUpdate EventType = "data.project_update"
	EventTypeProjectDelete EventType = "data.project_delete"
	EventTypeTreeCreate    EventType = "data.tree_create"
	EventTypeTreeUpdate    EventType = "data.tree_update"
	EventTypeTreeDelete    EventType = "data.tree_delete"
	EventTypeNodeCreate    EventType = "data.node_create"
	EventTypeNodeUpdate    EventType = "data.node_update"
	EventTypeNodeDelete    EventType = "data.node_delete"
	EventTypeFileUpload    EventType = "data.file_upload"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource an event touches
type ResourceType string

const (
	ResourceTypeProject    ResourceType = "project"
	ResourceTypeTree       ResourceType = "tree"
	ResourceTypeNode       ResourceType = "node"
	ResourceTypeAttachment ResourceType = "attachment"
	ResourceTypeUser       ResourceType = "user"
	ResourceTypeToken      ResourceType = "token"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor
	UserID   *string `json:"user_id,omitempty"`
	Username string  `json:"username,omitempty"`

	// Resource
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ProjectID    string       `json:"project_id,omitempty"`

	// Request context
	IPAddress  string `json:"ip_address,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
