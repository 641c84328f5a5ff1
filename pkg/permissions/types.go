package permissions

import (
	"errors"

	"github.com/canopyhq/canopy/pkg/projects"
)

// ErrNotFound is returned when an identifier fails to resolve at any hop
// of the ownership chain. It aborts the whole check; no partial decision
// is ever returned alongside it.
var ErrNotFound = errors.New("resource not found")

// AccessDecision is the capability result of one access check. It is
// derived per call and never persisted or cached.
type AccessDecision struct {
	CanRead   bool          `json:"can_read"`
	CanWrite  bool          `json:"can_write"`
	IsMember  bool          `json:"is_member"`
	Role      projects.Role `json:"role,omitempty"`
	ProjectID string        `json:"project_id"`
}
