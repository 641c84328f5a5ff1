package projects

import (
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by the store. Callers match with errors.Is.
var (
	// ErrNotFound is returned when a project or membership row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write loses a uniqueness race, such as
	// two concurrent adds of the same member.
	ErrConflict = errors.New("conflict")
)

// slugPattern admits lowercase alphanumeric runs separated by single
// hyphens, up to 63 characters.
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidSlug reports whether s is acceptable as a project slug. A slug
// that parses as a canonical UUID is rejected: identifier resolution
// treats UUID-shaped values as ids, so such a slug could never be looked
// up, and accepting one would let a caller squat another project's id.
func ValidSlug(s string) bool {
	if len(s) == 0 || len(s) > 63 {
		return false
	}
	if !slugPattern.MatchString(s) {
		return false
	}
	if u, err := uuid.Parse(s); err == nil && u.String() == s {
		return false
	}
	return true
}

// Visibility controls who can read a project and everything it owns.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a recognized visibility value
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Role represents a member's role within a project
type Role string

const (
	RoleOwner       Role = "owner"
	RoleMaintainer  Role = "maintainer"
	RoleContributor Role = "contributor"
)

// Valid reports whether r is a recognized role value
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleMaintainer || r == RoleContributor
}

// CanWrite reports whether the role grants write access to project content.
// All active members can write; the role tiers only gate member management.
func (r Role) CanWrite() bool {
	return r.Valid()
}

// CanManageMembers reports whether the role grants member management
func (r Role) CanManageMembers() bool {
	return r == RoleOwner || r == RoleMaintainer
}

// Project represents a research project
type Project struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Visibility  Visibility `json:"visibility"`
	OwnerID     string     `json:"owner_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Membership is one row of the append-only membership ledger. A row with
// a nil LeftAt is active; stamped rows are history and never mutated again.
type Membership struct {
	ID        int64      `json:"id"`
	ProjectID string     `json:"project_id"`
	UserID    string     `json:"user_id"`
	Role      Role       `json:"role"`
	AddedBy   *string    `json:"added_by,omitempty"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}

// Active reports whether the ledger row is the member's current stint
func (m Membership) Active() bool {
	return m.LeftAt == nil
}
