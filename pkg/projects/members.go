package projects

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ActiveRole returns the user's current role in the project. The second
// return value is false when the user has no active ledger row.
func (s *Store) ActiveRole(ctx context.Context, projectID, userID string) (Role, bool, error) {
	var role Role
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM project_members
		WHERE project_id = $1 AND user_id = $2 AND left_at IS NULL
	`, projectID, userID).Scan(&role)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get active role: %w", err)
	}

	return role, true, nil
}

// IsActiveMember reports whether the user has an active ledger row
func (s *Store) IsActiveMember(ctx context.Context, projectID, userID string) (bool, error) {
	_, active, err := s.ActiveRole(ctx, projectID, userID)
	return active, err
}

// AddMember appends a ledger row making the user an active member. Adding
// a user who is already active returns the existing row unchanged. Two
// concurrent adds race on the partial unique index; the loser gets
// ErrConflict rather than a second active row.
func (s *Store) AddMember(ctx context.Context, projectID, userID string, role Role, addedBy string) (*Membership, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	existing, err := s.activeMembership(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	membership := &Membership{
		ProjectID: projectID,
		UserID:    userID,
		Role:      role,
		AddedBy:   &addedBy,
		JoinedAt:  time.Now(),
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, added_by, joined_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, projectID, userID, role, addedBy, membership.JoinedAt).Scan(&membership.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("member already added: %w", ErrConflict)
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	return membership, nil
}

// RemoveMember stamps left_at on the user's active ledger row. The row is
// never deleted; it stays as history. Removing a user with no active row
// is a no-op, mirroring AddMember's treatment of an already-active row.
func (s *Store) RemoveMember(ctx context.Context, projectID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE project_members
		SET left_at = NOW()
		WHERE project_id = $1 AND user_id = $2 AND left_at IS NULL
	`, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	return nil
}

// UpdateMemberRole changes the role on the user's active ledger row
func (s *Store) UpdateMemberRole(ctx context.Context, projectID, userID string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE project_members
		SET role = $1
		WHERE project_id = $2 AND user_id = $3 AND left_at IS NULL
	`, role, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check role update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("active membership: %w", ErrNotFound)
	}

	return nil
}

// ListMembers lists the project's active members
func (s *Store) ListMembers(ctx context.Context, projectID string) ([]Membership, error) {
	query := `
		SELECT id, project_id, user_id, role, added_by, joined_at, left_at
		FROM project_members
		WHERE project_id = $1 AND left_at IS NULL
		ORDER BY joined_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	return scanMemberships(rows)
}

// MemberHistory lists every ledger row for the project, active and
// historical, oldest first. Used for provenance audits.
func (s *Store) MemberHistory(ctx context.Context, projectID string) ([]Membership, error) {
	query := `
		SELECT id, project_id, user_id, role, added_by, joined_at, left_at
		FROM project_members
		WHERE project_id = $1
		ORDER BY joined_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member history: %w", err)
	}
	defer rows.Close()

	return scanMemberships(rows)
}

// CountActiveMembers returns the number of active members across all
// projects, for the business metrics gauges.
func (s *Store) CountActiveMembers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM project_members WHERE left_at IS NULL`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active members: %w", err)
	}
	return count, nil
}

// CountProjects returns the total number of projects
func (s *Store) CountProjects(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count projects: %w", err)
	}
	return count, nil
}

func (s *Store) activeMembership(ctx context.Context, projectID, userID string) (*Membership, error) {
	var membership Membership
	var addedBy sql.NullString
	var leftAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, role, added_by, joined_at, left_at
		FROM project_members
		WHERE project_id = $1 AND user_id = $2 AND left_at IS NULL
	`, projectID, userID).Scan(
		&membership.ID,
		&membership.ProjectID,
		&membership.UserID,
		&membership.Role,
		&addedBy,
		&membership.JoinedAt,
		&leftAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active membership: %w", err)
	}

	if addedBy.Valid {
		ab := addedBy.String
		membership.AddedBy = &ab
	}
	if leftAt.Valid {
		la := leftAt.Time
		membership.LeftAt = &la
	}

	return &membership, nil
}

func scanMemberships(rows *sql.Rows) ([]Membership, error) {
	var memberships []Membership
	for rows.Next() {
		var membership Membership
		var addedBy sql.NullString
		var leftAt sql.NullTime

		err := rows.Scan(
			&membership.ID,
			&membership.ProjectID,
			&membership.UserID,
			&membership.Role,
			&addedBy,
			&membership.JoinedAt,
			&leftAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}

		if addedBy.Valid {
			ab := addedBy.String
			membership.AddedBy = &ab
		}
		if leftAt.Valid {
			la := leftAt.Time
			membership.LeftAt = &la
		}

		memberships = append(memberships, membership)
	}
	return memberships, rows.Err()
}
