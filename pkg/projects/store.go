package projects

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store handles project persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new project store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateProject creates a project and records the creator as its owner in
// the membership ledger, in a single transaction.
func (s *Store) CreateProject(ctx context.Context, project *Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO projects (slug, name, description, visibility, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	now := time.Now()
	err = tx.QueryRowContext(ctx, query,
		project.Slug,
		project.Name,
		project.Description,
		project.Visibility,
		project.OwnerID,
		now,
		now,
	).Scan(&project.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("project slug %q already taken: %w", project.Slug, ErrConflict)
		}
		return fmt.Errorf("failed to create project: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, added_by, joined_at)
		VALUES ($1, $2, $3, $2, $4)
	`, project.ID, project.OwnerID, RoleOwner, now)
	if err != nil {
		return fmt.Errorf("failed to record owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project: %w", err)
	}

	project.CreatedAt = now
	project.UpdatedAt = now
	return nil
}

// GetProject retrieves a project by ID
func (s *Store) GetProject(ctx context.Context, projectID string) (*Project, error) {
	query := `
		SELECT id, slug, name, description, visibility, owner_id, created_at, updated_at
		FROM projects
		WHERE id = $1
	`
	return s.scanProject(s.db.QueryRowContext(ctx, query, projectID))
}

// GetProjectBySlug retrieves a project by its slug
func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (*Project, error) {
	query := `
		SELECT id, slug, name, description, visibility, owner_id, created_at, updated_at
		FROM projects
		WHERE slug = $1
	`
	return s.scanProject(s.db.QueryRowContext(ctx, query, slug))
}

func (s *Store) scanProject(row *sql.Row) (*Project, error) {
	var project Project
	err := row.Scan(
		&project.ID,
		&project.Slug,
		&project.Name,
		&project.Description,
		&project.Visibility,
		&project.OwnerID,
		&project.CreatedAt,
		&project.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

// VisibilityOf returns just the visibility of a project. Access checks use
// this instead of a full row fetch.
func (s *Store) VisibilityOf(ctx context.Context, projectID string) (Visibility, error) {
	var visibility Visibility
	err := s.db.QueryRowContext(ctx,
		`SELECT visibility FROM projects WHERE id = $1`, projectID,
	).Scan(&visibility)

	if err == sql.ErrNoRows {
		return "", fmt.Errorf("project: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get project visibility: %w", err)
	}

	return visibility, nil
}

// ResolveSlug returns the project ID for a slug
func (s *Store) ResolveSlug(ctx context.Context, slug string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM projects WHERE slug = $1`, slug,
	).Scan(&id)

	if err == sql.ErrNoRows {
		return "", fmt.Errorf("project slug %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve project slug: %w", err)
	}

	return id, nil
}

// ListProjectsForUser lists projects where the user is an active member
func (s *Store) ListProjectsForUser(ctx context.Context, userID string) ([]Project, error) {
	query := `
		SELECT p.id, p.slug, p.name, p.description, p.visibility, p.owner_id, p.created_at, p.updated_at
		FROM projects p
		JOIN project_members m ON m.project_id = p.id
		WHERE m.user_id = $1 AND m.left_at IS NULL
		ORDER BY p.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	return scanProjects(rows)
}

// ListPublicProjects lists all public projects
func (s *Store) ListPublicProjects(ctx context.Context) ([]Project, error) {
	query := `
		SELECT id, slug, name, description, visibility, owner_id, created_at, updated_at
		FROM projects
		WHERE visibility = $1
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, VisibilityPublic)
	if err != nil {
		return nil, fmt.Errorf("failed to list public projects: %w", err)
	}
	defer rows.Close()

	return scanProjects(rows)
}

func scanProjects(rows *sql.Rows) ([]Project, error) {
	var projects []Project
	for rows.Next() {
		var project Project
		err := rows.Scan(
			&project.ID,
			&project.Slug,
			&project.Name,
			&project.Description,
			&project.Visibility,
			&project.OwnerID,
			&project.CreatedAt,
			&project.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// UpdateProject updates a project's mutable fields
func (s *Store) UpdateProject(ctx context.Context, project *Project) error {
	query := `
		UPDATE projects
		SET name = $1, description = $2, visibility = $3, updated_at = $4
		WHERE id = $5
	`

	project.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, query,
		project.Name,
		project.Description,
		project.Visibility,
		project.UpdatedAt,
		project.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("project: %w", ErrNotFound)
	}

	return nil
}

// DeleteProject deletes a project and cascades to its trees and ledger
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("project: %w", ErrNotFound)
	}

	return nil
}

// isUniqueViolation reports whether err is a postgres unique_violation
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
