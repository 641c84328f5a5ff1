package trees

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store handles tree and node persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new tree store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTree creates an experiment tree in a project
func (s *Store) CreateTree(ctx context.Context, tree *ExperimentTree) error {
	if tree.Status == "" {
		tree.Status = TreeStatusActive
	}

	query := `
		INSERT INTO experiment_trees (project_id, name, description, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		tree.ProjectID,
		tree.Name,
		tree.Description,
		tree.Status,
		now,
		now,
	).Scan(&tree.ID)

	if err != nil {
		return fmt.Errorf("failed to create tree: %w", err)
	}

	tree.CreatedAt = now
	tree.UpdatedAt = now
	return nil
}

// GetTree retrieves a tree by ID, including its node count
func (s *Store) GetTree(ctx context.Context, treeID string) (*ExperimentTree, error) {
	query := `
		SELECT t.id, t.project_id, t.name, t.description, t.status, t.created_at, t.updated_at,
		       (SELECT COUNT(*) FROM tree_nodes n WHERE n.tree_id = t.id) AS node_count
		FROM experiment_trees t
		WHERE t.id = $1
	`

	var tree ExperimentTree
	err := s.db.QueryRowContext(ctx, query, treeID).Scan(
		&tree.ID,
		&tree.ProjectID,
		&tree.Name,
		&tree.Description,
		&tree.Status,
		&tree.CreatedAt,
		&tree.UpdatedAt,
		&tree.NodeCount,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tree: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	return &tree, nil
}

// ProjectIDOfTree resolves the owning project of a tree. This is one hop
// of the ownership chain used by access checks.
func (s *Store) ProjectIDOfTree(ctx context.Context, treeID string) (string, error) {
	var projectID string
	err := s.db.QueryRowContext(ctx,
		`SELECT project_id FROM experiment_trees WHERE id = $1`, treeID,
	).Scan(&projectID)

	if err == sql.ErrNoRows {
		return "", fmt.Errorf("tree: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve tree owner: %w", err)
	}

	return projectID, nil
}

// ListTrees lists a project's trees
func (s *Store) ListTrees(ctx context.Context, projectID string) ([]ExperimentTree, error) {
	query := `
		SELECT t.id, t.project_id, t.name, t.description, t.status, t.created_at, t.updated_at,
		       (SELECT COUNT(*) FROM tree_nodes n WHERE n.tree_id = t.id) AS node_count
		FROM experiment_trees t
		WHERE t.project_id = $1
		ORDER BY t.name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trees: %w", err)
	}
	defer rows.Close()

	var trees []ExperimentTree
	for rows.Next() {
		var tree ExperimentTree
		err := rows.Scan(
			&tree.ID,
			&tree.ProjectID,
			&tree.Name,
			&tree.Description,
			&tree.Status,
			&tree.CreatedAt,
			&tree.UpdatedAt,
			&tree.NodeCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tree: %w", err)
		}
		trees = append(trees, tree)
	}

	return trees, rows.Err()
}

// UpdateTree updates a tree's mutable fields
func (s *Store) UpdateTree(ctx context.Context, tree *ExperimentTree) error {
	query := `
		UPDATE experiment_trees
		SET name = $1, description = $2, status = $3, updated_at = $4
		WHERE id = $5
	`

	tree.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, query,
		tree.Name,
		tree.Description,
		tree.Status,
		tree.UpdatedAt,
		tree.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update tree: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tree: %w", ErrNotFound)
	}

	return nil
}

// DeleteTree deletes a tree and cascades to its blocks and nodes
func (s *Store) DeleteTree(ctx context.Context, treeID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM experiment_trees WHERE id = $1`, treeID)
	if err != nil {
		return fmt.Errorf("failed to delete tree: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tree: %w", ErrNotFound)
	}

	return nil
}

// CountTrees returns the total number of trees, for the business metrics
// gauges.
func (s *Store) CountTrees(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM experiment_trees`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trees: %w", err)
	}
	return count, nil
}

// CreateBlock creates a block within a tree
func (s *Store) CreateBlock(ctx context.Context, block *TreeBlock) error {
	query := `
		INSERT INTO tree_blocks (tree_id, name, position, block_type, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		block.TreeID,
		block.Name,
		block.Position,
		block.BlockType,
		now,
	).Scan(&block.ID)

	if err != nil {
		return fmt.Errorf("failed to create block: %w", err)
	}

	block.CreatedAt = now
	return nil
}

// ListBlocks lists a tree's blocks in position order
func (s *Store) ListBlocks(ctx context.Context, treeID string) ([]TreeBlock, error) {
	query := `
		SELECT id, tree_id, name, position, block_type, created_at
		FROM tree_blocks
		WHERE tree_id = $1
		ORDER BY position ASC, created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, treeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []TreeBlock
	for rows.Next() {
		var block TreeBlock
		err := rows.Scan(
			&block.ID,
			&block.TreeID,
			&block.Name,
			&block.Position,
			&block.BlockType,
			&block.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		blocks = append(blocks, block)
	}

	return blocks, rows.Err()
}
