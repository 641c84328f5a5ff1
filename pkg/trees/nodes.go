package trees

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateNode creates a node within a tree
func (s *Store) CreateNode(ctx context.Context, node *TreeNode) error {
	if node.Status == "" {
		node.Status = NodeStatusProposed
	}

	query := `
		INSERT INTO tree_nodes (tree_id, block_id, name, node_type, position, status, confidence, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		node.TreeID,
		node.BlockID,
		node.Name,
		node.NodeType,
		node.Position,
		node.Status,
		node.Confidence,
		node.Content,
		now,
		now,
	).Scan(&node.ID)

	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	node.CreatedAt = now
	node.UpdatedAt = now
	return nil
}

// GetNode retrieves a node by ID
func (s *Store) GetNode(ctx context.Context, nodeID string) (*TreeNode, error) {
	query := `
		SELECT id, tree_id, block_id, name, node_type, position, status, confidence, content, created_at, updated_at
		FROM tree_nodes
		WHERE id = $1
	`

	var node TreeNode
	var blockID sql.NullString
	var confidence sql.NullFloat64

	err := s.db.QueryRowContext(ctx, query, nodeID).Scan(
		&node.ID,
		&node.TreeID,
		&blockID,
		&node.Name,
		&node.NodeType,
		&node.Position,
		&node.Status,
		&confidence,
		&node.Content,
		&node.CreatedAt,
		&node.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}

	if blockID.Valid {
		b := blockID.String
		node.BlockID = &b
	}
	if confidence.Valid {
		c := confidence.Float64
		node.Confidence = &c
	}

	return &node, nil
}

// TreeIDOfNode resolves the owning tree of a node. Combined with
// ProjectIDOfTree this gives the two-hop resolution used by access checks.
func (s *Store) TreeIDOfNode(ctx context.Context, nodeID string) (string, error) {
	var treeID string
	err := s.db.QueryRowContext(ctx,
		`SELECT tree_id FROM tree_nodes WHERE id = $1`, nodeID,
	).Scan(&treeID)

	if err == sql.ErrNoRows {
		return "", fmt.Errorf("node: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve node owner: %w", err)
	}

	return treeID, nil
}

// ListNodes lists a tree's nodes in position order
func (s *Store) ListNodes(ctx context.Context, treeID string) ([]TreeNode, error) {
	query := `
		SELECT id, tree_id, block_id, name, node_type, position, status, confidence, content, created_at, updated_at
		FROM tree_nodes
		WHERE tree_id = $1
		ORDER BY position ASC, created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, treeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []TreeNode
	for rows.Next() {
		var node TreeNode
		var blockID sql.NullString
		var confidence sql.NullFloat64

		err := rows.Scan(
			&node.ID,
			&node.TreeID,
			&blockID,
			&node.Name,
			&node.NodeType,
			&node.Position,
			&node.Status,
			&confidence,
			&node.Content,
			&node.CreatedAt,
			&node.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}

		if blockID.Valid {
			b := blockID.String
			node.BlockID = &b
		}
		if confidence.Valid {
			c := confidence.Float64
			node.Confidence = &c
		}

		nodes = append(nodes, node)
	}

	return nodes, rows.Err()
}

// UpdateNode updates a node's mutable fields
func (s *Store) UpdateNode(ctx context.Context, node *TreeNode) error {
	query := `
		UPDATE tree_nodes
		SET block_id = $1, name = $2, node_type = $3, position = $4, status = $5, confidence = $6, content = $7, updated_at = $8
		WHERE id = $9
	`

	node.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, query,
		node.BlockID,
		node.Name,
		node.NodeType,
		node.Position,
		node.Status,
		node.Confidence,
		node.Content,
		node.UpdatedAt,
		node.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update node: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("node: %w", ErrNotFound)
	}

	return nil
}

// DeleteNode deletes a node and cascades to its attachments, links,
// dependencies, and references
func (s *Store) DeleteNode(ctx context.Context, nodeID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tree_nodes WHERE id = $1`, nodeID)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("node: %w", ErrNotFound)
	}

	return nil
}

// CreateAttachment records attachment metadata for a node. The payload is
// written to object storage by the caller before this row exists.
func (s *Store) CreateAttachment(ctx context.Context, attachment *NodeAttachment) error {
	query := `
		INSERT INTO node_attachments (node_id, file_name, content_type, size_bytes, storage_key, checksum, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		attachment.NodeID,
		attachment.FileName,
		attachment.ContentType,
		attachment.SizeBytes,
		attachment.StorageKey,
		attachment.Checksum,
		attachment.UploadedBy,
		now,
	).Scan(&attachment.ID)

	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", err)
	}

	attachment.CreatedAt = now
	return nil
}

// GetAttachment retrieves attachment metadata by ID
func (s *Store) GetAttachment(ctx context.Context, attachmentID string) (*NodeAttachment, error) {
	query := `
		SELECT id, node_id, file_name, content_type, size_bytes, storage_key, checksum, uploaded_by, created_at
		FROM node_attachments
		WHERE id = $1
	`

	var attachment NodeAttachment
	err := s.db.QueryRowContext(ctx, query, attachmentID).Scan(
		&attachment.ID,
		&attachment.NodeID,
		&attachment.FileName,
		&attachment.ContentType,
		&attachment.SizeBytes,
		&attachment.StorageKey,
		&attachment.Checksum,
		&attachment.UploadedBy,
		&attachment.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("attachment: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}

	return &attachment, nil
}

// ListAttachments lists a node's attachment metadata
func (s *Store) ListAttachments(ctx context.Context, nodeID string) ([]NodeAttachment, error) {
	query := `
		SELECT id, node_id, file_name, content_type, size_bytes, storage_key, checksum, uploaded_by, created_at
		FROM node_attachments
		WHERE node_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []NodeAttachment
	for rows.Next() {
		var attachment NodeAttachment
		err := rows.Scan(
			&attachment.ID,
			&attachment.NodeID,
			&attachment.FileName,
			&attachment.ContentType,
			&attachment.SizeBytes,
			&attachment.StorageKey,
			&attachment.Checksum,
			&attachment.UploadedBy,
			&attachment.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, attachment)
	}

	return attachments, rows.Err()
}

// CreateLink attaches an external URL to a node
func (s *Store) CreateLink(ctx context.Context, link *NodeLink) error {
	query := `
		INSERT INTO node_links (node_id, title, url, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		link.NodeID,
		link.Title,
		link.URL,
		now,
	).Scan(&link.ID)

	if err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}

	link.CreatedAt = now
	return nil
}

// ListLinks lists a node's external links
func (s *Store) ListLinks(ctx context.Context, nodeID string) ([]NodeLink, error) {
	query := `
		SELECT id, node_id, title, url, created_at
		FROM node_links
		WHERE node_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []NodeLink
	for rows.Next() {
		var link NodeLink
		err := rows.Scan(&link.ID, &link.NodeID, &link.Title, &link.URL, &link.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	return links, rows.Err()
}

// CreateDependency creates a typed edge between two nodes
func (s *Store) CreateDependency(ctx context.Context, dependency *NodeDependency) error {
	query := `
		INSERT INTO node_dependencies (from_node_id, to_node_id, dependency_type, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		dependency.FromNodeID,
		dependency.ToNodeID,
		dependency.Type,
		dependency.Evidence,
		now,
	).Scan(&dependency.ID)

	if err != nil {
		return fmt.Errorf("failed to create dependency: %w", err)
	}

	dependency.CreatedAt = now
	return nil
}

// ListDependencies lists the typed edges touching a node, in either
// direction
func (s *Store) ListDependencies(ctx context.Context, nodeID string) ([]NodeDependency, error) {
	query := `
		SELECT id, from_node_id, to_node_id, dependency_type, evidence, created_at
		FROM node_dependencies
		WHERE from_node_id = $1 OR to_node_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	defer rows.Close()

	var dependencies []NodeDependency
	for rows.Next() {
		var dependency NodeDependency
		err := rows.Scan(
			&dependency.ID,
			&dependency.FromNodeID,
			&dependency.ToNodeID,
			&dependency.Type,
			&dependency.Evidence,
			&dependency.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		dependencies = append(dependencies, dependency)
	}

	return dependencies, rows.Err()
}

// AddReference records a navigational reference from a node to a tree it
// does not own. Duplicate references are ignored.
func (s *Store) AddReference(ctx context.Context, nodeID, referencedTreeID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tree_references (node_id, referenced_tree_id)
		VALUES ($1, $2)
		ON CONFLICT (node_id, referenced_tree_id) DO NOTHING
	`, nodeID, referencedTreeID)
	if err != nil {
		return fmt.Errorf("failed to add reference: %w", err)
	}
	return nil
}

// RemoveReference removes a navigational reference
func (s *Store) RemoveReference(ctx context.Context, nodeID, referencedTreeID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM tree_references WHERE node_id = $1 AND referenced_tree_id = $2
	`, nodeID, referencedTreeID)
	if err != nil {
		return fmt.Errorf("failed to remove reference: %w", err)
	}
	return nil
}

// ReferencedTreeIDs lists the trees a node references. Callers must check
// access on each referenced tree separately; these rows grant nothing.
func (s *Store) ReferencedTreeIDs(ctx context.Context, nodeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT referenced_tree_id FROM tree_references
		WHERE node_id = $1
		ORDER BY created_at ASC
	`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	defer rows.Close()

	var treeIDs []string
	for rows.Next() {
		var treeID string
		if err := rows.Scan(&treeID); err != nil {
			return nil, fmt.Errorf("failed to scan reference: %w", err)
		}
		treeIDs = append(treeIDs, treeID)
	}

	return treeIDs, rows.Err()
}
