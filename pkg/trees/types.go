package trees

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a tree, node, or related row does not exist
var ErrNotFound = errors.New("not found")

// TreeStatus represents the lifecycle state of an experiment tree
type TreeStatus string

const (
	TreeStatusActive   TreeStatus = "active"
	TreeStatusArchived TreeStatus = "archived"
)

// NodeStatus represents the investigation state of a node
type NodeStatus string

const (
	NodeStatusProposed  NodeStatus = "proposed"
	NodeStatusActive    NodeStatus = "active"
	NodeStatusValidated NodeStatus = "validated"
	NodeStatusRejected  NodeStatus = "rejected"
)

// DependencyType classifies how one node depends on another
type DependencyType string

const (
	DependencyBlocks   DependencyType = "blocks"
	DependencyInforms  DependencyType = "informs"
	DependencySupports DependencyType = "supports"
)

// ExperimentTree represents a tree of experiment nodes within a project
type ExperimentTree struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      TreeStatus `json:"status"`
	NodeCount   int        `json:"node_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TreeBlock groups nodes into a named column within a tree
type TreeBlock struct {
	ID        string    `json:"id"`
	TreeID    string    `json:"tree_id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	BlockType string    `json:"block_type"`
	CreatedAt time.Time `json:"created_at"`
}

// TreeNode represents a single experiment or hypothesis within a tree
type TreeNode struct {
	ID         string     `json:"id"`
	TreeID     string     `json:"tree_id"`
	BlockID    *string    `json:"block_id,omitempty"`
	Name       string     `json:"name"`
	NodeType   string     `json:"node_type"`
	Position   int        `json:"position"`
	Status     NodeStatus `json:"status"`
	Confidence *float64   `json:"confidence,omitempty"`
	Content    string     `json:"content,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NodeAttachment is file metadata for a node; the payload lives in object
// storage under StorageKey.
type NodeAttachment struct {
	ID          string    `json:"id"`
	NodeID      string    `json:"node_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	Checksum    string    `json:"checksum"`
	UploadedBy  string    `json:"uploaded_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// NodeLink is an external URL attached to a node
type NodeLink struct {
	ID        string    `json:"id"`
	NodeID    string    `json:"node_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// NodeDependency is a typed edge between two nodes in the same tree
type NodeDependency struct {
	ID         string         `json:"id"`
	FromNodeID string         `json:"from_node_id"`
	ToNodeID   string         `json:"to_node_id"`
	Type       DependencyType `json:"type"`
	Evidence   string         `json:"evidence,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
