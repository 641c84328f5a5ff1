package api

import (
	"context"
	"time"

	"github.com/canopyhq/canopy/pkg/auth"
	"github.com/canopyhq/canopy/pkg/projects"
	"github.com/canopyhq/canopy/pkg/trees"
)

// ProjectStore is the project and membership persistence the API depends on.
// *projects.Store satisfies it.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *projects.Project) error
	GetProject(ctx context.Context, projectID string) (*projects.Project, error)
	UpdateProject(ctx context.Context, project *projects.Project) error
	DeleteProject(ctx context.Context, projectID string) error
	ListProjectsForUser(ctx context.Context, userID string) ([]projects.Project, error)
	ListPublicProjects(ctx context.Context) ([]projects.Project, error)

	AddMember(ctx context.Context, projectID, userID string, role projects.Role, addedBy string) (*projects.Membership, error)
	RemoveMember(ctx context.Context, projectID, userID string) error
	UpdateMemberRole(ctx context.Context, projectID, userID string, role projects.Role) error
	ListMembers(ctx context.Context, projectID string) ([]projects.Membership, error)
	MemberHistory(ctx context.Context, projectID string) ([]projects.Membership, error)
}

// TreeStore is the experiment tree persistence the API depends on.
// *trees.Store satisfies it.
type TreeStore interface {
	CreateTree(ctx context.Context, tree *trees.ExperimentTree) error
	GetTree(ctx context.Context, treeID string) (*trees.ExperimentTree, error)
	UpdateTree(ctx context.Context, tree *trees.ExperimentTree) error
	DeleteTree(ctx context.Context, treeID string) error
	ListTrees(ctx context.Context, projectID string) ([]trees.ExperimentTree, error)

	CreateBlock(ctx context.Context, block *trees.TreeBlock) error
	ListBlocks(ctx context.Context, treeID string) ([]trees.TreeBlock, error)

	CreateNode(ctx context.Context, node *trees.TreeNode) error
	GetNode(ctx context.Context, nodeID string) (*trees.TreeNode, error)
	UpdateNode(ctx context.Context, node *trees.TreeNode) error
	DeleteNode(ctx context.Context, nodeID string) error
	ListNodes(ctx context.Context, treeID string) ([]trees.TreeNode, error)

	CreateAttachment(ctx context.Context, attachment *trees.NodeAttachment) error
	GetAttachment(ctx context.Context, attachmentID string) (*trees.NodeAttachment, error)
	ListAttachments(ctx context.Context, nodeID string) ([]trees.NodeAttachment, error)

	CreateLink(ctx context.Context, link *trees.NodeLink) error
	ListLinks(ctx context.Context, nodeID string) ([]trees.NodeLink, error)

	CreateDependency(ctx context.Context, dependency *trees.NodeDependency) error
	ListDependencies(ctx context.Context, nodeID string) ([]trees.NodeDependency, error)

	AddReference(ctx context.Context, nodeID, referencedTreeID string) error
	RemoveReference(ctx context.Context, nodeID, referencedTreeID string) error
	ReferencedTreeIDs(ctx context.Context, nodeID string) ([]string, error)
}

// TokenStore is the API token persistence the API depends on.
// *auth.TokenStore satisfies it.
type TokenStore interface {
	CreateToken(ctx context.Context, userID, name string, expiresAt *time.Time) (*auth.APIToken, string, error)
	ListTokens(ctx context.Context, userID string) ([]*auth.APIToken, error)
	RevokeToken(ctx context.Context, tokenID int64, reason string) error
}

// CreateProjectRequest creates a new project owned by the caller
type CreateProjectRequest struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility"`
}

// UpdateProjectRequest updates project metadata
type UpdateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Visibility  string `json:"visibility"`
}

// AddMemberRequest adds a user to the project's membership ledger
type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// UpdateMemberRoleRequest changes an active member's role
type UpdateMemberRoleRequest struct {
	Role string `json:"role"`
}

// CreateTreeRequest creates an experiment tree within a project
type CreateTreeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateTreeRequest updates tree metadata
type UpdateTreeRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

// CreateBlockRequest creates a named column within a tree
type CreateBlockRequest struct {
	Name      string `json:"name"`
	Position  int    `json:"position"`
	BlockType string `json:"block_type,omitempty"`
}

// CreateNodeRequest creates a node within a tree
type CreateNodeRequest struct {
	BlockID    *string  `json:"block_id,omitempty"`
	Name       string   `json:"name"`
	NodeType   string   `json:"node_type,omitempty"`
	Position   int      `json:"position"`
	Status     string   `json:"status,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Content    string   `json:"content,omitempty"`
}

// UpdateNodeRequest updates a node
type UpdateNodeRequest struct {
	BlockID    *string  `json:"block_id,omitempty"`
	Name       string   `json:"name"`
	Position   int      `json:"position"`
	Status     string   `json:"status,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Content    string   `json:"content,omitempty"`
}

// CreateLinkRequest attaches an external URL to a node
type CreateLinkRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// CreateDependencyRequest records a typed edge between two nodes
type CreateDependencyRequest struct {
	FromNodeID string `json:"from_node_id"`
	ToNodeID   string `json:"to_node_id"`
	Type       string `json:"type"`
	Evidence   string `json:"evidence,omitempty"`
}

// AddReferenceRequest records a navigational pointer from a node to another
// tree. References never grant access to the referenced tree.
type AddReferenceRequest struct {
	ReferencedTreeID string `json:"referenced_tree_id"`
}

// CreateTokenRequest issues a new API token for the caller
type CreateTokenRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CreateTokenResponse carries the plaintext token exactly once
type CreateTokenResponse struct {
	Token    string         `json:"token"`
	APIToken *auth.APIToken `json:"api_token"`
}

// ReferenceListResponse lists the trees a node points at
type ReferenceListResponse struct {
	NodeID            string   `json:"node_id"`
	ReferencedTreeIDs []string `json:"referenced_tree_ids"`
}
