package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/canopyhq/canopy/pkg/trees"
)

// OwnershipStore resolves one hop of the ownership chain
type OwnershipStore interface {
	ProjectIDOfTree(ctx context.Context, treeID string) (string, error)
	TreeIDOfNode(ctx context.Context, nodeID string) (string, error)
}

// OwnershipResolver walks tree and node identifiers up to their owning
// project. Ownership is strictly single-parent: a node belongs to exactly
// one tree and a tree to exactly one project, so resolution is a plain
// one- or two-hop lookup. Cross-references between nodes and foreign
// trees are not ownership edges and never enter this walk.
type OwnershipResolver struct {
	store OwnershipStore
}

// NewOwnershipResolver creates an ownership resolver over the given store
func NewOwnershipResolver(store OwnershipStore) *OwnershipResolver {
	return &OwnershipResolver{store: store}
}

// ProjectOfTree resolves the project owning a tree
func (r *OwnershipResolver) ProjectOfTree(ctx context.Context, treeID string) (string, error) {
	projectID, err := r.store.ProjectIDOfTree(ctx, treeID)
	if err != nil {
		if errors.Is(err, trees.ErrNotFound) {
			return "", fmt.Errorf("tree %q: %w", treeID, ErrNotFound)
		}
		return "", fmt.Errorf("failed to resolve tree ownership: %w", err)
	}
	return projectID, nil
}

// ProjectOfNode resolves the project owning a node. The two hops are
// sequential: the second depends on the first's result.
func (r *OwnershipResolver) ProjectOfNode(ctx context.Context, nodeID string) (string, error) {
	treeID, err := r.store.TreeIDOfNode(ctx, nodeID)
	if err != nil {
		if errors.Is(err, trees.ErrNotFound) {
			return "", fmt.Errorf("node %q: %w", nodeID, ErrNotFound)
		}
		return "", fmt.Errorf("failed to resolve node ownership: %w", err)
	}

	return r.ProjectOfTree(ctx, treeID)
}
