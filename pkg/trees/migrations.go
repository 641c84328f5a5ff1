package trees

import (
	"github.com/canopyhq/canopy/pkg/storage/postgres"
)

// Migrations returns the tree schema migrations
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create experiment_trees table",
			SQL: `
				CREATE TABLE IF NOT EXISTS experiment_trees (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CHECK (status IN ('active', 'archived'))
				);

				CREATE INDEX idx_experiment_trees_project_id ON experiment_trees(project_id);
			`,
		},
		{
			Version:     2,
			Description: "Create tree_blocks and tree_nodes tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS tree_blocks (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					tree_id UUID NOT NULL REFERENCES experiment_trees(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					position INT NOT NULL DEFAULT 0,
					block_type VARCHAR(50) NOT NULL DEFAULT 'stage',
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_tree_blocks_tree_id ON tree_blocks(tree_id);

				CREATE TABLE IF NOT EXISTS tree_nodes (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					tree_id UUID NOT NULL REFERENCES experiment_trees(id) ON DELETE CASCADE,
					block_id UUID REFERENCES tree_blocks(id) ON DELETE SET NULL,
					name VARCHAR(255) NOT NULL,
					node_type VARCHAR(50) NOT NULL DEFAULT 'experiment',
					position INT NOT NULL DEFAULT 0,
					status VARCHAR(20) NOT NULL DEFAULT 'proposed',
					confidence DOUBLE PRECISION,
					content TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CHECK (status IN ('proposed', 'active', 'validated', 'rejected')),
					CHECK (confidence IS NULL OR (confidence >= 0 AND confidence <= 1))
				);

				CREATE INDEX idx_tree_nodes_tree_id ON tree_nodes(tree_id);
				CREATE INDEX idx_tree_nodes_block_id ON tree_nodes(block_id);
			`,
		},
		{
			Version:     3,
			Description: "Create node attachments, links, and dependencies",
			SQL: `
				CREATE TABLE IF NOT EXISTS node_attachments (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					node_id UUID NOT NULL REFERENCES tree_nodes(id) ON DELETE CASCADE,
					file_name VARCHAR(512) NOT NULL,
					content_type VARCHAR(255) NOT NULL,
					size_bytes BIGINT NOT NULL,
					storage_key VARCHAR(512) NOT NULL,
					checksum VARCHAR(64) NOT NULL,
					uploaded_by UUID NOT NULL REFERENCES users(id),
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_node_attachments_node_id ON node_attachments(node_id);

				CREATE TABLE IF NOT EXISTS node_links (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					node_id UUID NOT NULL REFERENCES tree_nodes(id) ON DELETE CASCADE,
					title VARCHAR(512) NOT NULL,
					url TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_node_links_node_id ON node_links(node_id);

				CREATE TABLE IF NOT EXISTS node_dependencies (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					from_node_id UUID NOT NULL REFERENCES tree_nodes(id) ON DELETE CASCADE,
					to_node_id UUID NOT NULL REFERENCES tree_nodes(id) ON DELETE CASCADE,
					dependency_type VARCHAR(20) NOT NULL,
					evidence TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CHECK (dependency_type IN ('blocks', 'informs', 'supports')),
					CHECK (from_node_id <> to_node_id),
					UNIQUE (from_node_id, to_node_id, dependency_type)
				);

				CREATE INDEX idx_node_dependencies_from ON node_dependencies(from_node_id);
				CREATE INDEX idx_node_dependencies_to ON node_dependencies(to_node_id);
			`,
		},
		{
			Version:     4,
			Description: "Create tree_references table",
			SQL: `
				-- Navigational cross-references from a node to trees it does
				-- not own. These rows never grant access to the referenced tree.
				CREATE TABLE IF NOT EXISTS tree_references (
					node_id UUID NOT NULL REFERENCES tree_nodes(id) ON DELETE CASCADE,
					referenced_tree_id UUID NOT NULL REFERENCES experiment_trees(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (node_id, referenced_tree_id)
				);

				CREATE INDEX idx_tree_references_tree ON tree_references(referenced_tree_id);
			`,
		},
	}
}
