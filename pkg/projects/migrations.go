package projects

import (
	"github.com/canopyhq/canopy/pkg/storage/postgres"
)

// Migrations returns the project schema migrations
func Migrations() []postgres.Migration {
	return []postgres.Migration{
		{
			Version:     1,
			Description: "Create projects table",
			SQL: `
				CREATE TABLE IF NOT EXISTS projects (
					id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
					slug VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					visibility VARCHAR(20) NOT NULL DEFAULT 'private',
					owner_id UUID NOT NULL REFERENCES users(id),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CHECK (visibility IN ('public', 'private'))
				);

				CREATE INDEX idx_projects_slug ON projects(slug);
				CREATE INDEX idx_projects_owner_id ON projects(owner_id);
				CREATE INDEX idx_projects_visibility ON projects(visibility);
			`,
		},
		{
			Version:     2,
			Description: "Create project_members ledger",
			SQL: `
				CREATE TABLE IF NOT EXISTS project_members (
					id BIGSERIAL PRIMARY KEY,
					project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(20) NOT NULL,
					added_by UUID REFERENCES users(id) ON DELETE SET NULL,
					joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
					left_at TIMESTAMP,
					CHECK (role IN ('owner', 'maintainer', 'contributor')),
					CHECK (left_at IS NULL OR left_at >= joined_at)
				);

				-- At most one active stint per (project, user). Historical
				-- rows with left_at set do not participate.
				CREATE UNIQUE INDEX idx_project_members_active
					ON project_members(project_id, user_id)
					WHERE left_at IS NULL;

				CREATE INDEX idx_project_members_project_id ON project_members(project_id);
				CREATE INDEX idx_project_members_user_id ON project_members(user_id);
			`,
		},
	}
}
