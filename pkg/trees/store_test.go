package trees

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewStore(db)
	return store, mock, db
}

const (
	testProjectID = "11111111-1111-1111-1111-111111111111"
	testTreeID    = "44444444-4444-4444-4444-444444444444"
	testNodeID    = "55555555-5555-5555-5555-555555555555"
)

func TestProjectIDOfTree(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	ctx := context.Background()

	t.Run("resolves owning project", func(t *testing.T) {
		mock.ExpectQuery(`SELECT project_id FROM experiment_trees`).
			WithArgs(testTreeID).
			WillReturnRows(sqlmock.NewRows([]string{"project_id"}).AddRow(testProjectID))

		projectID, err := store.ProjectIDOfTree(ctx, testTreeID)
		require.NoError(t, err)
		assert.Equal(t, testProjectID, projectID)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing tree", func(t *testing.T) {
		mock.ExpectQuery(`SELECT project_id FROM experiment_trees`).
			WithArgs(testTreeID).
			WillReturnError(sql.ErrNoRows)

		_, err := store.ProjectIDOfTree(ctx, testTreeID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTreeIDOfNode(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	ctx := context.Background()

	t.Run("resolves owning tree", func(t *testing.T) {
		mock.ExpectQuery(`SELECT tree_id FROM tree_nodes`).
			WithArgs(testNodeID).
			WillReturnRows(sqlmock.NewRows([]string{"tree_id"}).AddRow(testTreeID))

		treeID, err := store.TreeIDOfNode(ctx, testNodeID)
		require.NoError(t, err)
		assert.Equal(t, testTreeID, treeID)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing node", func(t *testing.T) {
		mock.ExpectQuery(`SELECT tree_id FROM tree_nodes`).
			WithArgs(testNodeID).
			WillReturnError(sql.ErrNoRows)

		_, err := store.TreeIDOfNode(ctx, testNodeID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetTree(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	ctx := context.Background()

	t.Run("includes node count", func(t *testing.T) {
		now := time.Now()
		rows := sqlmock.NewRows([]string{"id", "project_id", "name", "description", "status", "created_at", "updated_at", "node_count"}).
			AddRow(testTreeID, testProjectID, "Binding affinity", "", "active", now, now, 12)

		mock.ExpectQuery(`SELECT t.id, t.project_id, t.name`).
			WithArgs(testTreeID).
			WillReturnRows(rows)

		tree, err := store.GetTree(ctx, testTreeID)
		require.NoError(t, err)
		assert.Equal(t, testProjectID, tree.ProjectID)
		assert.Equal(t, TreeStatusActive, tree.Status)
		assert.Equal(t, 12, tree.NodeCount)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing tree", func(t *testing.T) {
		mock.ExpectQuery(`SELECT t.id, t.project_id, t.name`).
			WithArgs(testTreeID).
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetTree(ctx, testTreeID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetNode(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	ctx := context.Background()
	columns := []string{"id", "tree_id", "block_id", "name", "node_type", "position", "status", "confidence", "content", "created_at", "updated_at"}

	t.Run("with nullable fields set", func(t *testing.T) {
		now := time.Now()
		blockID := "66666666-6666-6666-6666-666666666666"
		rows := sqlmock.NewRows(columns).
			AddRow(testNodeID, testTreeID, blockID, "Dose escalation", "experiment", 3, "validated", 0.85, "notes", now, now)

		mock.ExpectQuery(`SELECT id, tree_id, block_id, name`).
			WithArgs(testNodeID).
			WillReturnRows(rows)

		node, err := store.GetNode(ctx, testNodeID)
		require.NoError(t, err)
		require.NotNil(t, node.BlockID)
		assert.Equal(t, blockID, *node.BlockID)
		require.NotNil(t, node.Confidence)
		assert.InDelta(t, 0.85, *node.Confidence, 0.001)
		assert.Equal(t, NodeStatusValidated, node.Status)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with nullable fields unset", func(t *testing.T) {
		now := time.Now()
		rows := sqlmock.NewRows(columns).
			AddRow(testNodeID, testTreeID, nil, "Dose escalation", "experiment", 0, "proposed", nil, "", now, now)

		mock.ExpectQuery(`SELECT id, tree_id, block_id, name`).
			WithArgs(testNodeID).
			WillReturnRows(rows)

		node, err := store.GetNode(ctx, testNodeID)
		require.NoError(t, err)
		assert.Nil(t, node.BlockID)
		assert.Nil(t, node.Confidence)

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReferences(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	ctx := context.Background()
	otherTreeID := "77777777-7777-7777-7777-777777777777"

	t.Run("add is idempotent", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO tree_references`).
			WithArgs(testNodeID, otherTreeID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.AddReference(ctx, testNodeID, otherTreeID))

		// Duplicate insert hits ON CONFLICT DO NOTHING
		mock.ExpectExec(`INSERT INTO tree_references`).
			WithArgs(testNodeID, otherTreeID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, store.AddReference(ctx, testNodeID, otherTreeID))

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lists referenced trees", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"referenced_tree_id"}).
			AddRow(otherTreeID).
			AddRow(testTreeID)

		mock.ExpectQuery(`SELECT referenced_tree_id FROM tree_references`).
			WithArgs(testNodeID).
			WillReturnRows(rows)

		treeIDs, err := store.ReferencedTreeIDs(ctx, testNodeID)
		require.NoError(t, err)
		assert.Equal(t, []string{otherTreeID, testTreeID}, treeIDs)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT referenced_tree_id FROM tree_references`).
			WithArgs(testNodeID).
			WillReturnError(fmt.Errorf("database connection error"))

		_, err := store.ReferencedTreeIDs(ctx, testNodeID)
		require.Error(t, err)

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCreateNodeDefaults(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	ctx := context.Background()

	node := &TreeNode{
		TreeID:   testTreeID,
		Name:     "New hypothesis",
		NodeType: "hypothesis",
	}

	mock.ExpectQuery(`INSERT INTO tree_nodes`).
		WithArgs(testTreeID, nil, "New hypothesis", "hypothesis", 0, NodeStatusProposed,
			nil, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(testNodeID))

	err := store.CreateNode(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, testNodeID, node.ID)
	assert.Equal(t, NodeStatusProposed, node.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}
