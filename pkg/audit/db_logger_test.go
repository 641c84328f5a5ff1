package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBLogger_Log(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	t.Run("writes full event", func(t *testing.T) {
		actorID := "22222222-2222-2222-2222-222222222222"
		event := &Event{
			Timestamp:    time.Now(),
			EventType:    EventTypeMemberAdd,
			Status:       EventStatusSuccess,
			UserID:       &actorID,
			ResourceType: ResourceTypeUser,
			ResourceID:   "33333333-3333-3333-3333-333333333333",
			ProjectID:    "11111111-1111-1111-1111-111111111111",
			Metadata:     map[string]interface{}{"role": "contributor"},
		}

		mock.ExpectQuery(`INSERT INTO audit_logs`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		err := logger.Log(context.Background(), event)
		require.NoError(t, err)
		assert.Equal(t, int64(1), event.ID)

		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("access denied helper", func(t *testing.T) {
		userID := "22222222-2222-2222-2222-222222222222"

		mock.ExpectQuery(`INSERT INTO audit_logs`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

		err := logger.LogAccessDenied(context.Background(), &userID, ResourceTypeTree, "tree-1", "write")
		require.NoError(t, err)

		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNewDBLogger_RequiresDB(t *testing.T) {
	_, err := NewDBLogger(nil)
	require.Error(t, err)
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	ctx := context.Background()

	assert.NoError(t, logger.Log(ctx, &Event{}))
	assert.NoError(t, logger.LogMemberChange(ctx, EventTypeMemberAdd, "a", "p", "u", "contributor"))
	assert.NoError(t, logger.LogAccessDenied(ctx, nil, ResourceTypeProject, "p", "read"))
	assert.NoError(t, logger.LogMutation(ctx, EventTypeTreeCreate, "a", ResourceTypeTree, "t", "p"))
	assert.NoError(t, logger.Close())
}
