package notifications

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindara-hq/eventdesk/pkg/policy"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var notificationCols = []string{
	"id", "title", "message", "notification_type", "priority", "created_by",
	"target_role", "expires_at", "is_active", "created_at", "updated_at",
}

func TestStoreCreateClearsRoleWhenUsersTargeted(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications`).
		// target_role must be nil even though the caller set one
		WithArgs("Aviso", "Contenido", TypeGeneral, PriorityMedium, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).
			AddRow(5, true, now, now))
	mock.ExpectExec(`INSERT INTO notification_targets`).
		WithArgs(int64(5), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO notification_targets`).
		WithArgs(int64(5), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n := &Notification{
		Title:         "Aviso",
		Message:       "Contenido",
		Type:          TypeGeneral,
		Priority:      PriorityMedium,
		TargetRole:    "MANAGER",
		TargetUserIDs: []int64{3, 4},
	}
	require.NoError(t, store.Create(context.Background(), n))
	assert.Empty(t, n.TargetRole, "user targets clear the role target")
	assert.Equal(t, int64(5), n.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCreateBroadcast(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO notifications`).
		WithArgs("Aviso", "Contenido", TypeGeneral, PriorityMedium, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).
			AddRow(6, true, now, now))
	mock.ExpectCommit()

	n := &Notification{Title: "Aviso", Message: "Contenido", Type: TypeGeneral, Priority: PriorityMedium}
	require.NoError(t, store.Create(context.Background(), n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreVisibleForUsesPredicate(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	now := time.Now()
	mock.ExpectQuery(`n\.is_active = TRUE.+notification_targets.+ORDER BY n\.created_at DESC`).
		WithArgs(visUser.ID, "USER", now).
		WillReturnRows(sqlmock.NewRows(append(notificationCols, "is_read")).
			AddRow(1, "Aviso", "Contenido", "general", "medium", nil, nil, nil, true, now, now, false))

	list, err := store.VisibleFor(context.Background(), visUser, now, 0, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsRead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreVisibleForUnreadPreviewLimit(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	now := time.Now()
	mock.ExpectQuery(`AND r\.principal_id IS NULL ORDER BY n\.created_at DESC LIMIT \$4`).
		WithArgs(visUser.ID, "USER", now, PreviewLimit).
		WillReturnRows(sqlmock.NewRows(append(notificationCols, "is_read")))

	_, err := store.VisibleFor(context.Background(), visUser, now, PreviewLimit, true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMarkRead(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	t.Run("first mark creates a receipt", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO notification_reads.+ON CONFLICT \(notification_id, principal_id\) DO NOTHING`).
			WithArgs(int64(1), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		created, err := store.MarkRead(context.Background(), 1, 3)
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("repeat mark is a no-op", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO notification_reads`).
			WithArgs(int64(1), int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		created, err := store.MarkRead(context.Background(), 1, 3)
		require.NoError(t, err)
		assert.False(t, created)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMarkAllReadCountsNewReceipts(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	now := time.Now()
	mock.ExpectExec(`INSERT INTO notification_reads.+SELECT n\.id, \$1, NOW\(\)`).
		WithArgs(visUser.ID, "USER", now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.MarkAllRead(context.Background(), visUser, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreUnreadCount(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	now := time.Now()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notifications n.+AND r\.principal_id IS NULL`).
		WithArgs(visUser.ID, "USER", now).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.UnreadCount(context.Background(), visUser, now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDeactivateExpired(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	now := time.Now()
	mock.ExpectExec(`UPDATE notifications SET is_active = FALSE.+expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := store.DeactivateExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreDeleteMissing(t *testing.T) {
	db, mock := setupMockDB(t)
	store := NewStore(db)

	mock.ExpectExec(`DELETE FROM notifications WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.True(t, errors.Is(store.Delete(context.Background(), 99), policy.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
