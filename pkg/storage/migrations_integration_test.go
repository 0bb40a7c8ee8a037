//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// setupPostgres starts a throwaway PostgreSQL container
func setupPostgres(t *testing.T) Config {
	t.Helper()

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("eventdesk_test"),
		tcpostgres.WithUsername("eventdesk"),
		tcpostgres.WithPassword("eventdesk"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.PostgresURL = url
	cfg.PostgresTimeout = 30 * time.Second
	return cfg
}

func TestMigrateCreatesSchema(t *testing.T) {
	cfg := setupPostgres(t)
	db, err := Connect(cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))

	// second run must be a no-op
	require.NoError(t, Migrate(ctx, db))

	for _, table := range []string{
		"principals", "sessions", "events",
		"notifications", "notification_targets", "notification_reads",
		"report_history",
	} {
		var exists bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
			table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "table %s missing", table)
	}
}

func TestReadReceiptUniqueness(t *testing.T) {
	cfg := setupPostgres(t)
	db, err := Connect(cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))

	var principalID int64
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO principals (email, username, password_hash) VALUES ('a@b.c', 'a', 'x') RETURNING id`).
		Scan(&principalID))

	var notificationID int64
	require.NoError(t, db.QueryRowContext(ctx,
		`INSERT INTO notifications (title, body) VALUES ('t', 'b') RETURNING id`).
		Scan(&notificationID))

	insert := `INSERT INTO notification_reads (notification_id, principal_id) VALUES ($1, $2)
	           ON CONFLICT (notification_id, principal_id) DO NOTHING`

	res, err := db.ExecContext(ctx, insert, notificationID, principalID)
	require.NoError(t, err)
	n, _ := res.RowsAffected()
	assert.Equal(t, int64(1), n)

	// second insert is swallowed by the conflict clause
	res, err = db.ExecContext(ctx, insert, notificationID, principalID)
	require.NoError(t, err)
	n, _ = res.RowsAffected()
	assert.Equal(t, int64(0), n)
}
