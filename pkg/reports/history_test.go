package reports

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The history store sticks to portable SQL, so these tests run it
// against an in-process SQLite database instead of mocks.
func setupHistory(t *testing.T) *HistoryStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewHistoryStore(db)
	require.NoError(t, store.EnsureTable(context.Background()))
	return store
}

func TestHistoryInsertAndList(t *testing.T) {
	store := setupHistory(t)
	ctx := context.Background()

	first := &HistoryEntry{
		Kind:        KindWeek,
		Format:      "csv",
		Filename:    "week_20260309_080000.csv",
		GeneratedBy: 2,
		RowCount:    12,
		CreatedAt:   time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Insert(ctx, first))
	assert.NotZero(t, first.ID)

	second := &HistoryEntry{
		Kind:        KindMonth,
		Format:      "csv",
		Filename:    "month_20260310_090000.csv",
		GeneratedBy: 1,
		RowCount:    40,
		CreatedAt:   time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Insert(ctx, second))

	list, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, KindMonth, list[0].Kind, "newest first")
	assert.Equal(t, KindWeek, list[1].Kind)
	assert.Equal(t, 40, list[0].RowCount)
}

func TestHistoryListByPrincipal(t *testing.T) {
	store := setupHistory(t)
	ctx := context.Background()

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	for i, owner := range []int64{1, 2, 2} {
		require.NoError(t, store.Insert(ctx, &HistoryEntry{
			Kind: KindWeek, Format: "csv", Filename: "w.csv",
			GeneratedBy: owner, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	list, err := store.ListByPrincipal(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, e := range list {
		assert.Equal(t, int64(2), e.GeneratedBy)
	}

	list, err = store.ListByPrincipal(ctx, 9, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHistoryListLimit(t *testing.T) {
	store := setupHistory(t)
	ctx := context.Background()

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Insert(ctx, &HistoryEntry{
			Kind: KindAgenda, Format: "csv", Filename: "a.csv",
			GeneratedBy: 1, CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	list, err := store.ListRecent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestHistorySetArchiveKey(t *testing.T) {
	store := setupHistory(t)
	ctx := context.Background()

	entry := &HistoryEntry{Kind: KindWeek, Format: "csv", Filename: "w.csv", GeneratedBy: 1}
	require.NoError(t, store.Insert(ctx, entry))
	require.NoError(t, store.SetArchiveKey(ctx, entry.ID, "reports/2026/03/w.csv"))

	list, err := store.ListRecent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "reports/2026/03/w.csv", list[0].ArchiveKey)
}

func TestHistoryPrune(t *testing.T) {
	store := setupHistory(t)
	ctx := context.Background()

	old := &HistoryEntry{Kind: KindWeek, Format: "csv", Filename: "old.csv",
		GeneratedBy: 1, CreatedAt: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}
	recent := &HistoryEntry{Kind: KindWeek, Format: "csv", Filename: "new.csv",
		GeneratedBy: 1, CreatedAt: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, store.Insert(ctx, old))
	require.NoError(t, store.Insert(ctx, recent))

	pruned, err := store.Prune(ctx, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	list, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "new.csv", list[0].Filename)
}
