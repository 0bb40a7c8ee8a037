package reports

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/events"
	"github.com/mindara-hq/eventdesk/pkg/observability"
)

var basicUser = &auth.Principal{ID: 3, Username: "ana", Role: auth.RoleUser, IsActive: true}

func setupReportService(t *testing.T, lister EventLister) *Service {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	history := NewHistoryStore(db)
	require.NoError(t, history.EnsureTable(context.Background()))

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	svc := NewService(NewBuilder(lister), history, nil, nil, metrics, logger)
	svc.now = func() time.Time { return reportNow }
	return svc
}

func TestGenerateAllowsBasicUsers(t *testing.T) {
	lister := &fakeLister{events: []*events.Event{sampleEvent("Junta", false)}}
	svc := setupReportService(t, lister)

	gen, err := svc.Generate(context.Background(), basicUser, KindWeek, "csv", Options{})
	require.NoError(t, err)
	assert.Equal(t, basicUser.ID, gen.Report.GeneratedBy)
	assert.Contains(t, string(gen.Content), "Junta")
}

func TestGenerateRejectsUnknownKindAndFormat(t *testing.T) {
	svc := setupReportService(t, &fakeLister{})

	_, err := svc.Generate(context.Background(), reporter, Kind("quarterly"), "csv", Options{})
	var verr *events.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)

	_, err = svc.Generate(context.Background(), reporter, KindWeek, "pdf", Options{})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "format", verr.Field)
}

func TestGenerateProducesCSVAndHistory(t *testing.T) {
	lister := &fakeLister{events: []*events.Event{sampleEvent("Junta", false)}}
	svc := setupReportService(t, lister)
	ctx := context.Background()

	gen, err := svc.Generate(ctx, reporter, KindWeek, "csv", Options{})
	require.NoError(t, err)

	assert.Equal(t, "week_20260311_100000.csv", gen.Filename)
	assert.Contains(t, gen.ContentType, "text/csv")
	assert.True(t, strings.HasPrefix(string(gen.Content), "Evento,"))
	assert.Contains(t, string(gen.Content), "Junta")

	history, err := svc.History(ctx, reporter, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, KindWeek, history[0].Kind)
	assert.Equal(t, 1, history[0].RowCount)
	assert.Equal(t, reporter.ID, history[0].GeneratedBy)
}

func TestGenerateBundleSections(t *testing.T) {
	lister := &fakeLister{events: []*events.Event{sampleEvent("Junta", true)}}
	svc := setupReportService(t, lister)

	sections, err := svc.GenerateBundle(context.Background(), reporter, Options{})
	require.NoError(t, err)
	require.Len(t, sections, 3)

	kinds := []Kind{sections[0].Report.Kind, sections[1].Report.Kind, sections[2].Report.Kind}
	assert.Equal(t, []Kind{KindWeek, KindMonth, KindExecFolder}, kinds)
}

func TestHistoryScopedToRequester(t *testing.T) {
	lister := &fakeLister{events: []*events.Event{sampleEvent("Junta", false)}}
	svc := setupReportService(t, lister)
	ctx := context.Background()

	_, err := svc.Generate(ctx, reporter, KindWeek, "csv", Options{})
	require.NoError(t, err)
	_, err = svc.Generate(ctx, basicUser, KindMonth, "csv", Options{})
	require.NoError(t, err)

	// non-admins only see their own reports
	own, err := svc.History(ctx, basicUser, 10)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, basicUser.ID, own[0].GeneratedBy)

	admin := &auth.Principal{ID: 1, Username: "root", Role: auth.RoleAdmin, IsActive: true}
	all, err := svc.History(ctx, admin, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPruneHistory(t *testing.T) {
	svc := setupReportService(t, &fakeLister{events: []*events.Event{sampleEvent("Junta", false)}})
	ctx := context.Background()

	_, err := svc.Generate(ctx, reporter, KindWeek, "csv", Options{})
	require.NoError(t, err)

	// everything generated at reportNow is newer than a 30 day window
	pruned, err := svc.PruneHistory(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, pruned)

	pruned, err = svc.PruneHistory(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}
