package reports

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRender(t *testing.T) {
	report := &Report{
		Kind: KindAgenda,
		Rows: []Row{
			{EventName: "Junta, anual", Date: "2026-03-12", Time: "10:00",
				Venue: "Sala A", Priority: "high", Stage: "confirmed",
				OwnerDisplayName: "Ana Gomez"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewCSVRenderer().Render(&buf, report))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Evento", records[0][0])
	assert.Equal(t, "Junta, anual", records[1][0], "commas survive quoting")
	assert.Len(t, records[1], 7)
}

func TestCSVRenderDetailed(t *testing.T) {
	report := &Report{
		Kind:     KindWeek,
		Detailed: true,
		Rows: []Row{
			{EventName: "Junta", DurationHours: 1.5, Capacity: 20, Participants: 3},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewCSVRenderer().Render(&buf, report))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records[0], 12)
	assert.Equal(t, "1.5", records[1][8])
}

func TestCSVRenderEmptyReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVRenderer().Render(&buf, &Report{Kind: KindMonth}))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1, "header only")
}

func TestRendererFor(t *testing.T) {
	r, ok := RendererFor("csv")
	require.True(t, ok)
	assert.Equal(t, "csv", r.Ext())
	assert.Contains(t, r.ContentType(), "text/csv")

	_, ok = RendererFor("pdf")
	assert.False(t, ok)
}
