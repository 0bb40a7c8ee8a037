package reports

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Renderer serializes a report into a download format
type Renderer interface {
	Render(w io.Writer, r *Report) error
	ContentType() string
	Ext() string
}

// CSVRenderer writes reports as RFC 4180 CSV
type CSVRenderer struct{}

// NewCSVRenderer creates a CSV renderer
func NewCSVRenderer() *CSVRenderer {
	return &CSVRenderer{}
}

// ContentType returns the CSV MIME type
func (r *CSVRenderer) ContentType() string { return "text/csv; charset=utf-8" }

// Ext returns the file extension without the dot
func (r *CSVRenderer) Ext() string { return "csv" }

var baseHeader = []string{"Evento", "Fecha", "Hora", "Lugar", "Prioridad", "Etapa", "Responsable"}
var detailHeader = []string{"Objetivo", "Duracion (h)", "Capacidad", "Participantes", "Carpeta ejecutiva"}

// Render writes the report rows with a header line
func (r *CSVRenderer) Render(w io.Writer, report *Report) error {
	cw := csv.NewWriter(w)

	header := baseHeader
	if report.Detailed {
		header = append(append([]string{}, baseHeader...), detailHeader...)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}

	for _, row := range report.Rows {
		record := []string{row.EventName, row.Date, row.Time, row.Venue,
			row.Priority, row.Stage, row.OwnerDisplayName}
		if report.Detailed {
			record = append(record,
				row.Objective,
				strconv.FormatFloat(row.DurationHours, 'f', -1, 64),
				strconv.Itoa(row.Capacity),
				strconv.Itoa(row.Participants),
				row.ExecFolderLink)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// renderers maps format names to implementations
var renderers = map[string]Renderer{
	"csv": NewCSVRenderer(),
}

// RendererFor returns the renderer for a format name
func RendererFor(format string) (Renderer, bool) {
	r, ok := renderers[format]
	return r, ok
}
