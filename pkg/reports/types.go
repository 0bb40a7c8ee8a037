package reports

import (
	"time"
)

// Kind selects which slice of the calendar a report covers
type Kind string

const (
	// KindAgenda covers an arbitrary date range
	KindAgenda Kind = "agenda"
	// KindWeek covers the calendar week containing the reference date
	KindWeek Kind = "week"
	// KindMonth covers the calendar month containing the reference date
	KindMonth Kind = "month"
	// KindExecFolder lists only events with an executive folder
	KindExecFolder Kind = "exec_folder"
)

// Valid reports whether k is a defined kind
func (k Kind) Valid() bool {
	switch k {
	case KindAgenda, KindWeek, KindMonth, KindExecFolder:
		return true
	}
	return false
}

// Row is one event line in a report
type Row struct {
	EventName        string `json:"event_name"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	Venue            string `json:"venue"`
	Priority         string `json:"priority"`
	Stage            string `json:"stage"`
	OwnerDisplayName string `json:"owner"`

	// Detailed columns, filled only when the report asks for them
	Objective      string `json:"objective,omitempty"`
	DurationHours  float64 `json:"duration_hours,omitempty"`
	Capacity       int    `json:"capacity,omitempty"`
	Participants   int    `json:"participants,omitempty"`
	ExecFolderLink string `json:"exec_folder_link,omitempty"`
}

// Report is a rendered-ready row set with its metadata
type Report struct {
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Detailed    bool      `json:"detailed"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	GeneratedAt time.Time `json:"generated_at"`
	GeneratedBy int64     `json:"generated_by"`
	Rows        []Row     `json:"rows"`
}

// Filename builds the download name, e.g. agenda_20260310_153000.csv
func (r *Report) Filename(ext string) string {
	return string(r.Kind) + "_" + r.GeneratedAt.Format("20060102_150405") + "." + ext
}

// HistoryEntry records one generated report
type HistoryEntry struct {
	ID          int64     `json:"id"`
	Kind        Kind      `json:"kind"`
	Format      string    `json:"format"`
	Filename    string    `json:"filename"`
	GeneratedBy int64     `json:"generated_by"`
	RowCount    int       `json:"row_count"`
	ArchiveKey  string    `json:"archive_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
