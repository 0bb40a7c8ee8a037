package reports

import (
	"context"
	"time"

	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/events"
)

// EventLister is the slice of the event service a builder needs. The
// lister applies the caller's role scope, so a report never contains
// events its requester could not list.
type EventLister interface {
	List(ctx context.Context, p *auth.Principal, f events.ListFilters) ([]*events.Event, error)
}

// Builder turns scoped event listings into report row sets
type Builder struct {
	lister EventLister
}

// NewBuilder creates a report builder
func NewBuilder(lister EventLister) *Builder {
	return &Builder{lister: lister}
}

// Options narrows what a report covers
type Options struct {
	// From and To bound agenda reports; week and month reports derive
	// their own bounds from Reference
	From *time.Time
	To   *time.Time

	// Reference anchors week and month reports; zero means now
	Reference time.Time

	// ConfirmedOnly narrows agenda reports to confirmed events
	ConfirmedOnly bool

	// Detailed adds objective, duration, capacity, and participant
	// columns
	Detailed bool
}

// Build assembles the row set for one report kind
func (b *Builder) Build(ctx context.Context, p *auth.Principal, kind Kind, opts Options, now time.Time) (*Report, error) {
	ref := opts.Reference
	if ref.IsZero() {
		ref = now
	}

	filters := events.ListFilters{}
	report := &Report{
		Kind:        kind,
		Detailed:    opts.Detailed,
		GeneratedAt: now,
		GeneratedBy: p.ID,
	}

	switch kind {
	case KindAgenda:
		report.Title = "Agenda de eventos"
		// the agenda covers upcoming events unless the caller asked
		// for an explicit window
		from := opts.From
		if from == nil {
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			from = &today
		}
		filters.From = from
		filters.To = opts.To
		report.From = *from
		if opts.To != nil {
			report.To = *opts.To
		}
		if opts.ConfirmedOnly {
			filters.Stage = events.StageConfirmed
		}
	case KindWeek:
		from, to := weekBounds(ref)
		report.Title = "Eventos de la semana"
		report.From, report.To = from, to
		filters.From, filters.To = &from, &to
	case KindMonth:
		from, to := monthBounds(ref)
		report.Title = "Eventos del mes"
		report.From, report.To = from, to
		filters.From, filters.To = &from, &to
	case KindExecFolder:
		report.Title = "Eventos con carpeta ejecutiva"
		filters.From = opts.From
		filters.To = opts.To
	}

	list, err := b.lister.List(ctx, p, filters)
	if err != nil {
		return nil, err
	}

	for _, e := range list {
		if kind == KindExecFolder && !e.HasExecFolder {
			continue
		}
		report.Rows = append(report.Rows, buildRow(e, opts.Detailed))
	}
	return report, nil
}

func buildRow(e *events.Event, detailed bool) Row {
	row := Row{
		EventName:        e.Name,
		Date:             e.Date,
		Time:             e.Time,
		Venue:            e.Venue,
		Priority:         string(e.Priority),
		Stage:            string(e.Stage),
		OwnerDisplayName: e.OwnerDisplayName,
	}
	if detailed {
		row.Objective = e.Objective
		row.DurationHours = e.DurationHours()
		row.Capacity = e.Capacity
		row.Participants = e.ParticipantCount()
		row.ExecFolderLink = e.ExecFolderLink
	}
	return row
}

// weekBounds returns Monday through Sunday of the week containing ref
func weekBounds(ref time.Time) (time.Time, time.Time) {
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	from := day.AddDate(0, 0, -offset)
	return from, from.AddDate(0, 0, 6)
}

// monthBounds returns the first and last day of the month containing ref
func monthBounds(ref time.Time) (time.Time, time.Time) {
	from := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	return from, from.AddDate(0, 1, -1)
}
