package reports

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mindara-hq/eventdesk/pkg/async"
	"github.com/mindara-hq/eventdesk/pkg/audit"
	"github.com/mindara-hq/eventdesk/pkg/auth"
	"github.com/mindara-hq/eventdesk/pkg/events"
	"github.com/mindara-hq/eventdesk/pkg/observability"
	"github.com/mindara-hq/eventdesk/pkg/storage"
)

const archiveTimeout = 30 * time.Second

// Generated is a rendered report ready to send to the client
type Generated struct {
	Report      *Report
	Filename    string
	ContentType string
	Content     []byte
}

// Service generates, records, and archives reports. Any authenticated
// principal may generate them; the builder's lister applies the
// caller's role scope, so a basic user only ever reports on their own
// events.
type Service struct {
	builder *Builder
	history *HistoryStore
	archive *storage.S3Client
	trail   *audit.Trail
	metrics *observability.Metrics
	logger  *observability.Logger

	now func() time.Time
}

// NewService creates the report service. archive and trail may be nil.
func NewService(builder *Builder, history *HistoryStore, archive *storage.S3Client, trail *audit.Trail, metrics *observability.Metrics, logger *observability.Logger) *Service {
	return &Service{
		builder: builder,
		history: history,
		archive: archive,
		trail:   trail,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Generate builds and renders one report, records it in the history,
// and ships a copy to the archive bucket in the background
func (s *Service) Generate(ctx context.Context, p *auth.Principal, kind Kind, format string, opts Options) (*Generated, error) {
	if !kind.Valid() {
		return nil, &events.ValidationError{Field: "type", Reason: events.ReasonInvalidValue}
	}
	renderer, ok := RendererFor(format)
	if !ok {
		return nil, &events.ValidationError{Field: "format", Reason: events.ReasonInvalidValue}
	}

	start := s.now()
	report, err := s.builder.Build(ctx, p, kind, opts, start)
	if err != nil {
		s.metrics.ReportsGeneratedTotal.WithLabelValues(string(kind), format, "error").Inc()
		return nil, err
	}

	var buf bytes.Buffer
	if err := renderer.Render(&buf, report); err != nil {
		s.metrics.ReportsGeneratedTotal.WithLabelValues(string(kind), format, "error").Inc()
		return nil, err
	}

	gen := &Generated{
		Report:      report,
		Filename:    report.Filename(renderer.Ext()),
		ContentType: renderer.ContentType(),
		Content:     buf.Bytes(),
	}

	entry := &HistoryEntry{
		Kind:        kind,
		Format:      format,
		Filename:    gen.Filename,
		GeneratedBy: p.ID,
		RowCount:    len(report.Rows),
		CreatedAt:   start,
	}
	if err := s.history.Insert(ctx, entry); err != nil {
		// the report itself is fine; losing one history row is not
		// worth failing the download
		s.logger.WithError(err).Warnf("recording report history failed")
	} else {
		s.archiveAsync(ctx, entry, gen)
	}

	s.metrics.ReportsGeneratedTotal.WithLabelValues(string(kind), format, "ok").Inc()
	s.metrics.ReportDuration.WithLabelValues(string(kind)).Observe(s.now().Sub(start).Seconds())
	if s.trail != nil {
		s.trail.Record(ctx, &audit.Event{
			Type:         audit.EventReportGenerated,
			ActorID:      &p.ID,
			ActorName:    p.DisplayName(),
			ResourceType: "report",
			ResourceID:   gen.Filename,
			Message:      fmt.Sprintf("%d rows", len(report.Rows)),
		})
	}
	return gen, nil
}

// archiveAsync uploads the rendered report to the bucket after the
// response is sent. The context is detached so the upload survives the
// request.
func (s *Service) archiveAsync(ctx context.Context, entry *HistoryEntry, gen *Generated) {
	if s.archive == nil {
		return
	}
	content := make([]byte, len(gen.Content))
	copy(content, gen.Content)
	key := fmt.Sprintf("reports/%s/%s", gen.Report.GeneratedAt.Format("2006/01"), gen.Filename)

	async.SafeGo(async.Detach(ctx), archiveTimeout, "archive-report", func(ctx context.Context) error {
		if err := s.archive.PutObject(ctx, key, bytes.NewReader(content), gen.ContentType); err != nil {
			return err
		}
		return s.history.SetArchiveKey(ctx, entry.ID, key)
	})
}

// Section names one part of an executive bundle
type Section struct {
	Name   string  `json:"name"`
	Report *Report `json:"report"`
}

// GenerateBundle builds the executive bundle: the week, the month, and
// the executive-folder listing, assembled concurrently
func (s *Service) GenerateBundle(ctx context.Context, p *auth.Principal, opts Options) ([]Section, error) {
	now := s.now()
	kinds := []Kind{KindWeek, KindMonth, KindExecFolder}
	sections := make([]Section, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			report, err := s.builder.Build(gctx, p, kind, opts, now)
			if err != nil {
				return fmt.Errorf("building %s section: %w", kind, err)
			}
			sections[i] = Section{Name: report.Title, Report: report}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sections, nil
}

// History lists the newest generated reports. Admins see everyone's;
// other principals only see reports they generated themselves.
func (s *Service) History(ctx context.Context, p *auth.Principal, limit int) ([]*HistoryEntry, error) {
	if p.IsAdmin() {
		return s.history.ListRecent(ctx, limit)
	}
	return s.history.ListByPrincipal(ctx, p.ID, limit)
}

// PruneHistory removes entries older than the retention window. Run by
// the janitor.
func (s *Service) PruneHistory(ctx context.Context, retention time.Duration) (int64, error) {
	return s.history.Prune(ctx, s.now().Add(-retention))
}
