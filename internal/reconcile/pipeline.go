package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// Options configures one target's reconciliation
type Options struct {
	TargetParams map[string]string

	Eligible domain.StatusSet
	Known    domain.StatusSet

	// Optional list filters
	FilterStatuses domain.StatusSet
	Lookback       time.Duration

	Poll  PollerConfig
	Pages PaginatorConfig

	ConfirmChunkSize          int
	AbortOnConvergenceTimeout bool

	// Inspect deep-checks 2xx bodies of import and confirmation calls
	Inspect BodyInspector
}

// Pipeline runs submit, poll, paginate, extract and confirm in strict order
type Pipeline struct {
	opts   Options
	clock  Clock
	logger *slog.Logger
}

// NewPipeline creates a pipeline
func NewPipeline(opts Options, clock Clock, logger *slog.Logger) *Pipeline {
	if clock == nil {
		clock = RealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{opts: opts, clock: clock, logger: logger}
}

// Execute runs every stage against api and records results and conditions into outcome.
// Failures before or during submission stop the run; polling and pagination
// failures degrade it; a confirmation failure is recorded after the fact.
func (p *Pipeline) Execute(ctx context.Context, api Backend, artifact *domain.ImportArtifact, outcome *domain.RunOutcome) {
	logger := p.logger.With("run_id", outcome.ID, "target", outcome.Target)
	outcome.Artifact = artifact.Info()

	submitter := NewSubmitter(api, p.opts.Inspect, logger)
	result, err := submitter.Submit(ctx, artifact, p.opts.TargetParams)
	if result.StatusCode != 0 {
		outcome.Submission = &result
	}
	if err != nil {
		logger.Error("import submission failed", "error", err)
		outcome.Record(domain.StageSubmit, err, true)
		return
	}

	list := p.listFunc(api, outcome.StartedAt)

	poller := NewPoller(p.opts.Poll, p.clock, logger)
	_, convergence, err := poller.AwaitConvergence(ctx, list)
	outcome.Convergence = &convergence
	if err != nil {
		switch {
		case apperrors.Is(err, apperrors.ErrCodeCanceled):
			outcome.Record(domain.StagePoll, err, true)
			return
		case p.opts.AbortOnConvergenceTimeout:
			outcome.Record(domain.StagePoll, err, true)
			logger.Error("aborting: convergence not confirmed")
			return
		default:
			outcome.Record(domain.StagePoll, err, false)
			logger.Warn("continuing without confirmed convergence")
		}
	}

	paginator := NewPaginator(p.opts.Pages, logger)
	enum, err := paginator.EnumerateAll(ctx, list)
	outcome.Pagination = &enum.Report
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeCanceled) {
			outcome.Record(domain.StagePaginate, err, true)
			return
		}
		outcome.Record(domain.StagePaginate, err, false)
	}

	ids := ExtractIDs(enum.Pages, p.opts.Eligible)
	outcome.EligibleIDs = ids.Sorted()
	outcome.UnknownStatusCount = CountUnknownStatuses(enum.Pages, p.opts.Known)
	if outcome.UnknownStatusCount > 0 {
		logger.Warn("records with unknown status", "count", outcome.UnknownStatusCount)
	}
	logger.Info("eligible orders", "count", len(ids), "records", enum.Report.RecordsSeen)

	confirmer := NewConfirmer(api, p.opts.ConfirmChunkSize, p.opts.Inspect, logger)
	report, err := confirmer.Confirm(ctx, ids)
	outcome.Confirmation = report
	if err != nil {
		outcome.Record(domain.StageConfirm, err, true)
	}
}

func (p *Pipeline) listFunc(api Backend, startedAt time.Time) ListFunc {
	var since time.Time
	if p.opts.Lookback > 0 {
		since = startedAt.Add(-p.opts.Lookback)
	}
	var statuses []domain.Status
	if len(p.opts.FilterStatuses) > 0 {
		statuses = p.opts.FilterStatuses.Slice()
	}
	return func(ctx context.Context, page, size int) (*domain.Page, error) {
		return api.ListOrders(ctx, domain.ListQuery{
			Page:     page,
			Size:     size,
			Statuses: statuses,
			Since:    since,
		})
	}
}
