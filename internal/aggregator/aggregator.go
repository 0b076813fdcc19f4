package aggregator

import (
	"context"
	"sort"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
	"github.com/kurihiro0119/order-import-sync/internal/storage"
)

// Aggregator defines the interface for aggregating run history
type Aggregator interface {
	// TargetStats aggregates the runs of one target
	TargetStats(ctx context.Context, target string, timeRange domain.TimeRange) (*domain.TargetStats, error)

	// AllTargets aggregates the runs of every target, ordered by target name
	AllTargets(ctx context.Context, timeRange domain.TimeRange) ([]*domain.TargetStats, error)
}

// aggregator implements the Aggregator interface
type aggregator struct {
	storage storage.Storage
}

// NewAggregator creates a new aggregator
func NewAggregator(storage storage.Storage) Aggregator {
	return &aggregator{
		storage: storage,
	}
}

// TargetStats aggregates the runs of one target
func (a *aggregator) TargetStats(ctx context.Context, target string, timeRange domain.TimeRange) (*domain.TargetStats, error) {
	if target == "" {
		return nil, apperrors.NewBadRequestError("target is required")
	}

	runs, err := a.storage.ListRuns(ctx, target, timeRange, 0)
	if err != nil {
		return nil, err
	}

	stats := newStats(target)
	for _, run := range runs {
		addRun(stats, run)
	}
	return stats, nil
}

// AllTargets aggregates the runs of every target
func (a *aggregator) AllTargets(ctx context.Context, timeRange domain.TimeRange) ([]*domain.TargetStats, error) {
	runs, err := a.storage.ListRuns(ctx, "", timeRange, 0)
	if err != nil {
		return nil, err
	}

	byTarget := make(map[string]*domain.TargetStats)
	for _, run := range runs {
		stats, ok := byTarget[run.Target]
		if !ok {
			stats = newStats(run.Target)
			byTarget[run.Target] = stats
		}
		addRun(stats, run)
	}

	result := make([]*domain.TargetStats, 0, len(byTarget))
	for _, stats := range byTarget {
		result = append(result, stats)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Target < result[j].Target })
	return result, nil
}

func newStats(target string) *domain.TargetStats {
	return &domain.TargetStats{
		Target:    target,
		ByVerdict: make(map[domain.Verdict]int),
	}
}

// addRun folds one run into stats; runs arrive newest first
func addRun(stats *domain.TargetStats, run *domain.RunOutcome) {
	stats.Runs++
	stats.ByVerdict[run.Verdict]++

	if run.Has(apperrors.ErrCodeConvergenceTimeout) {
		stats.ConvergenceTimeouts++
	}
	if run.Has(apperrors.ErrCodeEmptyPageShortfall) ||
		run.Has(apperrors.ErrCodeListPageUnreachable) ||
		run.Has(apperrors.ErrCodeRunawayPaginationGuard) {
		stats.PaginationShortfalls++
	}
	if run.Has(apperrors.ErrCodeConfirmationFailed) {
		stats.ConfirmationFailures++
	}

	stats.Eligible += len(run.EligibleIDs)
	stats.Confirmed += run.Confirmation.Confirmed

	if stats.LastRun == nil || run.StartedAt.After(stats.LastRun.StartedAt) {
		stats.LastRun = run.Summary()
	}
}
