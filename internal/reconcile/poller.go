package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// PollerConfig bounds the convergence wait
type PollerConfig struct {
	MaxAttempts int
	Interval    time.Duration
	PageSize    int
}

// Poller waits until the backend's visible record count stops changing
type Poller struct {
	cfg    PollerConfig
	clock  Clock
	logger *slog.Logger
}

// NewPoller creates a convergence poller
func NewPoller(cfg PollerConfig, clock Clock, logger *slog.Logger) *Poller {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Poller{cfg: cfg, clock: clock, logger: logger}
}

// AwaitConvergence lists page 1 up to MaxAttempts times. Two consecutive
// successful observations of the same non-zero count mean convergence.
// On exhaustion it returns the last snapshot seen with a CONVERGENCE_TIMEOUT error.
func (p *Poller) AwaitConvergence(ctx context.Context, list ListFunc) (*domain.Page, domain.ConvergenceReport, error) {
	report := domain.ConvergenceReport{Observations: []int{}}

	var last *domain.Page
	prev, havePrev := 0, false

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.clock.Sleep(ctx, p.cfg.Interval); err != nil {
				return last, report, canceled(err)
			}
		}
		report.Attempts = attempt

		page, err := list(ctx, 1, p.cfg.PageSize)
		if err != nil {
			if ctx.Err() != nil {
				return last, report, canceled(ctx.Err())
			}
			p.logger.Warn("convergence poll failed", "attempt", attempt, "error", err)
			report.Observations = append(report.Observations, -1)
			havePrev = false
			continue
		}

		count := page.Count()
		report.Observations = append(report.Observations, count)
		last = page
		p.logger.Debug("convergence poll", "attempt", attempt, "count", count)

		if havePrev && count == prev && count > 0 {
			report.Converged = true
			report.StableCount = count
			p.logger.Info("record count converged", "count", count, "attempts", attempt)
			return page, report, nil
		}
		prev, havePrev = count, true
	}

	p.logger.Warn("record count did not converge", "attempts", report.Attempts, "observations", report.Observations)
	return last, report, apperrors.NewConvergenceTimeoutError(report.Attempts)
}
