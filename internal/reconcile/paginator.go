package reconcile

import (
	"context"
	"log/slog"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// Pagination stop reasons
const (
	StopLastPage    = "last_page"
	StopEmptyPage   = "empty_page"
	StopUnreachable = "unreachable"
	StopSafetyCap   = "safety_cap"
	StopCanceled    = "canceled"
)

// PaginatorConfig bounds the full-set walk
type PaginatorConfig struct {
	PageSize  int
	SafetyCap int
}

// Enumeration is the result of a full-set walk
type Enumeration struct {
	Pages  []domain.Page
	Report domain.PaginationReport
}

// Records flattens the pages, keeping the first occurrence of each id
func (e *Enumeration) Records() []domain.Record {
	seen := domain.NewIDSet()
	var out []domain.Record
	for _, page := range e.Pages {
		for _, rec := range page.Records {
			if seen.Contains(rec.ID) {
				continue
			}
			seen.Add(rec.ID)
			out = append(out, rec)
		}
	}
	return out
}

// Paginator walks the listing endpoint from page 1 to the declared end
type Paginator struct {
	cfg    PaginatorConfig
	logger *slog.Logger
}

// NewPaginator creates a paginator
func NewPaginator(cfg PaginatorConfig, logger *slog.Logger) *Paginator {
	if cfg.SafetyCap < 1 {
		cfg.SafetyCap = 1
	}
	return &Paginator{cfg: cfg, logger: logger}
}

// EnumerateAll requests pages in order until one of, by priority: a page
// fails, a page is empty, the total page count read from page 1 is reached,
// or the safety cap is reached. The enumeration is always returned; a non-nil
// error describes why it may be incomplete.
func (p *Paginator) EnumerateAll(ctx context.Context, list ListFunc) (*Enumeration, error) {
	enum := &Enumeration{}
	rep := &enum.Report

	for page := 1; ; page++ {
		result, err := list(ctx, page, p.cfg.PageSize)
		rep.PagesRequested = page
		if err != nil {
			if ctx.Err() != nil {
				rep.StopReason = StopCanceled
				return enum, canceled(ctx.Err())
			}
			rep.StopReason = StopUnreachable
			p.logger.Warn("page unreachable, using partial set", "page", page, "records", rep.RecordsSeen, "error", err)
			return enum, apperrors.NewListPageUnreachableError(page, err)
		}

		if page == 1 {
			rep.DeclaredTotalPages = declaredPages(result, p.cfg.PageSize)
		}

		if len(result.Records) == 0 {
			rep.StopReason = StopEmptyPage
			if page > 1 && page <= rep.DeclaredTotalPages {
				p.logger.Warn("empty page before declared end", "page", page, "declared", rep.DeclaredTotalPages)
				return enum, apperrors.NewEmptyPageShortfallError(page, rep.DeclaredTotalPages)
			}
			rep.Complete = true
			return enum, nil
		}

		enum.Pages = append(enum.Pages, *result)
		rep.RecordsSeen += len(result.Records)

		if rep.DeclaredTotalPages > 0 && page >= rep.DeclaredTotalPages {
			rep.StopReason = StopLastPage
			rep.Complete = true
			p.logger.Info("pagination complete", "pages", page, "records", rep.RecordsSeen)
			return enum, nil
		}

		if page >= p.cfg.SafetyCap {
			rep.StopReason = StopSafetyCap
			p.logger.Warn("pagination safety cap reached", "cap", p.cfg.SafetyCap, "declared", rep.DeclaredTotalPages)
			return enum, apperrors.NewRunawayPaginationError(p.cfg.SafetyCap, rep.DeclaredTotalPages)
		}
	}
}

// declaredPages prefers the server's page count and falls back to total/size; 0 means unknown
func declaredPages(page *domain.Page, size int) int {
	if page.TotalPages > 0 {
		return page.TotalPages
	}
	if page.Total > 0 && size > 0 {
		return (page.Total + size - 1) / size
	}
	return 0
}
