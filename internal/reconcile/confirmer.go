package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// Confirmer issues the batch confirmation for eligible orders
type Confirmer struct {
	api       ConfirmAPI
	chunkSize int
	inspect   BodyInspector
	logger    *slog.Logger
}

// NewConfirmer creates a confirmer. chunkSize 0 sends every id in a single request.
func NewConfirmer(api ConfirmAPI, chunkSize int, inspect BodyInspector, logger *slog.Logger) *Confirmer {
	if chunkSize < 0 {
		chunkSize = 0
	}
	return &Confirmer{api: api, chunkSize: chunkSize, inspect: inspect, logger: logger}
}

// Confirm sends the ids in sorted order, one chunk per request, without retries.
// An empty set issues no request. The first failing chunk ends the step; chunks
// already accepted stay confirmed. Cancellation is reported as CANCELED.
func (c *Confirmer) Confirm(ctx context.Context, ids domain.IDSet) (domain.ConfirmationReport, error) {
	report := domain.ConfirmationReport{Requested: len(ids)}
	if len(ids) == 0 {
		report.State = domain.ConfirmationNothingToConfirm
		c.logger.Info("nothing to confirm")
		return report, nil
	}

	chunks := chunk(ids.Sorted(), c.chunkSize)
	for i, batch := range chunks {
		if err := ctx.Err(); err != nil {
			return c.fail(report, canceled(err))
		}
		result, err := c.api.ConfirmOrders(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return c.fail(report, canceled(ctx.Err()))
			}
			return c.fail(report, apperrors.NewConfirmationFailedError(
				fmt.Sprintf("confirmation request %d/%d failed", i+1, len(chunks)), err))
		}
		report.Batches = append(report.Batches, result)

		if !result.IsSuccess() {
			return c.fail(report, apperrors.NewConfirmationFailedError(
				fmt.Sprintf("confirmation %d/%d returned status %d", i+1, len(chunks), result.StatusCode), nil))
		}
		if c.inspect != nil {
			if err := c.inspect(result.RawBody); err != nil {
				return c.fail(report, apperrors.NewConfirmationFailedError(
					fmt.Sprintf("confirmation %d/%d rejected by backend", i+1, len(chunks)), err))
			}
		}

		report.Confirmed += len(batch)
		c.logger.Info("confirmation batch accepted", "batch", i+1, "of", len(chunks), "ids", len(batch))
	}

	report.State = domain.ConfirmationConfirmed
	return report, nil
}

func (c *Confirmer) fail(report domain.ConfirmationReport, err error) (domain.ConfirmationReport, error) {
	if report.Confirmed > 0 {
		report.State = domain.ConfirmationPartial
	} else {
		report.State = domain.ConfirmationFailed
	}
	c.logger.Error("confirmation failed", "confirmed", report.Confirmed, "requested", report.Requested, "error", err)
	return report, err
}

func chunk(ids []domain.RecordID, size int) [][]domain.RecordID {
	if size <= 0 || len(ids) <= size {
		return [][]domain.RecordID{ids}
	}
	var out [][]domain.RecordID
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
