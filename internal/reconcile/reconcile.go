// Package reconcile submits an order import to an asynchronous backend, waits
// for the imported records to settle, walks the full listing and confirms the
// eligible orders in one idempotent action.
package reconcile

import (
	"context"
	"time"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// ImportAPI is the backend's import endpoint
type ImportAPI interface {
	SubmitImport(ctx context.Context, artifact *domain.ImportArtifact, params map[string]string) (domain.SubmissionResult, error)
}

// ConfirmAPI is the backend's batch confirmation endpoint
type ConfirmAPI interface {
	ConfirmOrders(ctx context.Context, ids []domain.RecordID) (domain.SubmissionResult, error)
}

// Backend is everything one run needs from the order backend
type Backend interface {
	ImportAPI
	ConfirmAPI
	ListOrders(ctx context.Context, q domain.ListQuery) (*domain.Page, error)
}

// ListFunc fetches one page of the order listing
type ListFunc func(ctx context.Context, page, size int) (*domain.Page, error)

// BodyInspector reports an application-level failure hidden in a 2xx body
type BodyInspector func(body string) error

// Clock supplies the current time and the poller's inter-attempt wait
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns a Clock backed by the wall clock
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func canceled(err error) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeCanceled, "run canceled", err)
}
