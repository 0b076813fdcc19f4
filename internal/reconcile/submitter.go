package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// Submitter performs the one-shot import upload
type Submitter struct {
	api     ImportAPI
	inspect BodyInspector
	logger  *slog.Logger
}

// NewSubmitter creates a submitter; inspect may be nil to judge by HTTP status only
func NewSubmitter(api ImportAPI, inspect BodyInspector, logger *slog.Logger) *Submitter {
	return &Submitter{api: api, inspect: inspect, logger: logger}
}

// Submit uploads the artifact exactly once. The result is returned even on
// failure so the raw body stays available for diagnostics.
func (s *Submitter) Submit(ctx context.Context, artifact *domain.ImportArtifact, params map[string]string) (domain.SubmissionResult, error) {
	s.logger.Info("submitting import", "artifact", artifact.Name, "bytes", len(artifact.Content))

	result, err := s.api.SubmitImport(ctx, artifact, params)
	if err != nil {
		return result, apperrors.NewSubmissionFailedError("import request failed", err)
	}
	if !result.IsSuccess() {
		return result, apperrors.NewSubmissionFailedError(fmt.Sprintf("import returned status %d", result.StatusCode), nil)
	}
	if s.inspect != nil {
		if err := s.inspect(result.RawBody); err != nil {
			return result, apperrors.NewSubmissionFailedError("import rejected by backend", err)
		}
	}

	s.logger.Info("import accepted", "status", result.StatusCode)
	return result, nil
}
