package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
)

// CredentialProvider supplies the bearer credential for a run
type CredentialProvider interface {
	Credential(ctx context.Context) (domain.Credential, error)
}

// ArtifactSource supplies the newest report file
type ArtifactSource interface {
	Latest(ctx context.Context) (*domain.ImportArtifact, error)
}

// Ledger remembers which artifact was last submitted per target
type Ledger interface {
	LastSubmittedArtifact(ctx context.Context, target string) (*domain.ArtifactInfo, error)
}

// Reporter receives the finished outcome of a run
type Reporter interface {
	Report(ctx context.Context, outcome *domain.RunOutcome) error
}

// Connector builds a backend client bound to a credential
type Connector func(cred domain.Credential) Backend

// Runner wires the external collaborators around the pipeline for a single invocation
type Runner struct {
	Target      string
	Credentials CredentialProvider
	Artifacts   ArtifactSource
	Ledger      Ledger // optional
	Connect     Connector
	Pipeline    *Pipeline
	Reporter    Reporter // optional
	Clock       Clock
	Logger      *slog.Logger

	// Force submits even when the artifact matches the last submitted one
	Force bool
}

// Run executes one pipeline run and always returns a finished outcome
func (r *Runner) Run(ctx context.Context) *domain.RunOutcome {
	clock := r.Clock
	if clock == nil {
		clock = RealClock()
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	outcome := domain.NewRunOutcome(uuid.NewString(), r.Target, clock.Now())
	logger = logger.With("run_id", outcome.ID, "target", r.Target)
	logger.Info("run started")

	r.execute(ctx, outcome, logger)

	outcome.Finish(clock.Now())
	logger.Info("run finished",
		"verdict", outcome.Verdict,
		"eligible", len(outcome.EligibleIDs),
		"confirmed", outcome.Confirmation.Confirmed,
		"conditions", len(outcome.Conditions),
	)

	if r.Reporter != nil {
		if err := r.Reporter.Report(ctx, outcome); err != nil {
			logger.Error("failed to report outcome", "error", err)
		}
	}
	return outcome
}

func (r *Runner) execute(ctx context.Context, outcome *domain.RunOutcome, logger *slog.Logger) {
	cred, err := r.Credentials.Credential(ctx)
	if err != nil {
		if apperrors.CodeOf(err) == "" {
			err = apperrors.NewAuthUnavailableError("credential provider failed", err)
		}
		logger.Error("no credential", "error", err)
		outcome.Record(domain.StageCredential, err, true)
		return
	}

	artifact, err := r.Artifacts.Latest(ctx)
	if err != nil {
		if apperrors.IsNoArtifact(err) {
			logger.Info("nothing to import", "reason", err)
			outcome.Record(domain.StageArtifact, err, false)
			return
		}
		logger.Error("artifact acquisition failed", "error", err)
		outcome.Record(domain.StageArtifact, err, true)
		return
	}
	outcome.Artifact = artifact.Info()

	if r.Ledger != nil {
		last, err := r.Ledger.LastSubmittedArtifact(ctx, r.Target)
		if err != nil {
			logger.Error("cannot check run ledger", "error", err)
			outcome.Record(domain.StageArtifact, apperrors.NewInternalError("run ledger unavailable", err), true)
			return
		}
		if last != nil && last.Checksum == artifact.Checksum {
			if !r.Force {
				outcome.Record(domain.StageArtifact, apperrors.NewNoArtifactError(
					fmt.Sprintf("%s was already submitted (checksum %.12s)", artifact.Name, artifact.Checksum)), false)
				logger.Info("artifact already submitted, skipping", "artifact", artifact.Name)
				return
			}
			logger.Warn("resubmitting an already submitted artifact", "artifact", artifact.Name)
		}
	}

	r.Pipeline.Execute(ctx, r.Connect(cred), artifact, outcome)
}
