package storage

import (
	"context"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
)

// Storage is the abstract interface for the run ledger
type Storage interface {
	// Run operations
	SaveRun(ctx context.Context, outcome *domain.RunOutcome) error
	GetRun(ctx context.Context, id string) (*domain.RunOutcome, error)

	// ListRuns returns runs newest first. An empty target matches every
	// target and limit <= 0 means no limit.
	ListRuns(ctx context.Context, target string, timeRange domain.TimeRange, limit int) ([]*domain.RunOutcome, error)

	// LastSubmittedArtifact returns the artifact of the newest run whose import
	// the backend accepted, or nil when there is none
	LastSubmittedArtifact(ctx context.Context, target string) (*domain.ArtifactInfo, error)

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}
