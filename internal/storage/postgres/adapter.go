package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
	"github.com/kurihiro0119/order-import-sync/internal/storage"
)

// postgresStorage implements the Storage interface for PostgreSQL
type postgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL storage instance
func NewPostgresStorage(connStr string) (storage.Storage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &postgresStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *postgresStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		verdict TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		artifact_name TEXT NOT NULL DEFAULT '',
		artifact_checksum TEXT NOT NULL DEFAULT '',
		submission_status INTEGER NOT NULL DEFAULT 0,
		submitted BOOLEAN NOT NULL DEFAULT FALSE,
		eligible INTEGER NOT NULL DEFAULT 0,
		confirmed INTEGER NOT NULL DEFAULT 0,
		data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target_started ON runs(target, started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_target_submitted ON runs(target, submitted);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun saves a finished run, replacing any earlier row with the same id
func (s *postgresStorage) SaveRun(ctx context.Context, outcome *domain.RunOutcome) error {
	dataJSON, err := json.Marshal(outcome)
	if err != nil {
		return err
	}

	summary := outcome.Summary()
	query := `
		INSERT INTO runs (id, target, verdict, started_at, finished_at, artifact_name,
			artifact_checksum, submission_status, submitted, eligible, confirmed, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			verdict = EXCLUDED.verdict,
			finished_at = EXCLUDED.finished_at,
			submission_status = EXCLUDED.submission_status,
			submitted = EXCLUDED.submitted,
			eligible = EXCLUDED.eligible,
			confirmed = EXCLUDED.confirmed,
			data = EXCLUDED.data
	`
	_, err = s.db.ExecContext(ctx, query,
		summary.ID,
		summary.Target,
		string(summary.Verdict),
		summary.StartedAt,
		summary.FinishedAt,
		summary.ArtifactName,
		summary.ArtifactChecksum,
		summary.SubmissionStatus,
		outcome.Submitted(),
		summary.Eligible,
		summary.Confirmed,
		string(dataJSON),
	)
	return err
}

// GetRun retrieves a single run by id
func (s *postgresStorage) GetRun(ctx context.Context, id string) (*domain.RunOutcome, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM runs WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("run " + id)
	}
	if err != nil {
		return nil, err
	}
	return decodeOutcome(data)
}

// ListRuns retrieves runs, newest first
func (s *postgresStorage) ListRuns(ctx context.Context, target string, timeRange domain.TimeRange, limit int) ([]*domain.RunOutcome, error) {
	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if target != "" {
		where = append(where, "target = "+arg(target))
	}
	if !timeRange.Start.IsZero() {
		where = append(where, "started_at >= "+arg(timeRange.Start))
	}
	if !timeRange.End.IsZero() {
		where = append(where, "started_at <= "+arg(timeRange.End))
	}

	query := `SELECT data FROM runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ` + arg(limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*domain.RunOutcome{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		outcome, err := decodeOutcome(data)
		if err != nil {
			return nil, err
		}
		runs = append(runs, outcome)
	}

	return runs, rows.Err()
}

// LastSubmittedArtifact returns the artifact of the newest accepted import for target
func (s *postgresStorage) LastSubmittedArtifact(ctx context.Context, target string) (*domain.ArtifactInfo, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM runs
		WHERE target = $1 AND submitted
		ORDER BY started_at DESC
		LIMIT 1
	`, target).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	outcome, err := decodeOutcome(data)
	if err != nil {
		return nil, err
	}
	return outcome.Artifact, nil
}

func decodeOutcome(data []byte) (*domain.RunOutcome, error) {
	var outcome domain.RunOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, apperrors.NewInternalError("corrupt run record", err)
	}
	return &outcome, nil
}

// Close closes the database connection
func (s *postgresStorage) Close() error {
	return s.db.Close()
}
