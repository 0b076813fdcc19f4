package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
	apperrors "github.com/kurihiro0119/order-import-sync/internal/errors"
	"github.com/kurihiro0119/order-import-sync/internal/storage"
)

// sqliteStorage implements the Storage interface for SQLite
type sqliteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (storage.Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &sqliteStorage{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate runs database migrations
func (s *sqliteStorage) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		verdict TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		artifact_name TEXT NOT NULL DEFAULT '',
		artifact_checksum TEXT NOT NULL DEFAULT '',
		submission_status INTEGER NOT NULL DEFAULT 0,
		submitted INTEGER NOT NULL DEFAULT 0,
		eligible INTEGER NOT NULL DEFAULT 0,
		confirmed INTEGER NOT NULL DEFAULT 0,
		data TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target_started ON runs(target, started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_target_submitted ON runs(target, submitted);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveRun saves a finished run, replacing any earlier row with the same id
func (s *sqliteStorage) SaveRun(ctx context.Context, outcome *domain.RunOutcome) error {
	dataJSON, err := json.Marshal(outcome)
	if err != nil {
		return err
	}

	summary := outcome.Summary()
	submitted := 0
	if outcome.Submitted() {
		submitted = 1
	}

	query := `
		INSERT OR REPLACE INTO runs (id, target, verdict, started_at, finished_at, artifact_name,
			artifact_checksum, submission_status, submitted, eligible, confirmed, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		summary.ID,
		summary.Target,
		string(summary.Verdict),
		summary.StartedAt.UTC(),
		summary.FinishedAt.UTC(),
		summary.ArtifactName,
		summary.ArtifactChecksum,
		summary.SubmissionStatus,
		submitted,
		summary.Eligible,
		summary.Confirmed,
		string(dataJSON),
	)
	return err
}

// GetRun retrieves a single run by id
func (s *sqliteStorage) GetRun(ctx context.Context, id string) (*domain.RunOutcome, error) {
	var dataStr string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM runs WHERE id = ?`, id).Scan(&dataStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("run " + id)
	}
	if err != nil {
		return nil, err
	}
	return decodeOutcome(dataStr)
}

// ListRuns retrieves runs, newest first
func (s *sqliteStorage) ListRuns(ctx context.Context, target string, timeRange domain.TimeRange, limit int) ([]*domain.RunOutcome, error) {
	var where []string
	var args []interface{}
	if target != "" {
		where = append(where, "target = ?")
		args = append(args, target)
	}
	if !timeRange.Start.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, timeRange.Start.UTC())
	}
	if !timeRange.End.IsZero() {
		where = append(where, "started_at <= ?")
		args = append(args, timeRange.End.UTC())
	}

	query := `SELECT data FROM runs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*domain.RunOutcome{}
	for rows.Next() {
		var dataStr string
		if err := rows.Scan(&dataStr); err != nil {
			return nil, err
		}
		outcome, err := decodeOutcome(dataStr)
		if err != nil {
			return nil, err
		}
		runs = append(runs, outcome)
	}

	return runs, rows.Err()
}

// LastSubmittedArtifact returns the artifact of the newest accepted import for target
func (s *sqliteStorage) LastSubmittedArtifact(ctx context.Context, target string) (*domain.ArtifactInfo, error) {
	var dataStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM runs
		WHERE target = ? AND submitted = 1
		ORDER BY started_at DESC
		LIMIT 1
	`, target).Scan(&dataStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	outcome, err := decodeOutcome(dataStr)
	if err != nil {
		return nil, err
	}
	return outcome.Artifact, nil
}

func decodeOutcome(data string) (*domain.RunOutcome, error) {
	var outcome domain.RunOutcome
	if err := json.Unmarshal([]byte(data), &outcome); err != nil {
		return nil, apperrors.NewInternalError("corrupt run record", err)
	}
	return &outcome, nil
}

// Close closes the database connection
func (s *sqliteStorage) Close() error {
	return s.db.Close()
}
