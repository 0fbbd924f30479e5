package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists run history in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id      TEXT PRIMARY KEY,
    tool        TEXT NOT NULL,
    version     TEXT NOT NULL,
    driver      TEXT NOT NULL,
    target_url  TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    total       INTEGER NOT NULL,
    passed      INTEGER NOT NULL,
    failed      INTEGER NOT NULL,
    skipped     INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS scenario_results (
    run_id       TEXT NOT NULL REFERENCES runs (run_id) ON DELETE CASCADE,
    name         TEXT NOT NULL,
    description  TEXT NOT NULL,
    status       TEXT NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL,
    duration_ms  BIGINT NOT NULL,
    tries        INTEGER NOT NULL,
    failure_kind TEXT NOT NULL,
    error        TEXT NOT NULL,
    assertions   TEXT[] NOT NULL,
    attempts     JSONB NOT NULL,
    artifact     TEXT NOT NULL,
    degraded     BOOLEAN NOT NULL,
    notes        TEXT[] NOT NULL,
    PRIMARY KEY (run_id, name)
);
CREATE INDEX IF NOT EXISTS runs_started_at_idx ON runs (started_at DESC);
`

// EnsureSchema creates the history tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

var resultColumns = []string{
	"run_id", "name", "description", "status", "started_at", "duration_ms", "tries",
	"failure_kind", "error", "assertions", "attempts", "artifact", "degraded", "notes",
}

const insertRunSQL = `
    INSERT INTO runs (run_id, tool, version, driver, target_url, started_at, finished_at, total, passed, failed, skipped)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`

// SaveRun stores a run and all of its scenario results in one transaction.
func (s *Store) SaveRun(ctx context.Context, report *schemas.RunReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	_, err = tx.Exec(ctx, insertRunSQL,
		report.RunID, report.Tool, report.Version, report.Driver, report.TargetURL,
		report.StartedAt.UTC(), report.FinishedAt.UTC(),
		report.Summary.Total, report.Summary.Passed, report.Summary.Failed, report.Summary.Skipped,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", report.RunID, err)
	}

	if len(report.Results) > 0 {
		if err := s.persistResults(ctx, tx, report.RunID, report.Results); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run persisted.", zap.String("run_id", report.RunID), zap.Int("results", len(report.Results)))
	return nil
}

func (s *Store) persistResults(ctx context.Context, tx pgx.Tx, runID string, results []schemas.ScenarioResult) error {
	rows := make([][]interface{}, len(results))
	for i, r := range results {
		attempts := r.Attempts
		if attempts == nil {
			attempts = []schemas.AttemptRecord{}
		}
		encoded, err := json.Marshal(attempts)
		if err != nil {
			return fmt.Errorf("failed to encode attempts for %s: %w", r.Name, err)
		}
		rows[i] = []interface{}{
			runID, r.Name, r.Description, string(r.Status), r.StartedAt.UTC(), r.DurationMS, r.Tries,
			r.FailureKind, r.Error, nonNil(r.Assertions), encoded, r.Artifact, r.Degraded, nonNil(r.Notes),
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"scenario_results"}, resultColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy scenario results: %w", err)
	}
	if int(copyCount) != len(results) {
		return fmt.Errorf("mismatch in copied results count: expected %d, got %d", len(results), copyCount)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// RecentRuns returns up to limit runs, newest first, without their results.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]schemas.RunReport, error) {
	query := `
        SELECT run_id, tool, version, driver, target_url, started_at, finished_at, total, passed, failed, skipped
        FROM runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []schemas.RunReport
	for rows.Next() {
		var r schemas.RunReport
		if err := rows.Scan(
			&r.RunID, &r.Tool, &r.Version, &r.Driver, &r.TargetURL, &r.StartedAt, &r.FinishedAt,
			&r.Summary.Total, &r.Summary.Passed, &r.Summary.Failed, &r.Summary.Skipped,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// ResultsByRun returns the scenario results stored for runID.
func (s *Store) ResultsByRun(ctx context.Context, runID string) ([]schemas.ScenarioResult, error) {
	query := `
        SELECT name, description, status, started_at, duration_ms, tries, failure_kind, error, assertions, attempts, artifact, degraded, notes
        FROM scenario_results
        WHERE run_id = $1
        ORDER BY started_at ASC, name ASC;
    `
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenario results: %w", err)
	}
	defer rows.Close()

	var results []schemas.ScenarioResult
	for rows.Next() {
		var (
			r         schemas.ScenarioResult
			statusStr string
			startedAt time.Time
			attempts  []byte
		)
		if err := rows.Scan(
			&r.Name, &r.Description, &statusStr, &startedAt, &r.DurationMS, &r.Tries,
			&r.FailureKind, &r.Error, &r.Assertions, &attempts, &r.Artifact, &r.Degraded, &r.Notes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scenario result row: %w", err)
		}
		if len(attempts) > 0 {
			if err := json.Unmarshal(attempts, &r.Attempts); err != nil {
				return nil, fmt.Errorf("failed to decode attempts for %s: %w", r.Name, err)
			}
		}
		r.Status = schemas.Status(statusStr)
		r.StartedAt = startedAt
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return results, nil
}
