package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/widgetpilot/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleRun() *schemas.RunReport {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	r := &schemas.RunReport{
		RunID:      "run-1",
		Tool:       "widgetpilot",
		Version:    "v0.3.0",
		Driver:     "cdp",
		TargetURL:  "https://dev.3snet.info/eventswidget/",
		StartedAt:  start,
		FinishedAt: start.Add(10 * time.Second),
		Results: []schemas.ScenarioResult{
			{Name: "page-loads", Description: "page loads", Status: schemas.StatusPassed, StartedAt: start, DurationMS: 800, Tries: 1},
			{
				Name: "copy-code", Description: "copy", Status: schemas.StatusFailed, StartedAt: start, DurationMS: 4000, Tries: 2,
				FailureKind: "verification_timeout", Error: "copy generated code: verification timed out",
				Attempts: []schemas.AttemptRecord{{Strategy: "click copy button", Action: "click", Outcome: "succeeded", Matches: 1}},
				Artifact: `<iframe src="x"></iframe>`,
			},
		},
	}
	r.Summarize()
	return r
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.EnsureSchema(context.Background()))

	mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS runs").WillReturnError(errors.New("permission denied"))
	err := s.EnsureSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist the run and its results without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))
		report := sampleRun()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).
			WithArgs("run-1", "widgetpilot", "v0.3.0", "cdp", report.TargetURL,
				report.StartedAt, report.FinishedAt, 2, 1, 1, 0).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"scenario_results"}, resultColumns).WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(ctx, report))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Zero(t, observedLogs.Len(), "a closed transaction must not be logged as a rollback failure")
	})

	t.Run("should roll back when the run insert fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).WillReturnError(errors.New("duplicate key"))
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, sampleRun())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert run run-1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should fail on a short copy", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(insertRunSQL)).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"scenario_results"}, resultColumns).WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.SaveRun(ctx, sampleRun())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch in copied results count")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should propagate begin errors", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		beginErr := errors.New("connection reset")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err := s.SaveRun(ctx, sampleRun())
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRecentRuns(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"run_id", "tool", "version", "driver", "target_url", "started_at", "finished_at", "total", "passed", "failed", "skipped"}).
		AddRow("run-2", "widgetpilot", "v0.3.0", "playwright", "https://dev.3snet.info/eventswidget/", start.Add(time.Hour), start.Add(time.Hour+time.Minute), 13, 13, 0, 0).
		AddRow("run-1", "widgetpilot", "v0.3.0", "cdp", "https://dev.3snet.info/eventswidget/", start, start.Add(time.Minute), 13, 11, 1, 1)
	mockPool.ExpectQuery("FROM runs").WithArgs(5).WillReturnRows(rows)

	runs, err := s.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.True(t, runs[0].OK())
	assert.Equal(t, schemas.Summary{Total: 13, Passed: 11, Failed: 1, Skipped: 1}, runs[1].Summary)
	assert.Equal(t, time.Minute, runs[1].Duration())
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestResultsByRun(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	cols := []string{"name", "description", "status", "started_at", "duration_ms", "tries", "failure_kind", "error", "assertions", "attempts", "artifact", "degraded", "notes"}

	t.Run("decodes attempts", func(t *testing.T) {
		rows := pgxmock.NewRows(cols).
			AddRow("copy-code", "copy", "failed", start, int64(4000), 2, "verification_timeout", "timed out",
				[]string{}, []byte(`[{"strategy":"click copy button","action":"click","outcome":"succeeded","matches":1,"duration_ms":12}]`),
				"<iframe></iframe>", true, []string{"clipboard unavailable"})
		mockPool.ExpectQuery("FROM scenario_results").WithArgs("run-1").WillReturnRows(rows)

		results, err := s.ResultsByRun(context.Background(), "run-1")
		require.NoError(t, err)
		require.Len(t, results, 1)
		r := results[0]
		assert.Equal(t, schemas.StatusFailed, r.Status)
		assert.Equal(t, 2, r.Tries)
		assert.True(t, r.Degraded)
		assert.Equal(t, []string{"clipboard unavailable"}, r.Notes)
		require.Len(t, r.Attempts, 1)
		assert.Equal(t, schemas.AttemptRecord{Strategy: "click copy button", Action: "click", Outcome: "succeeded", Matches: 1, DurationMS: 12}, r.Attempts[0])
	})

	t.Run("rejects corrupt attempts", func(t *testing.T) {
		rows := pgxmock.NewRows(cols).
			AddRow("copy-code", "copy", "failed", start, int64(4000), 1, "", "", []string{}, []byte(`{not json`), "", false, []string{})
		mockPool.ExpectQuery("FROM scenario_results").WithArgs("run-2").WillReturnRows(rows)

		_, err := s.ResultsByRun(context.Background(), "run-2")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode attempts")
	})

	t.Run("query error", func(t *testing.T) {
		mockPool.ExpectQuery("FROM scenario_results").WithArgs("run-3").WillReturnError(errors.New("boom"))
		_, err := s.ResultsByRun(context.Background(), "run-3")
		assert.ErrorContains(t, err, "failed to query scenario results")
	})

	assert.NoError(t, mockPool.ExpectationsWereMet())
}
