package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vidsurvey/internal/services"
)

const runColumns = "id, submission_id, kind, state, error_message, clip_failures, analysis_id, started_at, updated_at, finished_at"

// StartRun opens a new run for an existing submission.
func (s *Store) StartRun(ctx context.Context, submissionID string, kind RunKind) (Run, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`INSERT INTO submission_runs (submission_id, kind, state, started_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		submissionID, kind, StateReceived, now, now,
	)
	if err != nil {
		return Run{}, persistence("start run", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Run{}, persistence("start run", err)
	}
	return s.GetRun(ctx, id)
}

// SetRunState records a transition. Terminal runs are not reopened.
func (s *Store) SetRunState(ctx context.Context, runID int64, state RunState) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE submission_runs SET state = ?, updated_at = ? WHERE id = ? AND finished_at IS NULL`,
		state, formatTime(time.Now()), runID,
	)
	if err != nil {
		return persistence("set run state", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrConflict, "store", "set run state",
			fmt.Sprintf("run %d is finished or missing", runID), nil)
	}
	return nil
}

// FinishRun closes a run with its terminal state and outcome details.
func (s *Store) FinishRun(ctx context.Context, runID int64, state RunState, errorMessage string, clipFailures int) error {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE submission_runs
         SET state = ?, error_message = ?, clip_failures = ?, updated_at = ?, finished_at = ?
         WHERE id = ? AND finished_at IS NULL`,
		state, nullableString(errorMessage), clipFailures, now, now, runID,
	)
	if err != nil {
		return persistence("finish run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return services.Wrap(services.ErrConflict, "store", "finish run",
			fmt.Sprintf("run %d is finished or missing", runID), nil)
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, runID int64) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM submission_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, notFound("run", fmt.Sprint(runID))
	}
	if err != nil {
		return Run{}, persistence("get run", err)
	}
	return run, nil
}

// ListRuns returns the runs of a submission, newest first.
func (s *Store) ListRuns(ctx context.Context, submissionID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM submission_runs WHERE submission_id = ? ORDER BY id DESC`, submissionID)
	if err != nil {
		return nil, persistence("list runs", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, persistence("scan run", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list runs", err)
	}
	return out, nil
}

// FailAbandonedRuns closes runs left open by a previous process, returning
// how many were closed.
func (s *Store) FailAbandonedRuns(ctx context.Context, reason string) (int64, error) {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE submission_runs SET state = ?, error_message = ?, updated_at = ?, finished_at = ?
         WHERE finished_at IS NULL`,
		StateFailed, nullableString(reason), now, now,
	)
	if err != nil {
		return 0, persistence("fail abandoned runs", err)
	}
	return res.RowsAffected()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (Run, error) {
	var (
		run        Run
		kind       string
		state      string
		errMsg     sql.NullString
		analysisID sql.NullInt64
		started    sql.NullString
		updated    sql.NullString
		finished   sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.SubmissionID,
		&kind,
		&state,
		&errMsg,
		&run.ClipFailures,
		&analysisID,
		&started,
		&updated,
		&finished,
	); err != nil {
		return Run{}, err
	}
	run.Kind = RunKind(kind)
	run.State = RunState(state)
	run.ErrorMessage = errMsg.String
	run.AnalysisID = analysisID.Int64
	run.StartedAt = parseTime(started)
	run.UpdatedAt = parseTime(updated)
	run.FinishedAt = parseTime(finished)
	return run, nil
}
