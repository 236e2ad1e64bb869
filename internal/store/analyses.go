package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"vidsurvey/internal/services"
)

const analysisColumns = "id, submission_id, algorithm_version, needs_adjustment, agreement, p_value, subjective_total, objective_total, adjusted_total, payload_json, created_at"

// CreateAnalysis appends an analysis for a submission and, when runID is
// non-zero, links it to that run. Both writes share a transaction.
func (s *Store) CreateAnalysis(ctx context.Context, a *Analysis, runID int64) error {
	if a == nil || a.SubmissionID == "" {
		return services.Wrap(services.ErrValidation, "store", "create analysis", "submission id required", nil)
	}
	n := len(a.Subjective)
	if len(a.Objective) != n || len(a.Adjusted) != n || len(a.Alphas) != n {
		return services.Wrap(services.ErrValidation, "store", "create analysis",
			fmt.Sprintf("vector lengths differ (subjective %d, objective %d, adjusted %d, alphas %d)",
				n, len(a.Objective), len(a.Adjusted), len(a.Alphas)), nil)
	}
	for _, v := range []*float64{a.Agreement, a.PValue} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return services.Wrap(services.ErrValidation, "store", "create analysis", "non-finite statistic", nil)
		}
	}
	payload, err := json.Marshal(analysisPayload{
		Subjective:   a.Subjective,
		Objective:    a.Objective,
		Adjusted:     a.Adjusted,
		Alphas:       a.Alphas,
		VideoResults: a.VideoResults,
	})
	if err != nil {
		return services.Wrap(services.ErrValidation, "store", "create analysis", "encode payload", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO analyses (
                submission_id, algorithm_version, needs_adjustment, agreement, p_value,
                subjective_total, objective_total, adjusted_total, payload_json, created_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.SubmissionID,
			a.AlgorithmVersion,
			boolToInt(a.NeedsAdjustment),
			nullableFloat(a.Agreement),
			nullableFloat(a.PValue),
			a.SubjectiveTotal,
			a.ObjectiveTotal,
			a.AdjustedTotal,
			string(payload),
			formatTime(a.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert analysis: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		a.ID = id
		if runID == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE submission_runs SET analysis_id = ?, updated_at = ? WHERE id = ?`,
			id, formatTime(time.Now()), runID,
		); err != nil {
			return fmt.Errorf("link run: %w", err)
		}
		return nil
	})
	if err != nil {
		a.ID = 0
		return persistence("create analysis", err)
	}
	return nil
}

// LatestAnalysis returns the most recent analysis of a submission, or nil
// when none was ever produced.
func (s *Store) LatestAnalysis(ctx context.Context, submissionID string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE submission_id = ? ORDER BY id DESC LIMIT 1`,
		submissionID)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistence("latest analysis", err)
	}
	return a, nil
}

// ListAnalyses returns every analysis of a submission, oldest first.
func (s *Store) ListAnalyses(ctx context.Context, submissionID string) ([]*Analysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+analysisColumns+` FROM analyses WHERE submission_id = ? ORDER BY id`, submissionID)
	if err != nil {
		return nil, persistence("list analyses", err)
	}
	defer rows.Close()

	var out []*Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, persistence("scan analysis", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list analyses", err)
	}
	return out, nil
}

func scanAnalysis(scanner interface{ Scan(dest ...any) error }) (*Analysis, error) {
	var (
		a         Analysis
		needs     int
		agreement sql.NullFloat64
		pValue    sql.NullFloat64
		payload   string
		created   sql.NullString
	)
	if err := scanner.Scan(
		&a.ID,
		&a.SubmissionID,
		&a.AlgorithmVersion,
		&needs,
		&agreement,
		&pValue,
		&a.SubjectiveTotal,
		&a.ObjectiveTotal,
		&a.AdjustedTotal,
		&payload,
		&created,
	); err != nil {
		return nil, err
	}
	var p analysisPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("decode analysis %d: %w", a.ID, err)
	}
	a.NeedsAdjustment = needs != 0
	a.Agreement = floatPtr(agreement)
	a.PValue = floatPtr(pValue)
	a.Subjective = p.Subjective
	a.Objective = p.Objective
	a.Adjusted = p.Adjusted
	a.Alphas = p.Alphas
	a.VideoResults = p.VideoResults
	a.CreatedAt = parseTime(created)
	return &a, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
