package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vidsurvey/internal/services"
	"vidsurvey/internal/survey"
)

const submissionColumns = "id, questionnaire_id, questionnaire_version, session_id, answers_json, total_score, created_at"

// DefaultListLimit bounds ListSubmissions when the caller passes no limit.
const DefaultListLimit = 20

// CreateSubmission stores the answers, the clip index and the opening run of
// a submission in one transaction. An empty ID is assigned a new uuid. The
// returned run is in the ANSWERS_PERSISTED state.
func (s *Store) CreateSubmission(ctx context.Context, sub *Submission, clips []Clip) (Run, error) {
	if sub == nil {
		return Run{}, services.Wrap(services.ErrValidation, "store", "create submission", "submission required", nil)
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if len(sub.Answers) == 0 {
		return Run{}, services.Wrap(services.ErrValidation, "store", "create submission", "answers required", nil)
	}
	total := 0
	for _, a := range sub.Answers {
		if a.Score < 0 || a.Score > survey.ItemScale {
			return Run{}, services.Wrap(services.ErrValidation, "store", "create submission",
				fmt.Sprintf("answer %q score %d out of range", a.QuestionID, a.Score), nil)
		}
		total += a.Score
	}
	if total != sub.TotalScore {
		return Run{}, services.Wrap(services.ErrValidation, "store", "create submission",
			fmt.Sprintf("total score %d does not match answers (%d)", sub.TotalScore, total), nil)
	}
	answersJSON, err := json.Marshal(sub.Answers)
	if err != nil {
		return Run{}, fmt.Errorf("marshal answers: %w", err)
	}

	now := formatTime(time.Now())
	run := Run{SubmissionID: sub.ID, Kind: RunSubmit, State: StateAnswersPersisted}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO submissions (`+submissionColumns+`, item_count) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sub.ID,
			sub.QuestionnaireID,
			sub.QuestionnaireVersion,
			nullableString(sub.SessionID),
			string(answersJSON),
			sub.TotalScore,
			formatTime(sub.CreatedAt),
			len(sub.Answers),
		); err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		for _, clip := range clips {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO clips (submission_id, ordinal, name, size_bytes, sha256, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
				sub.ID, clip.Ordinal, clip.Name, clip.Size, nullableString(clip.SHA256), now,
			); err != nil {
				return fmt.Errorf("insert clip %d: %w", clip.Ordinal, err)
			}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO submission_runs (submission_id, kind, state, started_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			sub.ID, run.Kind, run.State, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		run.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return Run{}, persistence("create submission", err)
	}
	run.StartedAt = parseTime(sql.NullString{String: now, Valid: true})
	run.UpdatedAt = run.StartedAt
	return run, nil
}

// GetSubmission loads a submission by id.
func (s *Store) GetSubmission(ctx context.Context, id string) (*Submission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("submission", id)
	}
	if err != nil {
		return nil, persistence("get submission", err)
	}
	return sub, nil
}

// ListSubmissions returns the most recent submissions first.
func (s *Store) ListSubmissions(ctx context.Context, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, persistence("list submissions", err)
	}
	defer rows.Close()

	var out []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, persistence("scan submission", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list submissions", err)
	}
	return out, nil
}

// ListClips returns the clip index of a submission in ordinal order.
func (s *Store) ListClips(ctx context.Context, submissionID string) ([]Clip, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT submission_id, ordinal, name, size_bytes, sha256, created_at FROM clips
         WHERE submission_id = ? ORDER BY ordinal`, submissionID)
	if err != nil {
		return nil, persistence("list clips", err)
	}
	defer rows.Close()

	var out []Clip
	for rows.Next() {
		var (
			clip    Clip
			sum     sql.NullString
			created sql.NullString
		)
		if err := rows.Scan(&clip.SubmissionID, &clip.Ordinal, &clip.Name, &clip.Size, &sum, &created); err != nil {
			return nil, persistence("scan clip", err)
		}
		clip.SHA256 = sum.String
		clip.CreatedAt = parseTime(created)
		out = append(out, clip)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list clips", err)
	}
	return out, nil
}

func scanSubmission(scanner interface{ Scan(dest ...any) error }) (*Submission, error) {
	var (
		sub         Submission
		sessionID   sql.NullString
		answersJSON string
		created     sql.NullString
	)
	if err := scanner.Scan(
		&sub.ID,
		&sub.QuestionnaireID,
		&sub.QuestionnaireVersion,
		&sessionID,
		&answersJSON,
		&sub.TotalScore,
		&created,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(answersJSON), &sub.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of %s: %w", sub.ID, err)
	}
	sub.SessionID = sessionID.String
	sub.CreatedAt = parseTime(created)
	return &sub, nil
}
