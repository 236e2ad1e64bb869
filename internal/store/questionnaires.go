package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vidsurvey/internal/services"
	"vidsurvey/internal/survey"
)

// PutQuestionnaire publishes a questionnaire version. Re-publishing identical
// content is a no-op; changing the items of a published version is a conflict.
func (s *Store) PutQuestionnaire(ctx context.Context, q survey.Questionnaire) (survey.Questionnaire, error) {
	if q.ID == "" || q.Version == "" {
		return survey.Questionnaire{}, services.Wrap(services.ErrValidation, "store", "put questionnaire", "id and version required", nil)
	}
	if err := q.Validate(); err != nil {
		return survey.Questionnaire{}, services.Wrap(services.ErrValidation, "store", "put questionnaire", "", err)
	}
	itemsJSON, err := json.Marshal(q.Items)
	if err != nil {
		return survey.Questionnaire{}, fmt.Errorf("marshal items: %w", err)
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	var stored survey.Questionnaire
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanQuestionnaire(tx.QueryRowContext(ctx,
			`SELECT id, version, title, items_json, created_at FROM questionnaires WHERE id = ? AND version = ?`,
			q.ID, q.Version))
		switch {
		case err == nil:
			prev, _ := json.Marshal(existing.Items)
			if string(prev) != string(itemsJSON) || existing.Title != q.Title {
				return services.Wrap(services.ErrConflict, "store", "put questionnaire",
					fmt.Sprintf("%s version %s is already published", q.ID, q.Version), nil)
			}
			stored = existing
			return nil
		case errors.Is(err, sql.ErrNoRows):
		default:
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questionnaires (id, version, title, items_json, created_at) VALUES (?, ?, ?, ?, ?)`,
			q.ID, q.Version, q.Title, string(itemsJSON), formatTime(q.CreatedAt),
		); err != nil {
			return err
		}
		stored = q
		return nil
	})
	if err != nil {
		if errors.Is(err, services.ErrConflict) {
			return survey.Questionnaire{}, err
		}
		return survey.Questionnaire{}, persistence("put questionnaire", err)
	}
	return stored, nil
}

// GetQuestionnaire loads a questionnaire. An empty version selects the most
// recently published one.
func (s *Store) GetQuestionnaire(ctx context.Context, id, version string) (survey.Questionnaire, error) {
	var row *sql.Row
	if version == "" {
		row = s.db.QueryRowContext(ctx,
			`SELECT id, version, title, items_json, created_at FROM questionnaires
             WHERE id = ? ORDER BY created_at DESC, version DESC LIMIT 1`, id)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT id, version, title, items_json, created_at FROM questionnaires
             WHERE id = ? AND version = ?`, id, version)
	}
	q, err := scanQuestionnaire(row)
	if errors.Is(err, sql.ErrNoRows) {
		label := id
		if version != "" {
			label = id + "@" + version
		}
		return survey.Questionnaire{}, notFound("questionnaire", label)
	}
	if err != nil {
		return survey.Questionnaire{}, persistence("get questionnaire", err)
	}
	return q, nil
}

// ListQuestionnaires returns every published version ordered by id and date.
func (s *Store) ListQuestionnaires(ctx context.Context) ([]survey.Questionnaire, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, version, title, items_json, created_at FROM questionnaires ORDER BY id, created_at`)
	if err != nil {
		return nil, persistence("list questionnaires", err)
	}
	defer rows.Close()

	var out []survey.Questionnaire
	for rows.Next() {
		q, err := scanQuestionnaire(rows)
		if err != nil {
			return nil, persistence("scan questionnaire", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list questionnaires", err)
	}
	return out, nil
}

func scanQuestionnaire(scanner interface{ Scan(dest ...any) error }) (survey.Questionnaire, error) {
	var (
		q         survey.Questionnaire
		itemsJSON string
		created   sql.NullString
	)
	if err := scanner.Scan(&q.ID, &q.Version, &q.Title, &itemsJSON, &created); err != nil {
		return survey.Questionnaire{}, err
	}
	if err := json.Unmarshal([]byte(itemsJSON), &q.Items); err != nil {
		return survey.Questionnaire{}, fmt.Errorf("decode items of %s: %w", q.ID, err)
	}
	for i := range q.Items {
		q.Items[i].Ordinal = i
	}
	q.CreatedAt = parseTime(created)
	return q, nil
}
