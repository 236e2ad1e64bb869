package access

import (
	"context"

	"vidsurvey/internal/api"
	"vidsurvey/internal/client"
	"vidsurvey/internal/store"
	"vidsurvey/internal/survey"
)

// Reader provides read operations regardless of daemon or direct store backing.
type Reader interface {
	Submissions(ctx context.Context, limit int) ([]*store.Submission, error)
	Analysis(ctx context.Context, submissionID string) (api.AnalysisView, error)
	Questionnaires(ctx context.Context) ([]survey.Questionnaire, error)
}

// NewClientReader returns a Reader backed by the daemon API.
func NewClientReader(c *client.Client) Reader {
	return &clientReader{client: c}
}

// NewStoreReader returns a Reader backed by direct DB access.
func NewStoreReader(st *store.Store) Reader {
	return &storeReader{store: st}
}

type clientReader struct {
	client *client.Client
}

func (r *clientReader) Submissions(ctx context.Context, limit int) ([]*store.Submission, error) {
	return r.client.Submissions(ctx, limit)
}

func (r *clientReader) Analysis(ctx context.Context, submissionID string) (api.AnalysisView, error) {
	return r.client.Analysis(ctx, submissionID)
}

func (r *clientReader) Questionnaires(ctx context.Context) ([]survey.Questionnaire, error) {
	return r.client.Questionnaires(ctx)
}

type storeReader struct {
	store *store.Store
}

func (r *storeReader) Submissions(ctx context.Context, limit int) ([]*store.Submission, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	return r.store.ListSubmissions(ctx, limit)
}

func (r *storeReader) Analysis(ctx context.Context, submissionID string) (api.AnalysisView, error) {
	sub, err := r.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return api.AnalysisView{}, err
	}
	analysis, err := r.store.LatestAnalysis(ctx, sub.ID)
	if err != nil {
		return api.AnalysisView{}, err
	}
	runs, err := r.store.ListRuns(ctx, sub.ID)
	if err != nil {
		return api.AnalysisView{}, err
	}
	return api.AnalysisView{Submission: sub, Analysis: analysis, Runs: runs}, nil
}

func (r *storeReader) Questionnaires(ctx context.Context) ([]survey.Questionnaire, error) {
	return r.store.ListQuestionnaires(ctx)
}
