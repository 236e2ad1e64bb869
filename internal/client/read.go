package client

import (
	"context"
	"net/http"
	"strconv"

	"vidsurvey/internal/api"
	"vidsurvey/internal/pipeline"
	"vidsurvey/internal/store"
	"vidsurvey/internal/survey"
)

// Submission fetches a stored submission.
func (c *Client) Submission(ctx context.Context, id string) (*store.Submission, error) {
	var sub store.Submission
	if err := c.getJSON(ctx, &sub, "submissions", id); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Analysis fetches a submission with its latest analysis, which may be nil.
func (c *Client) Analysis(ctx context.Context, id string) (api.AnalysisView, error) {
	var view api.AnalysisView
	err := c.getJSON(ctx, &view, "submissions", id, "analysis")
	return view, err
}

// Submissions lists the most recent submissions, newest first. A limit of
// zero uses the daemon default.
func (c *Client) Submissions(ctx context.Context, limit int) ([]*store.Submission, error) {
	endpoint := c.endpoint("submissions")
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var out api.SubmissionList
	err := c.read(ctx, endpoint, &out)
	return out.Submissions, err
}

// Questionnaires lists every stored questionnaire version.
func (c *Client) Questionnaires(ctx context.Context) ([]survey.Questionnaire, error) {
	var out api.QuestionnaireList
	err := c.getJSON(ctx, &out, "questionnaires")
	return out.Questionnaires, err
}

// Questionnaire fetches the latest version of a questionnaire.
func (c *Client) Questionnaire(ctx context.Context, id string) (survey.Questionnaire, error) {
	var q survey.Questionnaire
	err := c.getJSON(ctx, &q, "questionnaires", id)
	return q, err
}

// Reanalyze asks the daemon to re-run the media pipeline for a submission.
func (c *Client) Reanalyze(ctx context.Context, id string) (pipeline.Response, error) {
	var resp pipeline.Response
	req, err := c.newRequest(ctx, http.MethodPost, c.endpoint("submissions", id, "reanalyze"), nil)
	if err != nil {
		return resp, err
	}
	err = c.do(req, &resp)
	return resp, err
}

// Status fetches the daemon dependency report.
func (c *Client) Status(ctx context.Context) (api.StatusView, error) {
	var view api.StatusView
	err := c.getJSON(ctx, &view, "status")
	return view, err
}
