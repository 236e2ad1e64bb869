package api

import (
	"vidsurvey/internal/deps"
	"vidsurvey/internal/store"
	"vidsurvey/internal/survey"
)

// AnalysisView is the body of GET /api/submissions/{id}/analysis. Analysis is
// null until a run produced one.
type AnalysisView struct {
	Submission *store.Submission `json:"submission"`
	Analysis   *store.Analysis   `json:"analysis"`
	Runs       []store.Run       `json:"runs,omitempty"`
}

// StatusView is the body of GET /api/status.
type StatusView struct {
	Version      string        `json:"version"`
	Database     string        `json:"database"`
	Dependencies []deps.Status `json:"dependencies"`
}

// SubmissionList is the body of GET /api/submissions.
type SubmissionList struct {
	Submissions []*store.Submission `json:"submissions"`
}

// QuestionnaireList is the body of GET /api/questionnaires.
type QuestionnaireList struct {
	Questionnaires []survey.Questionnaire `json:"questionnaires"`
}

// ClipList is the body of GET /api/submissions/{id}/clips.
type ClipList struct {
	Clips []store.Clip `json:"clips"`
}

// ErrorBody is returned with every non-2xx response.
type ErrorBody struct {
	Error        string `json:"error"`
	TotalScore   *int   `json:"totalScore,omitempty"`
	SubmissionID string `json:"submissionId,omitempty"`
}

// Multipart field names of the submission and staging requests.
const (
	FieldSessionID = "sessionId"
	FieldAnswers   = "answers"
	FieldVersion   = "questionnaireVersion"
)
