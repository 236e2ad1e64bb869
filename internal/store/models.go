package store

import (
	"time"

	"vidsurvey/internal/inference"
	"vidsurvey/internal/survey"
)

// RunState is a persisted orchestrator state.
type RunState string

const (
	StateReceived         RunState = "RECEIVED"
	StateAnswersPersisted RunState = "ANSWERS_PERSISTED"
	StateTranscoding      RunState = "TRANSCODING"
	StateInferring        RunState = "INFERRING"
	StateInferenceSkipped RunState = "INFERENCE_SKIPPED"
	StateFusing           RunState = "FUSING"
	StateNoAnalysis       RunState = "NO_ANALYSIS"
	StateComplete         RunState = "COMPLETE"
	StateFailed           RunState = "FAILED"
)

// RunKind distinguishes first submissions from re-runs.
type RunKind string

const (
	RunSubmit    RunKind = "submit"
	RunReanalyze RunKind = "reanalyze"
)

// Terminal reports whether no further transitions are expected.
func (s RunState) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Submission is a stored questionnaire response.
type Submission struct {
	ID                   string          `json:"id"`
	QuestionnaireID      string          `json:"questionnaireId"`
	QuestionnaireVersion string          `json:"questionnaireVersion"`
	SessionID            string          `json:"sessionId,omitempty"`
	Answers              []survey.Answer `json:"answers"`
	TotalScore           int             `json:"totalScore"`
	CreatedAt            time.Time       `json:"createdAt"`
}

// Scores returns the raw per-item scores in ordinal order.
func (s Submission) Scores() []int {
	return survey.Scores(s.Answers)
}

// Clip indexes a raw clip kept in the clip store for a submission.
type Clip struct {
	SubmissionID string    `json:"submissionId"`
	Ordinal      int       `json:"ordinal"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	SHA256       string    `json:"sha256,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Analysis is one fusion result for a submission. Rows are never updated.
type Analysis struct {
	ID               int64                   `json:"id"`
	SubmissionID     string                  `json:"submissionId"`
	AlgorithmVersion string                  `json:"algorithmVersion"`
	NeedsAdjustment  bool                    `json:"needsAdjustment"`
	Agreement        *float64                `json:"agreementStatistic"`
	PValue           *float64                `json:"pValue,omitempty"`
	Subjective       []float64               `json:"normSubjectiveScores"`
	Objective        []*float64              `json:"normObjectiveScores"`
	Adjusted         []float64               `json:"adjustedScores"`
	Alphas           []float64               `json:"alphas"`
	SubjectiveTotal  float64                 `json:"subjectiveTotal"`
	ObjectiveTotal   float64                 `json:"objectiveTotal"`
	AdjustedTotal    float64                 `json:"adjustedTotal"`
	VideoResults     []inference.VideoResult `json:"videoResults,omitempty"`
	CreatedAt        time.Time               `json:"createdAt"`
}

// analysisPayload is the JSON column holding per-item vectors.
type analysisPayload struct {
	Subjective   []float64               `json:"subjective"`
	Objective    []*float64              `json:"objective"`
	Adjusted     []float64               `json:"adjusted"`
	Alphas       []float64               `json:"alphas"`
	VideoResults []inference.VideoResult `json:"videoResults,omitempty"`
}

// Run records one pass of the orchestrator over a submission.
type Run struct {
	ID           int64     `json:"id"`
	SubmissionID string    `json:"submissionId"`
	Kind         RunKind   `json:"kind"`
	State        RunState  `json:"state"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	ClipFailures int       `json:"clipFailures"`
	AnalysisID   int64     `json:"analysisId,omitempty"`
	StartedAt    time.Time `json:"startedAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	FinishedAt   time.Time `json:"finishedAt,omitzero"`
}
