package pipeline

import (
	"context"
	"fmt"
	"io"

	"vidsurvey/internal/inference"
	"vidsurvey/internal/store"
	"vidsurvey/internal/survey"
	"vidsurvey/internal/transcode"
)

// Transcoder converts raw clips to the engine's input format.
type Transcoder interface {
	TranscodeAll(ctx context.Context, clips []transcode.RawClip, outDir string) []transcode.Outcome
}

// Analyzer runs the inference stage for one submission.
type Analyzer interface {
	Run(ctx context.Context, workDir string, clips map[int]string, scores []int) (inference.Output, error)
}

// ClipUpload is one raw clip carried by a submission request.
type ClipUpload struct {
	Ordinal  int
	Ext      string
	MimeHint string
	Body     io.Reader
}

// Request is a complete submission as received from a client. Answers are in
// ordinal order; Clips are sparse.
type Request struct {
	QuestionnaireID      string
	QuestionnaireVersion string
	SessionID            string
	Answers              []survey.AnswerInput
	Clips                []ClipUpload
}

// ClipFailure reports a clip that did not make it to inference.
type ClipFailure struct {
	Ordinal int    `json:"ordinal"`
	Name    string `json:"name"`
	Error   string `json:"error"`
}

// Response is returned for every submission that reached the store.
// AdjustedTotal equals TotalScore whenever AnalysisAvailable is false.
type Response struct {
	SubmissionID      string                  `json:"submissionId,omitempty"`
	TotalScore        int                     `json:"totalScore"`
	AnalysisAvailable bool                    `json:"analysisAvailable"`
	AdjustedTotal     float64                 `json:"adjustedTotal"`
	ResultLocation    string                  `json:"resultLocation,omitempty"`
	State             store.RunState          `json:"state,omitempty"`
	RunID             int64                   `json:"runId,omitempty"`
	InferenceError    string                  `json:"inferenceError,omitempty"`
	ClipFailures      []ClipFailure           `json:"clipFailures,omitempty"`
	EmotionResults    []inference.VideoResult `json:"emotionResults,omitempty"`
}

// ResultLocation is where the analysis of a submission can be read.
func ResultLocation(submissionID string) string {
	return fmt.Sprintf("/api/submissions/%s/analysis", submissionID)
}

// SubmissionOwner is the clip store owner holding a submission's raw clips.
func SubmissionOwner(submissionID string) string {
	return "submissions/" + submissionID
}

// SessionOwner is the clip store owner for clips staged before submission.
func SessionOwner(sessionID string) string {
	return "sessions/" + sessionID
}
