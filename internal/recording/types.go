package recording

import (
	"context"
	"errors"
)

// Stage is the controller's top-level state.
type Stage string

const (
	StageIntro      Stage = "INTRO"
	StageConsent    Stage = "CONSENT"
	StageQuiz       Stage = "QUIZ"
	StageReview     Stage = "REVIEW"
	StageSubmitting Stage = "SUBMITTING"
	StageDone       Stage = "DONE"
	StageFailed     Stage = "FAILED"
)

// CaptureState is the per-item recording sub-state.
type CaptureState string

const (
	CaptureIdle      CaptureState = "IDLE"
	CaptureRecording CaptureState = "RECORDING"
	CapturePaused    CaptureState = "PAUSED"
	CaptureStopped   CaptureState = "STOPPED"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in the current stage.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrCaptureActive is returned when a capture is already open.
	ErrCaptureActive = errors.New("capture already active")
	// ErrNoCapture is returned when no capture is open.
	ErrNoCapture = errors.New("no active capture")
	// ErrClipExists is returned when the item already has a kept clip.
	ErrClipExists = errors.New("clip already recorded")
	// ErrConsentRequired is returned when consent is declined.
	ErrConsentRequired = errors.New("consent required")
)

// ChunkSink receives encoded media chunks in order.
type ChunkSink func(chunk []byte)

// Device opens capture streams.
type Device interface {
	Open(ctx context.Context, ordinal int) (Stream, error)
}

// Stream is an open device stream. Close releases the device.
type Stream interface {
	NewRecorder(ordinal int, sink ChunkSink) (Recorder, error)
	Close() error
}

// Recorder encodes a stream into chunks. Stop returns once the final chunk
// has been delivered to the sink.
type Recorder interface {
	Start() error
	Pause() error
	Resume() error
	Stop() error
	MimeType() string
}

// Finisher is implemented by recorders whose source can end on its own.
type Finisher interface {
	Done() <-chan struct{}
}

// Clip is a finished recording for one item.
type Clip struct {
	Ordinal  int
	Ext      string
	MimeType string
	Data     []byte
}

// AnswerOut is one entry of the dense answers array sent on submit.
type AnswerOut struct {
	QuestionID  string `json:"questionId"`
	OptionIndex int    `json:"optionIndex"`
}

// Package is the atomic submission handed to an Uploader.
type Package struct {
	QuestionnaireID string
	SessionID       string
	Answers         []AnswerOut
	Clips           []Clip
}

// Result is the orchestrator's answer to a successful upload.
type Result struct {
	SubmissionID      string  `json:"submissionId"`
	TotalScore        int     `json:"totalScore"`
	AnalysisAvailable bool    `json:"analysisAvailable"`
	AdjustedTotal     float64 `json:"adjustedTotal"`
	ResultLocation    string  `json:"resultLocation"`
}

// Uploader sends a package. progress receives the upload percentage.
type Uploader interface {
	Upload(ctx context.Context, pkg Package, progress func(percent int)) (Result, error)
}

// Phase names the two halves of a submit.
type Phase string

const (
	PhaseUploading  Phase = "uploading"
	PhaseProcessing Phase = "processing"
)

// Progress is reported while submitting. Percent is meaningful only while
// uploading; processing is indeterminate.
type Progress struct {
	Phase   Phase
	Percent int
}
