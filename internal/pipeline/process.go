package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"vidsurvey/internal/fusion"
	"vidsurvey/internal/logging"
	"vidsurvey/internal/notifications"
	"vidsurvey/internal/services"
	"vidsurvey/internal/store"
	"vidsurvey/internal/survey"
	"vidsurvey/internal/transcode"
)

// process runs TRANSCODING through COMPLETE for a persisted submission.
// Store writes use a context detached from cancellation so a run is always
// closed even when the caller goes away mid-pipeline.
func (o *Orchestrator) process(ctx context.Context, sub *store.Submission, run store.Run, clips []store.Clip, resp Response) (Response, error) {
	logger := logging.WithContext(ctx, o.logger)
	started := time.Now()
	dir := o.runDir(sub.ID, run.ID)
	defer o.cleanup(ctx, dir)

	if err := o.transition(ctx, &resp, store.StateTranscoding); err != nil {
		return resp, err
	}
	stageCtx := services.WithStage(ctx, "transcoding")
	raw := make([]transcode.RawClip, 0, len(clips))
	names := make(map[int]string, len(clips))
	for _, clip := range clips {
		names[clip.Ordinal] = clip.Name
		path, err := o.clips.Path(SubmissionOwner(sub.ID), clip.Name)
		if err != nil {
			resp.ClipFailures = append(resp.ClipFailures, ClipFailure{Ordinal: clip.Ordinal, Name: clip.Name, Error: err.Error()})
			continue
		}
		raw = append(raw, transcode.RawClip{Ordinal: clip.Ordinal, Path: path})
	}
	outcomes := o.transcoder.TranscodeAll(stageCtx, raw, filepath.Join(dir, "transcoded"))
	for _, failed := range transcode.Failures(outcomes) {
		resp.ClipFailures = append(resp.ClipFailures, ClipFailure{
			Ordinal: failed.Ordinal,
			Name:    names[failed.Ordinal],
			Error:   errorText(failed.Err),
		})
	}
	transcoded := transcode.Successful(outcomes)
	logger.Info("transcoding resolved",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("clip_count", len(clips)),
		logging.Int("transcoded", len(transcoded)),
		logging.Int("clip_failures", len(resp.ClipFailures)),
	)

	if len(transcoded) == 0 {
		if err := o.transition(ctx, &resp, store.StateInferenceSkipped); err != nil {
			return resp, err
		}
		return o.noAnalysis(ctx, &resp, "", started)
	}

	if err := o.transition(ctx, &resp, store.StateInferring); err != nil {
		return resp, err
	}
	scores := sub.Scores()
	out, err := o.analyzer.Run(services.WithStage(ctx, "inferring"), filepath.Join(dir, "engine"), transcoded, scores)
	if err != nil {
		logging.WarnWithContext(logger, "inference failed", "inference_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, inferenceHint(err)),
			logging.String(logging.FieldImpact, "submission stored without analysis"),
		)
		return o.noAnalysis(ctx, &resp, errorText(err), started)
	}

	if err := o.transition(ctx, &resp, store.StateFusing); err != nil {
		return resp, err
	}
	subjective := make([]float64, len(scores))
	for i, score := range scores {
		if i < len(out.Subjective) && out.Subjective[i] != nil {
			subjective[i] = *out.Subjective[i]
			continue
		}
		subjective[i] = survey.Normalize(score)
	}
	result := fusion.Fuse(fusion.Input{Subjective: subjective, Objective: out.Objective, Agreement: out.Agreement})
	analysis := &store.Analysis{
		SubmissionID:     sub.ID,
		AlgorithmVersion: result.Version,
		NeedsAdjustment:  result.NeedsAdjustment,
		Agreement:        finiteOrNil(out.Agreement),
		PValue:           finiteOrNil(out.PValue),
		Subjective:       result.Subjective,
		Objective:        out.Objective,
		Adjusted:         result.Adjusted,
		Alphas:           result.Alphas,
		SubjectiveTotal:  result.SubjectiveTotal,
		ObjectiveTotal:   result.ObjectiveTotal,
		AdjustedTotal:    result.AdjustedTotal,
		VideoResults:     out.VideoResults,
	}
	persistCtx := context.WithoutCancel(ctx)
	if err := o.store.CreateAnalysis(persistCtx, analysis, resp.RunID); err != nil {
		logging.ErrorWithContext(logger, "analysis not persisted", "persistence_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "answers kept, analysis lost"),
		)
		o.finish(ctx, &resp, store.StateFailed, errorText(err))
		return resp, err
	}

	resp.AnalysisAvailable = true
	resp.AdjustedTotal = result.AdjustedTotal
	resp.EmotionResults = out.VideoResults
	if err := o.finish(ctx, &resp, store.StateComplete, ""); err != nil {
		return resp, err
	}
	logger.Info("submission complete",
		logging.String(logging.FieldEventType, "submission_complete"),
		logging.Bool("analysis_available", true),
		logging.Bool("needs_adjustment", result.NeedsAdjustment),
		logging.Float64("adjusted_total", result.AdjustedTotal),
		logging.Int64("analysis_id", analysis.ID),
		logging.Duration("elapsed", time.Since(started)),
	)
	return resp, nil
}

func (o *Orchestrator) noAnalysis(ctx context.Context, resp *Response, inferenceErr string, started time.Time) (Response, error) {
	resp.InferenceError = inferenceErr
	resp.AnalysisAvailable = false
	resp.AdjustedTotal = float64(resp.TotalScore)
	if err := o.transition(ctx, resp, store.StateNoAnalysis); err != nil {
		return *resp, err
	}
	if err := o.finish(ctx, resp, store.StateComplete, inferenceErr); err != nil {
		return *resp, err
	}
	logging.WithContext(ctx, o.logger).Info("submission complete",
		logging.String(logging.FieldEventType, "submission_complete"),
		logging.Bool("analysis_available", false),
		logging.Int("total_score", resp.TotalScore),
		logging.Duration("elapsed", time.Since(started)),
	)
	return *resp, nil
}

func (o *Orchestrator) transition(ctx context.Context, resp *Response, state store.RunState) error {
	if err := o.store.SetRunState(context.WithoutCancel(ctx), resp.RunID, state); err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "run transition not persisted", "persistence_failed",
			logging.Error(err),
			logging.String("next_state", string(state)),
		)
		o.finish(ctx, resp, store.StateFailed, errorText(err))
		return err
	}
	resp.State = state
	o.logger.Debug("run transition",
		logging.String(logging.FieldSubmissionID, resp.SubmissionID),
		logging.Int64("run_id", resp.RunID),
		logging.String("state", string(state)),
	)
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, resp *Response, state store.RunState, message string) error {
	err := o.store.FinishRun(context.WithoutCancel(ctx), resp.RunID, state, message, len(resp.ClipFailures))
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "run result not persisted", "persistence_failed",
			logging.Error(err),
			logging.String("final_state", string(state)),
		)
		return err
	}
	resp.State = state
	o.notify(ctx, resp, message)
	return nil
}

// notify publishes the outcome of a closed run. Plain submissions without
// clips complete silently.
func (o *Orchestrator) notify(ctx context.Context, resp *Response, message string) {
	if o.notifier == nil {
		return
	}
	payload := notifications.Payload{
		SubmissionID:  resp.SubmissionID,
		TotalScore:    resp.TotalScore,
		AdjustedTotal: resp.AdjustedTotal,
		Reason:        message,
	}
	var event notifications.Event
	switch {
	case resp.State == store.StateFailed:
		event = notifications.EventRunFailed
	case resp.AnalysisAvailable:
		event = notifications.EventAnalysisCompleted
	case message != "":
		event = notifications.EventAnalysisSkipped
	case len(resp.ClipFailures) > 0:
		event = notifications.EventAnalysisSkipped
		payload.Reason = fmt.Sprintf("%d clip(s) failed to transcode", len(resp.ClipFailures))
	default:
		return
	}
	if err := o.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "notification not delivered", "notification_failed",
			logging.Error(err),
			logging.String("event", string(event)),
			logging.String(logging.FieldImpact, "run outcome unaffected"),
		)
	}
}

func inferenceHint(err error) string {
	switch {
	case errors.Is(err, services.ErrInferenceTimeout):
		return "raise inference.timeout_seconds or check the engine for hangs"
	case errors.Is(err, services.ErrInferenceMalformed):
		return "engine must print one JSON object with both score arrays"
	case errors.Is(err, services.ErrConfiguration):
		return "check the [inference] section of the config"
	default:
		return "inspect the engine stderr in the debug log"
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}
