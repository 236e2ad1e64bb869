package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"vidsurvey/internal/clipstore"
	"vidsurvey/internal/config"
	"vidsurvey/internal/fileutil"
	"vidsurvey/internal/inference"
	"vidsurvey/internal/logging"
	"vidsurvey/internal/notifications"
	"vidsurvey/internal/services"
	"vidsurvey/internal/store"
	"vidsurvey/internal/survey"
	"vidsurvey/internal/transcode"
)

const defaultClipExt = "webm"

var extPattern = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

// Options wires the orchestrator's collaborators.
type Options struct {
	Store       *store.Store
	Clips       *clipstore.Store
	Transcoder  Transcoder
	Analyzer    Analyzer
	WorkDir     string
	KeepWorkDir bool
	MaxClips    int
	// Notifier receives run outcomes; nil disables notifications.
	Notifier notifications.Service
	Logger   *slog.Logger
}

// Orchestrator runs submissions through the pipeline. It is safe for
// concurrent use; each call owns its own working directory.
type Orchestrator struct {
	store       *store.Store
	clips       *clipstore.Store
	transcoder  Transcoder
	analyzer    Analyzer
	workDir     string
	keepWorkDir bool
	maxClips    int
	notifier    notifications.Service
	logger      *slog.Logger
}

// New validates options and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Store == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "store required", nil)
	case opts.Clips == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "clip store required", nil)
	case opts.Transcoder == nil || opts.Analyzer == nil:
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "transcoder and analyzer required", nil)
	case strings.TrimSpace(opts.WorkDir) == "":
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "work directory required", nil)
	}
	return &Orchestrator{
		store:       opts.Store,
		clips:       opts.Clips,
		transcoder:  opts.Transcoder,
		analyzer:    opts.Analyzer,
		workDir:     opts.WorkDir,
		keepWorkDir: opts.KeepWorkDir,
		maxClips:    opts.MaxClips,
		notifier:    opts.Notifier,
		logger:      logging.NewComponentLogger(opts.Logger, "pipeline"),
	}, nil
}

// NewFromConfig builds the production orchestrator: ffmpeg transcoding and
// the configured inference engine.
func NewFromConfig(cfg *config.Config, st *store.Store, clips *clipstore.Store, logger *slog.Logger) (*Orchestrator, error) {
	return New(Options{
		Store:       st,
		Clips:       clips,
		Transcoder:  transcode.New(cfg, logger),
		Analyzer:    inference.NewStage(inference.NewEngine(cfg, logger), logger),
		WorkDir:     cfg.Paths.WorkDir,
		KeepWorkDir: cfg.Inference.KeepWorkDir,
		MaxClips:    cfg.Upload.MaxClips,
		Notifier:    notifications.NewService(cfg),
		Logger:      logger,
	})
}

// Submit scores and persists a submission, then runs the media pipeline.
// When an error is returned before the answers are stored the response
// carries only the computed total score.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (Response, error) {
	q, err := o.store.GetQuestionnaire(ctx, req.QuestionnaireID, req.QuestionnaireVersion)
	if err != nil {
		return Response{}, err
	}
	answers, total := survey.Score(q, req.Answers)
	early := Response{TotalScore: total, AdjustedTotal: float64(total), State: store.StateReceived}

	if err := o.checkClips(req.Clips, len(q.Items)); err != nil {
		return early, err
	}
	if req.SessionID != "" && !validSessionID(req.SessionID) {
		return early, services.Wrap(services.ErrValidation, "pipeline", "receive", "invalid session id", nil)
	}

	id := uuid.NewString()
	ctx = services.WithSubmissionID(ctx, id)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("submission received",
		logging.String(logging.FieldEventType, "submission_received"),
		logging.String("questionnaire_id", q.ID),
		logging.String("questionnaire_version", q.Version),
		logging.Int("item_count", len(q.Items)),
		logging.Int("clip_count", len(req.Clips)),
		logging.Int("total_score", total),
	)

	owner := SubmissionOwner(id)
	clips, bound, err := o.receiveClips(ctx, owner, req, len(q.Items))
	if err != nil {
		o.discardClips(ctx, owner, req.SessionID, bound)
		logging.ErrorWithContext(logger, "submission upload failed", "upload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "client should resubmit the staged answers and clips"),
		)
		return early, err
	}

	sub := &store.Submission{
		ID:                   id,
		QuestionnaireID:      q.ID,
		QuestionnaireVersion: q.Version,
		SessionID:            req.SessionID,
		Answers:              answers,
		TotalScore:           total,
	}
	run, err := o.store.CreateSubmission(context.WithoutCancel(ctx), sub, clips)
	if err != nil {
		o.discardClips(ctx, owner, req.SessionID, bound)
		logging.ErrorWithContext(logger, "answers not persisted", "persistence_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "submission rejected, staged clips kept for the session"),
		)
		return early, err
	}
	if req.SessionID != "" {
		o.dropSession(ctx, req.SessionID)
	}

	resp := Response{
		SubmissionID:   id,
		TotalScore:     total,
		AdjustedTotal:  float64(total),
		ResultLocation: ResultLocation(id),
		State:          run.State,
		RunID:          run.ID,
	}
	return o.process(ctx, sub, run, clips, resp)
}

// Reanalyze re-runs transcoding, inference and fusion over the stored raw
// clips of a submission. A successful run appends a new analysis; earlier
// analyses are kept.
func (o *Orchestrator) Reanalyze(ctx context.Context, submissionID string) (Response, error) {
	sub, err := o.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return Response{}, err
	}
	ctx = services.WithSubmissionID(ctx, sub.ID)
	clips, err := o.store.ListClips(ctx, sub.ID)
	if err != nil {
		return Response{}, err
	}
	run, err := o.store.StartRun(context.WithoutCancel(ctx), sub.ID, store.RunReanalyze)
	if err != nil {
		return Response{}, err
	}
	resp := Response{
		SubmissionID:   sub.ID,
		TotalScore:     sub.TotalScore,
		AdjustedTotal:  float64(sub.TotalScore),
		ResultLocation: ResultLocation(sub.ID),
		State:          run.State,
		RunID:          run.ID,
	}
	logging.WithContext(ctx, o.logger).Info("reanalysis requested",
		logging.String(logging.FieldEventType, "reanalysis_start"),
		logging.Int64("run_id", run.ID),
		logging.Int("clip_count", len(clips)),
	)
	if err := o.transition(ctx, &resp, store.StateAnswersPersisted); err != nil {
		return resp, err
	}
	return o.process(ctx, sub, run, clips, resp)
}

// StageClip stores one clip under a session ahead of the submission that
// will bind it. A name already staged for the session is a conflict.
func (o *Orchestrator) StageClip(ctx context.Context, questionnaireID, sessionID string, clip ClipUpload) (store.Clip, error) {
	if !validSessionID(sessionID) {
		return store.Clip{}, services.Wrap(services.ErrValidation, "pipeline", "stage clip", "invalid session id", nil)
	}
	q, err := o.store.GetQuestionnaire(ctx, questionnaireID, "")
	if err != nil {
		return store.Clip{}, err
	}
	clips := []ClipUpload{clip}
	if err := o.checkClips(clips, len(q.Items)); err != nil {
		return store.Clip{}, err
	}
	clip = clips[0]
	name := survey.ClipName(clip.Ordinal, clip.Ext)
	blob, err := o.clips.Write(ctx, SessionOwner(sessionID), name, clip.Body)
	if err != nil {
		if errors.Is(err, clipstore.ErrExists) {
			return store.Clip{}, err
		}
		return store.Clip{}, services.Wrap(services.ErrUploadFailed, "pipeline", "stage clip", name, err)
	}
	o.logger.Debug("clip staged",
		logging.String("session_id", sessionID),
		logging.String("clip_name", name),
		logging.Int64("size_bytes", blob.Size),
	)
	return store.Clip{Ordinal: clip.Ordinal, Name: name, Size: blob.Size, SHA256: blob.SHA256, CreatedAt: blob.ModTime}, nil
}

func (o *Orchestrator) checkClips(clips []ClipUpload, items int) error {
	if o.maxClips > 0 && len(clips) > o.maxClips {
		return services.Wrap(services.ErrValidation, "pipeline", "receive",
			fmt.Sprintf("%d clips exceed the limit of %d", len(clips), o.maxClips), nil)
	}
	seen := make(map[int]struct{}, len(clips))
	for i := range clips {
		c := &clips[i]
		if c.Ordinal < 0 || c.Ordinal >= items {
			return services.Wrap(services.ErrValidation, "pipeline", "receive",
				fmt.Sprintf("clip for item %d outside %d items", c.Ordinal+1, items), nil)
		}
		if _, dup := seen[c.Ordinal]; dup {
			return services.Wrap(services.ErrValidation, "pipeline", "receive",
				fmt.Sprintf("duplicate clip for item %d", c.Ordinal+1), nil)
		}
		seen[c.Ordinal] = struct{}{}
		c.Ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Ext), "."))
		if c.Ext == "" {
			c.Ext = defaultClipExt
		}
		if !extPattern.MatchString(c.Ext) {
			return services.Wrap(services.ErrValidation, "pipeline", "receive",
				fmt.Sprintf("clip for item %d has unsupported extension %q", c.Ordinal+1, c.Ext), nil)
		}
		if c.Body == nil {
			return services.Wrap(services.ErrValidation, "pipeline", "receive",
				fmt.Sprintf("clip for item %d has no content", c.Ordinal+1), nil)
		}
	}
	return nil
}

// receiveClips writes uploaded clips, binds clips staged under the session
// and returns the resulting clip index with the staged blobs it bound. An
// uploaded clip wins over a staged one for the same item, whatever the
// extension; the staged take stays under the session.
func (o *Orchestrator) receiveClips(ctx context.Context, owner string, req Request, items int) ([]store.Clip, []clipstore.Blob, error) {
	sums := make(map[string]string, len(req.Clips))
	uploaded := make(map[int]struct{}, len(req.Clips))
	for _, c := range req.Clips {
		name := survey.ClipName(c.Ordinal, c.Ext)
		blob, err := o.clips.Write(ctx, owner, name, c.Body)
		if err != nil {
			return nil, nil, services.Wrap(services.ErrUploadFailed, "pipeline", "receive clip", name, err)
		}
		sums[name] = blob.SHA256
		uploaded[c.Ordinal] = struct{}{}
	}

	logger := logging.WithContext(ctx, o.logger)
	var bound []clipstore.Blob
	if req.SessionID != "" {
		var shadowed []string
		moved, err := o.clips.Bind(ctx, SessionOwner(req.SessionID), owner, func(name string) bool {
			ordinal, ok := survey.ParseClipName(name)
			if !ok {
				return true
			}
			if _, dup := uploaded[ordinal]; dup {
				shadowed = append(shadowed, name)
				return false
			}
			return true
		})
		bound = moved
		if len(shadowed) > 0 {
			logging.WarnWithContext(logger, "staged clips shadowed by uploaded clips", "staged_clip_conflict",
				logging.String("clip_names", strings.Join(shadowed, ",")),
				logging.String(logging.FieldImpact, "uploaded clip used for the item"),
			)
		}
		if err != nil {
			return nil, bound, services.Wrap(services.ErrUploadFailed, "pipeline", "bind session clips", req.SessionID, err)
		}
		if len(moved) > 0 {
			logger.Info("session clips bound", logging.Int("clip_count", len(moved)))
		}
	}

	blobs, err := o.clips.List(owner)
	if err != nil {
		return nil, bound, services.Wrap(services.ErrUploadFailed, "pipeline", "list clips", "", err)
	}
	clips := make([]store.Clip, 0, len(blobs))
	seen := make(map[int]struct{}, len(blobs))
	for _, blob := range blobs {
		ordinal, ok := survey.ParseClipName(blob.Name)
		if !ok || ordinal >= items {
			logging.WarnWithContext(logger, "ignoring clip without a matching item", "clip_ignored",
				logging.String("clip_name", blob.Name),
				logging.String(logging.FieldImpact, "clip not analysed"),
			)
			continue
		}
		if _, dup := seen[ordinal]; dup {
			logging.WarnWithContext(logger, "ignoring second clip for item", "clip_ignored",
				logging.String("clip_name", blob.Name),
				logging.String(logging.FieldImpact, "clip not analysed"),
			)
			continue
		}
		seen[ordinal] = struct{}{}
		sum := sums[blob.Name]
		if sum == "" {
			path, err := o.clips.Path(owner, blob.Name)
			if err == nil {
				sum, _, _ = fileutil.SHA256File(path)
			}
		}
		clips = append(clips, store.Clip{Ordinal: ordinal, Name: blob.Name, Size: blob.Size, SHA256: sum})
	}
	return clips, bound, nil
}

// discardClips drops a submission that was never persisted. Staged blobs it
// had bound go back to the session so the client can submit again.
func (o *Orchestrator) discardClips(ctx context.Context, owner, sessionID string, bound []clipstore.Blob) {
	ctx = context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, o.logger)
	if len(bound) > 0 {
		names := make(map[string]struct{}, len(bound))
		for _, b := range bound {
			names[b.Name] = struct{}{}
		}
		restored, err := o.clips.Bind(ctx, owner, SessionOwner(sessionID), func(name string) bool {
			_, ok := names[name]
			return ok
		})
		if err != nil {
			logging.WarnWithContext(logger, "failed to return staged clips to the session", "clip_restore_failed",
				logging.Error(err),
				logging.String("session_id", sessionID),
				logging.Int("restored", len(restored)),
				logging.String(logging.FieldImpact, "client must upload the missing clips with the next submission"),
			)
		}
	}
	if err := o.clips.RemoveOwner(ctx, owner); err != nil {
		logging.WarnWithContext(logger, "failed to discard clips", "clip_cleanup_failed",
			logging.Error(err),
			logging.String("owner", owner),
		)
	}
}

// dropSession removes staged takes left behind once a submission is stored.
func (o *Orchestrator) dropSession(ctx context.Context, sessionID string) {
	if err := o.clips.RemoveOwner(context.WithoutCancel(ctx), SessionOwner(sessionID)); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "failed to drop staged session clips", "clip_cleanup_failed",
			logging.Error(err),
			logging.String("session_id", sessionID),
		)
	}
}

func validSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (o *Orchestrator) runDir(submissionID string, runID int64) string {
	return filepath.Join(o.workDir, submissionID, fmt.Sprintf("run-%d", runID))
}

func (o *Orchestrator) cleanup(ctx context.Context, dir string) {
	if o.keepWorkDir {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "failed to remove working directory", "workdir_cleanup_failed",
			logging.Error(err),
			logging.String("work_dir", dir),
		)
	}
}
