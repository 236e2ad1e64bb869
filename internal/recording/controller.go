package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"mime"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"vidsurvey/internal/logging"
	"vidsurvey/internal/services"
	"vidsurvey/internal/survey"
)

var subtypePattern = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

type capture struct {
	ordinal  int
	stream   Stream
	recorder Recorder
	state    CaptureState

	mu     sync.Mutex
	chunks [][]byte
	size   int
}

func (c *capture) sink(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	buf := append([]byte(nil), chunk...)
	c.mu.Lock()
	c.chunks = append(c.chunks, buf)
	c.size += len(buf)
	c.mu.Unlock()
}

func (c *capture) data() ([]byte, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, 0, c.size)
	for _, chunk := range c.chunks {
		out = append(out, chunk...)
	}
	return out, len(c.chunks)
}

// Controller is the session state machine. All methods are safe for
// concurrent use; Interrupt may race freely with user-driven operations.
type Controller struct {
	mu        sync.Mutex
	q         survey.Questionnaire
	device    Device
	logger    *slog.Logger
	sessionID string

	stage   Stage
	index   int
	answers []int
	clips   map[int]Clip
	current *capture

	result  Result
	lastErr error
}

// New creates a controller at INTRO with a fresh session id.
func New(q survey.Questionnaire, device Device, logger *slog.Logger) *Controller {
	answers := make([]int, len(q.Items))
	for i := range answers {
		answers[i] = survey.Unanswered
	}
	sessionID := uuid.NewString()
	return &Controller{
		q:         q,
		device:    device,
		logger:    logging.NewComponentLogger(logger, "recording").With(logging.String("session_id", sessionID)),
		sessionID: sessionID,
		stage:     StageIntro,
		answers:   answers,
		clips:     make(map[int]Clip),
	}
}

// SessionID identifies every upload of this session.
func (c *Controller) SessionID() string { return c.sessionID }

// Stage returns the current stage and, on QUIZ, the item index.
func (c *Controller) Stage() (Stage, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage, c.index
}

// CaptureState reports the sub-state of the current item.
func (c *Controller) CaptureState() CaptureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current.state
	}
	if _, ok := c.clips[c.index]; ok && c.stage == StageQuiz {
		return CaptureStopped
	}
	return CaptureIdle
}

// Begin leaves the intro.
func (c *Controller) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveLocked(StageIntro, StageConsent)
}

// Consent moves to the first item when accepted and starts its capture.
func (c *Controller) Consent(ctx context.Context, accepted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage != StageConsent {
		return c.invalidLocked("consent")
	}
	if !accepted {
		return ErrConsentRequired
	}
	if len(c.q.Items) == 0 {
		c.stage = StageReview
		return nil
	}
	c.enterQuizLocked(ctx, 0)
	return nil
}

// Select records the option chosen for an item. A negative option clears it.
func (c *Controller) Select(ordinal, option int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage != StageQuiz && c.stage != StageReview {
		return c.invalidLocked("select")
	}
	if ordinal < 0 || ordinal >= len(c.answers) {
		return fmt.Errorf("item %d outside %d items: %w", ordinal+1, len(c.answers), ErrInvalidTransition)
	}
	if option < 0 {
		option = survey.Unanswered
	}
	c.answers[ordinal] = option
	return nil
}

// StartRecording retakes the current item after a capture ended without a
// clip, for example an interrupt before any data arrived. Entering an item
// already starts its capture. A device failure is returned wrapped in
// ErrDeviceUnavailable and leaves the item without a clip.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage != StageQuiz {
		return c.invalidLocked("start recording")
	}
	if c.current != nil {
		return ErrCaptureActive
	}
	if _, ok := c.clips[c.index]; ok {
		return fmt.Errorf("item %d: %w", c.index+1, ErrClipExists)
	}
	return c.startLocked(ctx)
}

// enterQuizLocked moves to QUIZ(index) and starts its capture unless the item
// already has a clip. The previous capture must already be released. Device
// failures are logged and the item continues without a clip.
func (c *Controller) enterQuizLocked(ctx context.Context, index int) {
	c.stage = StageQuiz
	c.index = index
	if _, ok := c.clips[index]; ok {
		return
	}
	_ = c.startLocked(ctx)
}

func (c *Controller) startLocked(ctx context.Context) error {
	ordinal := c.index
	stream, err := c.device.Open(ctx, ordinal)
	if err != nil {
		return c.deviceFailureLocked(ordinal, "open device", err)
	}
	cp := &capture{ordinal: ordinal, stream: stream, state: CaptureIdle}
	recorder, err := stream.NewRecorder(ordinal, cp.sink)
	if err != nil {
		_ = stream.Close()
		return c.deviceFailureLocked(ordinal, "create recorder", err)
	}
	cp.recorder = recorder
	if err := recorder.Start(); err != nil {
		_ = stream.Close()
		return c.deviceFailureLocked(ordinal, "start recorder", err)
	}
	cp.state = CaptureRecording
	c.current = cp
	c.logger.Debug("capture started", logging.Int("item", ordinal+1))
	return nil
}

// PauseRecording pauses the current capture.
func (c *Controller) PauseRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ErrNoCapture
	}
	if c.current.state != CaptureRecording {
		return c.invalidLocked("pause")
	}
	if err := c.current.recorder.Pause(); err != nil {
		return err
	}
	c.current.state = CapturePaused
	return nil
}

// ResumeRecording resumes a paused capture.
func (c *Controller) ResumeRecording() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ErrNoCapture
	}
	if c.current.state != CapturePaused {
		return c.invalidLocked("resume")
	}
	if err := c.current.recorder.Resume(); err != nil {
		return err
	}
	c.current.state = CaptureRecording
	return nil
}

// StopRecording finalizes the current capture. It reports whether a clip
// was kept.
func (c *Controller) StopRecording() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return false, ErrNoCapture
	}
	return c.releaseLocked("stopped")
}

// AwaitCapture blocks until the current recorder's source ends on its own.
// Recorders that cannot end by themselves return immediately.
func (c *Controller) AwaitCapture(ctx context.Context) error {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur == nil {
		return ErrNoCapture
	}
	finisher, ok := cur.recorder.(Finisher)
	if !ok {
		return nil
	}
	select {
	case <-finisher.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next releases any capture and moves to the following item, starting its
// capture, or to REVIEW after the last one.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage != StageQuiz {
		return c.invalidLocked("next")
	}
	if _, err := c.releaseLocked("advanced"); err != nil && !errors.Is(err, ErrNoCapture) {
		return err
	}
	if c.index+1 >= len(c.q.Items) {
		c.stage = StageReview
		return nil
	}
	c.enterQuizLocked(ctx, c.index+1)
	return nil
}

// Back releases any capture and returns to the previous item (the last one
// from REVIEW), starting its capture when it has no clip yet.
func (c *Controller) Back(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.stage {
	case StageQuiz:
		if c.index == 0 {
			return c.invalidLocked("back")
		}
		if _, err := c.releaseLocked("went back"); err != nil && !errors.Is(err, ErrNoCapture) {
			return err
		}
		c.enterQuizLocked(ctx, c.index-1)
	case StageReview:
		if len(c.q.Items) == 0 {
			return c.invalidLocked("back")
		}
		c.enterQuizLocked(ctx, len(c.q.Items)-1)
	default:
		return c.invalidLocked("back")
	}
	return nil
}

// Review jumps to REVIEW, releasing any capture.
func (c *Controller) Review() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage != StageQuiz {
		return c.invalidLocked("review")
	}
	if _, err := c.releaseLocked("review"); err != nil && !errors.Is(err, ErrNoCapture) {
		return err
	}
	c.stage = StageReview
	return nil
}

// Interrupt hard-cancels the current capture. Calling it with nothing
// recording is a no-op.
func (c *Controller) Interrupt(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return
	}
	kept, err := c.releaseLocked("interrupted: " + reason)
	if err != nil {
		logging.WarnWithContext(c.logger, "capture interrupt failed", "capture_interrupt_failed",
			logging.Error(err),
			logging.String("reason", reason),
		)
		return
	}
	c.logger.Info("capture interrupted",
		logging.String("reason", reason),
		logging.Bool("clip_kept", kept),
	)
}

// Answers returns the dense answers array in ordinal order.
func (c *Controller) Answers() []AnswerOut {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answersLocked()
}

// Clips returns the kept clips in ordinal order.
func (c *Controller) Clips() []Clip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clipsLocked()
}

// Result returns the outcome of the last submit and its error, if any.
func (c *Controller) Result() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result, c.lastErr
}

// Submit uploads answers and clips as one package. The stage is SUBMITTING
// while the upload runs, then DONE or FAILED.
func (c *Controller) Submit(ctx context.Context, uploader Uploader, progress func(Progress)) (Result, error) {
	c.mu.Lock()
	if c.stage != StageReview {
		err := c.invalidLocked("submit")
		c.mu.Unlock()
		return Result{}, err
	}
	c.stage = StageSubmitting
	pkg := Package{
		QuestionnaireID: c.q.ID,
		SessionID:       c.sessionID,
		Answers:         c.answersLocked(),
		Clips:           c.clipsLocked(),
	}
	c.mu.Unlock()

	if progress == nil {
		progress = func(Progress) {}
	}
	var (
		progressMu sync.Mutex
		processing bool
	)
	report := func(percent int) {
		progressMu.Lock()
		defer progressMu.Unlock()
		if processing {
			return
		}
		percent = min(max(percent, 0), 100)
		progress(Progress{Phase: PhaseUploading, Percent: percent})
		if percent == 100 {
			processing = true
			progress(Progress{Phase: PhaseProcessing})
		}
	}
	report(0)
	result, err := uploader.Upload(ctx, pkg, report)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.stage = StageFailed
		c.lastErr = services.Wrap(services.ErrUploadFailed, "recording", "submit", "", err)
		c.result = result
		logging.WarnWithContext(c.logger, "submission upload failed", "upload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "retry from review; recordings are kept"),
		)
		return result, c.lastErr
	}
	c.stage = StageDone
	c.result = result
	c.lastErr = nil
	c.logger.Info("submission accepted",
		logging.String(logging.FieldSubmissionID, result.SubmissionID),
		logging.Int("total_score", result.TotalScore),
		logging.Int("clip_count", len(pkg.Clips)),
	)
	return result, nil
}

// Retry returns a FAILED session to REVIEW without re-recording anything.
func (c *Controller) Retry() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moveLocked(StageFailed, StageReview)
}

func (c *Controller) moveLocked(from, to Stage) error {
	if c.stage != from {
		return c.invalidLocked(strings.ToLower(string(to)))
	}
	c.stage = to
	return nil
}

func (c *Controller) invalidLocked(op string) error {
	return fmt.Errorf("%s in stage %s: %w", op, c.stage, ErrInvalidTransition)
}

func (c *Controller) deviceFailureLocked(ordinal int, op string, err error) error {
	wrapped := services.Wrap(services.ErrDeviceUnavailable, "recording", op, fmt.Sprintf("item %d", ordinal+1), err)
	logging.WarnWithContext(c.logger, "capture device unavailable", "device_unavailable",
		logging.Error(err),
		logging.Int("item", ordinal+1),
		logging.String(logging.FieldImpact, "item continues without a clip"),
	)
	return wrapped
}

// releaseLocked stops the recorder, closes the stream and keeps the clip
// when at least one chunk arrived. The handle is cleared on every path.
func (c *Controller) releaseLocked(reason string) (bool, error) {
	cur := c.current
	if cur == nil {
		return false, ErrNoCapture
	}
	c.current = nil

	stopErr := cur.recorder.Stop()
	closeErr := cur.stream.Close()
	cur.state = CaptureStopped

	data, chunks := cur.data()
	kept := false
	if chunks > 0 {
		if _, exists := c.clips[cur.ordinal]; !exists {
			mimeType := cur.recorder.MimeType()
			c.clips[cur.ordinal] = Clip{
				Ordinal:  cur.ordinal,
				Ext:      extFromMime(mimeType),
				MimeType: mimeType,
				Data:     data,
			}
			kept = true
		}
	}
	c.logger.Debug("capture released",
		logging.Int("item", cur.ordinal+1),
		logging.String("reason", reason),
		logging.Int("chunks", chunks),
		logging.Bool("clip_kept", kept),
	)
	if stopErr != nil {
		return kept, stopErr
	}
	return kept, closeErr
}

func (c *Controller) answersLocked() []AnswerOut {
	out := make([]AnswerOut, len(c.q.Items))
	for i, item := range c.q.Items {
		out[i] = AnswerOut{QuestionID: item.ID, OptionIndex: c.answers[i]}
	}
	return out
}

func (c *Controller) clipsLocked() []Clip {
	out := make([]Clip, 0, len(c.clips))
	for _, ord := range slices.Sorted(maps.Keys(c.clips)) {
		out = append(out, c.clips[ord])
	}
	return out
}

func extFromMime(mimeType string) string {
	media, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "webm"
	}
	_, subtype, ok := strings.Cut(media, "/")
	switch {
	case !ok:
		return "webm"
	case subtype == "quicktime":
		return "mov"
	case subtype == "x-matroska":
		return "mkv"
	case !subtypePattern.MatchString(subtype):
		return "webm"
	}
	return subtype
}
