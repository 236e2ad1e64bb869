package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"vidsurvey/internal/config"
	"vidsurvey/internal/logging"
	"vidsurvey/internal/services"
	"vidsurvey/internal/survey"
)

const waitDelay = 2 * time.Second

// RawClip is one uploaded clip awaiting conversion.
type RawClip struct {
	Ordinal  int
	Path     string
	MimeHint string
}

// Outcome is the per-clip result. Exactly one of Path or Err is set.
type Outcome struct {
	Ordinal  int
	Path     string
	Duration float64
	Elapsed  time.Duration
	Err      error
}

// OK reports whether the clip produced a usable transcoded file.
func (o Outcome) OK() bool { return o.Err == nil && o.Path != "" }

// Transcoder runs ffmpeg conversions.
type Transcoder struct {
	FFmpeg      string
	FFprobe     string
	VideoCodec  string
	AudioCodec  string
	Container   string
	Concurrency int
	Timeout     time.Duration
	Validate    bool
	logger      *slog.Logger
}

// New builds a Transcoder from configuration.
func New(cfg *config.Config, logger *slog.Logger) *Transcoder {
	return &Transcoder{
		FFmpeg:      cfg.Transcode.FFmpegBinary,
		FFprobe:     cfg.Transcode.FFprobeBinary,
		VideoCodec:  cfg.Transcode.VideoCodec,
		AudioCodec:  cfg.Transcode.AudioCodec,
		Container:   cfg.Transcode.Container,
		Concurrency: cfg.Transcode.Concurrency,
		Timeout:     cfg.TranscodeTimeout(),
		Validate:    cfg.Transcode.ValidateOutput,
		logger:      logging.NewComponentLogger(logger, "transcode"),
	}
}

// TranscodeAll converts every clip, at most Concurrency at a time, and returns
// outcomes in ordinal order. It never stops early on a failed clip.
func (t *Transcoder) TranscodeAll(ctx context.Context, clips []RawClip, outDir string) []Outcome {
	outcomes := make([]Outcome, len(clips))
	limit := t.Concurrency
	if limit <= 0 {
		limit = 1
	}
	var group errgroup.Group
	group.SetLimit(limit)
	for i, clip := range clips {
		group.Go(func() error {
			outcomes[i] = t.Transcode(ctx, clip, outDir)
			return nil
		})
	}
	_ = group.Wait()

	sort.SliceStable(outcomes, func(a, b int) bool { return outcomes[a].Ordinal < outcomes[b].Ordinal })
	return outcomes
}

// Transcode converts a single clip into outDir.
func (t *Transcoder) Transcode(ctx context.Context, clip RawClip, outDir string) Outcome {
	started := time.Now()
	outcome := Outcome{Ordinal: clip.Ordinal}
	logger := logging.WithContext(ctx, t.logger).With(logging.Int("ordinal", clip.Ordinal+1))

	fail := func(operation string, err error) Outcome {
		outcome.Err = services.Wrap(services.ErrTranscodeFailed, "transcoding", operation,
			fmt.Sprintf("clip %d", clip.Ordinal+1), err)
		outcome.Elapsed = time.Since(started)
		logging.WarnWithContext(logger, "clip transcode failed", "transcode_failed",
			logging.Error(outcome.Err),
			logging.String(logging.FieldImpact, "item has no objective signal"),
			logging.String(logging.FieldErrorHint, "inspect the raw clip with ffprobe"),
		)
		return outcome
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fail("prepare", err)
	}
	container := strings.TrimPrefix(t.Container, ".")
	if container == "" {
		container = "mp4"
	}
	final := filepath.Join(outDir, survey.ClipName(clip.Ordinal, container))
	partial := strings.TrimSuffix(final, filepath.Ext(final)) + ".partial." + container

	runCtx := ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	args := t.buildArgs(clip.Path, partial)
	cmd := exec.CommandContext(runCtx, t.ffmpegBinary(), args...) //nolint:gosec
	cmd.WaitDelay = waitDelay
	if output, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(partial)
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fail("ffmpeg", fmt.Errorf("timed out after %s: %w", t.Timeout, err))
		}
		return fail("ffmpeg", fmt.Errorf("%w: %s", err, lastLine(output)))
	}

	if t.Validate {
		probe, err := Inspect(runCtx, t.FFprobe, partial)
		if err != nil {
			_ = os.Remove(partial)
			return fail("validate", err)
		}
		if probe.VideoStreams() == 0 && probe.AudioStreams() == 0 {
			_ = os.Remove(partial)
			return fail("validate", errors.New("output has no audio or video stream"))
		}
		outcome.Duration = probe.DurationSeconds()
	}

	if err := os.Rename(partial, final); err != nil {
		_ = os.Remove(partial)
		return fail("finalize", err)
	}
	outcome.Path = final
	outcome.Elapsed = time.Since(started)
	logger.Debug("clip transcoded",
		logging.String("output_path", final),
		logging.Duration("duration", outcome.Elapsed),
	)
	return outcome
}

func (t *Transcoder) ffmpegBinary() string {
	if strings.TrimSpace(t.FFmpeg) == "" {
		return "ffmpeg"
	}
	return t.FFmpeg
}

func (t *Transcoder) buildArgs(input, output string) []string {
	videoCodec := t.VideoCodec
	if videoCodec == "" {
		videoCodec = "libx264"
	}
	audioCodec := t.AudioCodec
	if audioCodec == "" {
		audioCodec = "aac"
	}
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", input, "-c:v", videoCodec, "-c:a", audioCodec}
	if strings.HasSuffix(output, ".mp4") || strings.HasSuffix(output, ".mov") {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, output)
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// Successful returns the transcoded paths keyed by ordinal.
func Successful(outcomes []Outcome) map[int]string {
	out := make(map[int]string, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			out[o.Ordinal] = o.Path
		}
	}
	return out
}

// Failures returns the failed outcomes.
func Failures(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}
