package inference

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"vidsurvey/internal/fileutil"
	"vidsurvey/internal/logging"
	"vidsurvey/internal/services"
	"vidsurvey/internal/survey"
)

// Invoker runs the external engine for one working directory.
type Invoker interface {
	Invoke(ctx context.Context, workDir string, scores []int) ([]byte, error)
}

// Stage prepares a working directory, runs the engine once and decodes the result.
type Stage struct {
	engine Invoker
	logger *slog.Logger
}

// NewStage wires an engine into an inference stage.
func NewStage(engine Invoker, logger *slog.Logger) *Stage {
	return &Stage{engine: engine, logger: logging.NewComponentLogger(logger, "inference")}
}

// Run stages clips (ordinal to transcoded path) into workDir and analyses them
// together with the dense raw scores. Objective values for ordinals missing
// from clips are always nil in the returned output.
func (s *Stage) Run(ctx context.Context, workDir string, clips map[int]string, scores []int) (Output, error) {
	if len(clips) == 0 {
		return Output{}, services.Wrap(services.ErrValidation, "inference", "run", "no clips to analyse", nil)
	}
	present := SortedOrdinals(clips)
	for _, ord := range present {
		if ord < 0 || ord >= len(scores) {
			return Output{}, services.Wrap(services.ErrValidation, "inference", "run",
				fmt.Sprintf("clip ordinal %d outside %d items", ord, len(scores)), nil)
		}
	}

	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Output{}, services.Wrap(services.ErrInferenceCrashed, "inference", "prepare", "create working directory", err)
	}
	for _, ord := range present {
		src := clips[ord]
		dst := filepath.Join(workDir, survey.ClipName(ord, filepath.Ext(src)))
		if err := fileutil.LinkOrCopy(src, dst); err != nil {
			return Output{}, services.Wrap(services.ErrInferenceCrashed, "inference", "prepare",
				fmt.Sprintf("stage clip %d", ord+1), err)
		}
	}

	logger := logging.WithContext(ctx, s.logger)
	raw, err := s.engine.Invoke(ctx, workDir, scores)
	if err != nil {
		return Output{}, err
	}
	out, err := Decode(raw, len(scores), present)
	if err != nil {
		logging.WarnWithContext(logger, "inference output rejected", "inference_malformed",
			logging.Error(err),
			logging.Int("output_bytes", len(raw)),
			logging.String(logging.FieldImpact, "submission stored without analysis"),
		)
		return Output{}, err
	}
	out.Objective = MaskObjective(out.Objective, present)

	missing := 0
	for _, v := range out.Objective {
		if v == nil {
			missing++
		}
	}
	logger.Info("inference decoded",
		logging.Int("clip_count", len(present)),
		logging.Int("missing_objective", missing),
		logging.Bool("agreement_present", out.Agreement != nil),
	)
	return out, nil
}
