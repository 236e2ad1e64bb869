package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"vidsurvey/internal/config"
	"vidsurvey/internal/logging"
	"vidsurvey/internal/services"
)

const (
	defaultMaxOutput = 4 << 20
	stderrTailBytes  = 4 << 10
	// waitDelay bounds how long Wait blocks on pipes held open by orphaned
	// descendants after the group has been killed.
	waitDelay = 2 * time.Second
)

// Engine launches the external analysis process.
type Engine struct {
	Command   string
	Args      []string
	Timeout   time.Duration
	MaxOutput int64
	Logger    *slog.Logger
}

// NewEngine builds an Engine from the [inference] configuration section.
func NewEngine(cfg *config.Config, logger *slog.Logger) *Engine {
	return &Engine{
		Command:   cfg.Inference.Command,
		Args:      append([]string(nil), cfg.Inference.Args...),
		Timeout:   cfg.InferenceTimeout(),
		MaxOutput: cfg.Inference.MaxOutputBytes,
		Logger:    logger,
	}
}

// Invoke runs the engine once for workDir and the raw per-item scores and
// returns its stdout. The call never outlives Timeout.
func (e *Engine) Invoke(ctx context.Context, workDir string, scores []int) ([]byte, error) {
	if strings.TrimSpace(e.Command) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "inference", "invoke", "engine command not configured", nil)
	}
	if e.Timeout <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "inference", "invoke", "engine timeout must be positive", nil)
	}
	encoded, err := json.Marshal(scores)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "inference", "encode scores", "", err)
	}
	maxOutput := e.MaxOutput
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}

	args := make([]string, 0, len(e.Args)+2)
	args = append(args, e.Args...)
	args = append(args, workDir, string(encoded))

	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	stdout := &cappedBuffer{limit: maxOutput}
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd := exec.CommandContext(runCtx, e.Command, args...) //nolint:gosec
	cmd.Dir = workDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	isolateProcessGroup(cmd)

	logger := logging.WithContext(ctx, logging.NewComponentLogger(e.Logger, "inference"))
	logger.Debug("starting inference engine",
		logging.String("command", e.Command),
		logging.Any("args", args),
		logging.Duration("timeout", e.Timeout),
	)

	started := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(started)

	switch {
	case runErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, services.Wrap(services.ErrInferenceTimeout, "inference", "invoke",
			fmt.Sprintf("engine exceeded %s and was killed", e.Timeout), runErr)
	case runErr != nil && ctx.Err() != nil:
		return nil, services.Wrap(services.ErrInferenceCrashed, "inference", "invoke", "cancelled", ctx.Err())
	case runErr != nil:
		return nil, services.Wrap(services.ErrInferenceCrashed, "inference", "invoke",
			exitSummary(runErr, stderr.String()), runErr)
	case stdout.overflow:
		return nil, services.Wrap(services.ErrInferenceMalformed, "inference", "invoke",
			fmt.Sprintf("engine output exceeded %d bytes", maxOutput), nil)
	}

	logger.Info("inference engine finished",
		logging.Duration("duration", elapsed),
		logging.Int("output_bytes", len(stdout.Bytes())),
	)
	return stdout.Bytes(), nil
}

func exitSummary(err error, stderrTail string) string {
	var exitErr *exec.ExitError
	msg := "engine failed to run"
	if errors.As(err, &exitErr) {
		msg = fmt.Sprintf("engine exited with code %d", exitErr.ExitCode())
	}
	if tail := strings.TrimSpace(stderrTail); tail != "" {
		msg += ": " + tail
	}
	return msg
}

type cappedBuffer struct {
	buf      []byte
	limit    int64
	overflow bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - int64(len(b.buf))
	if room <= 0 {
		b.overflow = b.overflow || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf = append(b.buf, p[:room]...)
		b.overflow = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte { return b.buf }

// tailBuffer keeps the last limit bytes written.
type tailBuffer struct {
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string { return string(b.buf) }
