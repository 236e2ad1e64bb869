package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidsurvey/internal/client"
	"vidsurvey/internal/logging"
	"vidsurvey/internal/recording"
	"vidsurvey/internal/survey"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		answersFlag string
		clipDir     string
		pace        time.Duration
		jsonOut     bool
		verbose     bool
	)
	cmd := &cobra.Command{
		Use:   "submit <questionnaire-id>",
		Short: "Answer a questionnaire and upload clips from a directory",
		Long: `Runs one recording session against the daemon.

Answers are option indexes in item order, for example --answers 1,0,2,-,3
where "-" (or -1) leaves an item unanswered. Clips named question_NN.<ext>
in --clips are replayed as the recording for item NN; items without a file
are submitted without a clip.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			runCtx := cmd.Context()
			q, err := c.Questionnaire(runCtx, args[0])
			if err != nil {
				return wrapDialError(err, ctx.address())
			}
			answers, err := parseAnswers(answersFlag, q.Items)
			if err != nil {
				return err
			}

			logger := logging.NewNop()
			if verbose {
				if logger, err = logging.New(logging.Options{Level: "debug", Format: "console", Outputs: []string{"stderr"}}); err != nil {
					return err
				}
			}
			var device recording.Device = noDevice{}
			if clipDir != "" {
				device = &recording.FileDevice{Dir: clipDir, Pace: pace}
			}
			session := recording.New(q, device, logger)
			if err := answerSession(runCtx, session, answers); err != nil {
				return err
			}

			progress := newProgressPrinter(cmd.ErrOrStderr())
			result, err := session.Submit(runCtx, c, progress.report)
			progress.done()
			if err != nil {
				var apiErr *client.APIError
				if errors.As(err, &apiErr) && apiErr.TotalScore != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Self-reported total: %d\n", *apiErr.TotalScore)
				}
				return wrapDialError(err, ctx.address())
			}
			if jsonOut {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submission:       %s\n", result.SubmissionID)
			fmt.Fprintf(out, "Session:          %s\n", session.SessionID())
			fmt.Fprintf(out, "Clips:            %d\n", len(session.Clips()))
			fmt.Fprintf(out, "Total score:      %d\n", result.TotalScore)
			fmt.Fprintf(out, "Adjusted total:   %s\n", formatScore(result.AdjustedTotal))
			fmt.Fprintf(out, "Analysis:         %s\n", yesNo(result.AnalysisAvailable))
			fmt.Fprintf(out, "Result:           %s\n", result.ResultLocation)
			return nil
		},
	}
	cmd.Flags().StringVarP(&answersFlag, "answers", "a", "", "Comma-separated option indexes in item order")
	cmd.Flags().StringVar(&clipDir, "clips", "", "Directory of question_NN.<ext> clips to replay")
	cmd.Flags().DurationVar(&pace, "pace", 0, "Delay between replayed chunks")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log session events to stderr")
	return cmd
}

// answerSession walks every item: select, let the replayed clip finish when
// the item's capture started, advance.
func answerSession(ctx context.Context, session *recording.Controller, answers []int) error {
	if err := session.Begin(); err != nil {
		return err
	}
	if err := session.Consent(ctx, true); err != nil {
		return err
	}
	for ordinal, option := range answers {
		if err := session.Select(ordinal, option); err != nil {
			return err
		}
		if session.CaptureState() == recording.CaptureRecording {
			if err := session.AwaitCapture(ctx); err != nil {
				session.Interrupt("cancelled")
				return err
			}
			if _, err := session.StopRecording(); err != nil {
				return err
			}
		}
		if err := session.Next(ctx); err != nil {
			return err
		}
	}
	return nil
}

func parseAnswers(raw string, items []survey.Item) ([]int, error) {
	out := make([]int, len(items))
	for i := range out {
		out[i] = survey.Unanswered
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	fields := strings.Split(raw, ",")
	if len(fields) > len(items) {
		return nil, fmt.Errorf("%d answers given for %d items", len(fields), len(items))
	}
	for i, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" || field == "-" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("answer %d: %q is not an option index", i+1, field)
		}
		if n < 0 {
			continue
		}
		if n >= len(items[i].Options) {
			return nil, fmt.Errorf("answer %d: option %d outside 0..%d", i+1, n, len(items[i].Options)-1)
		}
		out[i] = n
	}
	return out, nil
}

type noDevice struct{}

func (noDevice) Open(context.Context, int) (recording.Stream, error) {
	return nil, errors.New("no clip directory given")
}

type progressPrinter struct {
	w    io.Writer
	last int
	tty  bool
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: -1, tty: shouldColorize(w)}
}

func (p *progressPrinter) report(pr recording.Progress) {
	switch pr.Phase {
	case recording.PhaseProcessing:
		p.line("Processing submission...")
	default:
		if !p.tty && pr.Percent != 100 && pr.Percent/25 == p.last/25 {
			return
		}
		p.last = pr.Percent
		p.line(fmt.Sprintf("Uploading %3d%%", pr.Percent))
	}
}

func (p *progressPrinter) line(s string) {
	if p.tty {
		fmt.Fprintf(p.w, "\r\x1b[K%s", s)
		return
	}
	fmt.Fprintln(p.w, s)
}

func (p *progressPrinter) done() {
	if p.tty {
		fmt.Fprintln(p.w)
	}
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
