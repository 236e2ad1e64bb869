package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"vidsurvey/internal/access"
	"vidsurvey/internal/api"
	"vidsurvey/internal/store"
	"vidsurvey/internal/survey"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <submission-id>",
		Short: "Show a submission with its latest analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withReader(cmd.Context(), func(r access.Reader) error {
				view, err := r.Analysis(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, view)
				}
				renderAnalysisView(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the submission and analysis as JSON")
	return cmd
}

func renderAnalysisView(out io.Writer, view api.AnalysisView) {
	sub := view.Submission
	fmt.Fprintf(out, "Submission:     %s\n", sub.ID)
	fmt.Fprintf(out, "Questionnaire:  %s v%s\n", sub.QuestionnaireID, sub.QuestionnaireVersion)
	fmt.Fprintf(out, "Created:        %s\n", sub.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Total score:    %d\n", sub.TotalScore)

	a := view.Analysis
	if a == nil {
		fmt.Fprintln(out, "Analysis:       none")
	} else {
		fmt.Fprintf(out, "Adjusted total: %.2f\n", a.AdjustedTotal)
		fmt.Fprintf(out, "Agreement:      %s (adjusted: %s)\n", formatOptional(a.Agreement), yesNo(a.NeedsAdjustment))
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, renderTable(analysisHeaders(a), analysisRows(sub, a), 1, 4, 5, 6, 7))
	fmt.Fprintln(out)

	if len(view.Runs) > 0 {
		fmt.Fprintln(out)
		rows := make([][]string, 0, len(view.Runs))
		for _, run := range view.Runs {
			rows = append(rows, []string{
				strconv.FormatInt(run.ID, 10),
				string(run.Kind),
				humanState(string(run.State)),
				strconv.Itoa(run.ClipFailures),
				run.ErrorMessage,
			})
		}
		fmt.Fprint(out, renderTable([]string{"Run", "Kind", "State", "Clip failures", "Error"}, rows, 1, 4))
		fmt.Fprintln(out)
	}
}

func analysisHeaders(a *store.Analysis) []string {
	headers := []string{"#", "Question", "Answer", "Score"}
	if a != nil {
		headers = append(headers, "Objective", "Alpha", "Adjusted")
	}
	return headers
}

func analysisRows(sub *store.Submission, a *store.Analysis) [][]string {
	rows := make([][]string, 0, len(sub.Answers))
	for i, ans := range sub.Answers {
		answer := ans.OptionText
		if !ans.Answered() {
			answer = "(unanswered)"
		}
		row := []string{strconv.Itoa(i + 1), ans.Prompt, answer, strconv.Itoa(ans.Score)}
		if a != nil {
			objective, alpha, adjusted := "-", "-", "-"
			if i < len(a.Objective) {
				if v := a.Objective[i]; v != nil {
					objective = fmt.Sprintf("%.2f", *v*survey.ItemScale)
				}
			}
			if i < len(a.Alphas) {
				alpha = fmt.Sprintf("%.1f", a.Alphas[i])
			}
			if i < len(a.Adjusted) {
				adjusted = fmt.Sprintf("%.2f", a.Adjusted[i]*survey.ItemScale)
			}
			row = append(row, objective, alpha, adjusted)
		}
		rows = append(rows, row)
	}
	return rows
}

func formatOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", *v)
}
