package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidsurvey/internal/access"
	"vidsurvey/internal/store"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent submissions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withReader(cmd.Context(), func(r access.Reader) error {
				subs, err := r.Submissions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSONList(cmd, subs)
				}
				out := cmd.OutOrStdout()
				if len(subs) == 0 {
					fmt.Fprintln(out, "No submissions")
					return nil
				}
				rows := make([][]string, 0, len(subs))
				for _, sub := range subs {
					rows = append(rows, []string{
						sub.ID,
						sub.QuestionnaireID + " v" + sub.QuestionnaireVersion,
						strconv.Itoa(sub.TotalScore),
						sub.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprint(out, renderTable([]string{"Submission", "Questionnaire", "Total", "Created"}, rows, 3))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultListLimit, "Number of submissions to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print submissions as JSON")
	return cmd
}
