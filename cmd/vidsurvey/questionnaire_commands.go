package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidsurvey/internal/access"
	"vidsurvey/internal/survey"
)

func newQuestionnaireCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "questionnaire",
		Aliases: []string{"q"},
		Short:   "Manage questionnaire definitions",
	}
	cmd.AddCommand(newQuestionnaireImportCommand(ctx))
	cmd.AddCommand(newQuestionnaireListCommand(ctx))
	return cmd
}

func newQuestionnaireImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml|file.json>...",
		Short: "Publish questionnaire definitions into the local database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			out := cmd.OutOrStdout()
			for _, path := range args {
				q, err := survey.LoadFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				stored, err := st.PutQuestionnaire(cmd.Context(), q)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(out, "Published %s v%s (%d items)\n", stored.ID, stored.Version, len(stored.Items))
			}
			return nil
		},
	}
}

func newQuestionnaireListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List published questionnaires",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withReader(cmd.Context(), func(r access.Reader) error {
				qs, err := r.Questionnaires(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSONList(cmd, qs)
				}
				out := cmd.OutOrStdout()
				if len(qs) == 0 {
					fmt.Fprintln(out, "No questionnaires; publish one with `vidsurvey questionnaire import`")
					return nil
				}
				rows := make([][]string, 0, len(qs))
				for _, q := range qs {
					rows = append(rows, []string{q.ID, q.Version, q.Title, strconv.Itoa(len(q.Items))})
				}
				fmt.Fprint(out, renderTable([]string{"ID", "Version", "Title", "Items"}, rows, 4))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print questionnaires as JSON")
	return cmd
}
