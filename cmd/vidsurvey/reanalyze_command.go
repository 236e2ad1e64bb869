package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReanalyzeCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "reanalyze <submission-id>",
		Short: "Re-run transcoding, inference and fusion over stored clips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := c.Reanalyze(cmd.Context(), args[0])
			if err != nil {
				return wrapDialError(err, ctx.address())
			}
			if jsonOut {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %d: %s\n", resp.RunID, humanState(string(resp.State)))
			fmt.Fprintf(out, "Total score:    %d\n", resp.TotalScore)
			fmt.Fprintf(out, "Adjusted total: %s\n", formatScore(resp.AdjustedTotal))
			fmt.Fprintf(out, "Analysis:       %s\n", yesNo(resp.AnalysisAvailable))
			if resp.InferenceError != "" {
				fmt.Fprintf(out, "Inference:      %s\n", resp.InferenceError)
			}
			for _, f := range resp.ClipFailures {
				fmt.Fprintf(out, "Clip %s failed: %s\n", f.Name, f.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the run result as JSON")
	return cmd
}
