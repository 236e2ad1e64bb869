package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var addrFlag, configFlag string
	ctx := &commandContext{addrFlag: &addrFlag, configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "vidsurvey",
		Short:         "Questionnaire submissions with clip-based score fusion",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "", "Daemon API address (defaults to paths.api_bind)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(
		// daemon
		newServeCommand(ctx),
		newDoctorCommand(ctx),
		newLogsCommand(ctx),
		newTestNotifyCommand(ctx),
		// submissions
		newSubmitCommand(ctx),
		newShowCommand(ctx),
		newListCommand(ctx),
		newReanalyzeCommand(ctx),
		// setup
		newQuestionnaireCommand(ctx),
		newConfigCommand(ctx),
	)

	return rootCmd
}
