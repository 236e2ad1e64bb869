package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidsurvey/internal/deps"
	"vidsurvey/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check external binaries, directories, notifications and the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.ProbeVersions(cmd.Context(), deps.CheckBinaries(deps.Requirements(cfg)))
			if jsonOut {
				return writeJSON(cmd, statuses)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, status := range statuses {
				fmt.Fprintln(stdout, renderStatusLine(status.Name, dependencyKind(status), dependencyDetail(status), colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Storage", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, storageLine(cmd, ctx, colorize))
			for _, check := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(stdout, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, daemonLine(cmd, ctx, colorize))

			if missing := deps.Missing(statuses); len(missing) > 0 {
				names := make([]string, len(missing))
				for i, m := range missing {
					names[i] = m.Name
				}
				return fmt.Errorf("missing required dependencies: %s", strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print dependency report as JSON")
	return cmd
}

func dependencyKind(status deps.Status) statusKind {
	switch {
	case status.Available:
		return statusOK
	case status.Optional:
		return statusWarn
	default:
		return statusError
	}
}

func dependencyDetail(status deps.Status) string {
	parts := []string{status.Command}
	if status.Version != "" {
		parts = append(parts, "version "+status.Version)
	}
	if status.Detail != "" {
		parts = append(parts, status.Detail)
	}
	if status.Optional && !status.Available {
		parts = append(parts, "optional")
	}
	return strings.Join(parts, ", ")
}

func storageLine(cmd *cobra.Command, ctx *commandContext, colorize bool) string {
	st, err := ctx.openStore()
	if err != nil {
		return renderStatusLine("Database", statusError, err.Error(), colorize)
	}
	defer st.Close()
	if err := st.Ping(cmd.Context()); err != nil {
		return renderStatusLine("Database", statusError, err.Error(), colorize)
	}
	return renderStatusLine("Database", statusOK, st.Path(), colorize)
}

func daemonLine(cmd *cobra.Command, ctx *commandContext, colorize bool) string {
	c, err := ctx.client()
	if err != nil {
		return renderStatusLine("API", statusError, err.Error(), colorize)
	}
	view, err := c.Status(cmd.Context())
	if err != nil {
		return renderStatusLine("API", statusWarn, "not reachable at "+ctx.address(), colorize)
	}
	return renderStatusLine("API", statusOK, fmt.Sprintf("%s (version %s)", ctx.address(), view.Version), colorize)
}
