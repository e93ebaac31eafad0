package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"briefsmith/internal/client"
	"briefsmith/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and readiness checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var statusClient daemonctl.StatusClient
			apiClient, err := ctx.apiClient()
			switch {
			case err == nil:
				statusClient = apiClient
			case !client.IsAPIUnavailable(err):
				return err
			}

			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), statusClient, cfg)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("Daemon", colorize)
			if status.Running {
				lines = append(lines, renderStatusLine("Daemon", statusOK, "running (pid "+strconv.Itoa(status.PID)+")", colorize))
			} else {
				lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
			}
			lines = append(lines,
				renderStatusLine("Database", statusInfo, status.DatabasePath, colorize),
				renderStatusLine("Blob backend", statusInfo, status.BlobBackend, colorize),
			)
			if status.AuthMode != "" {
				lines = append(lines, renderStatusLine("API auth", statusInfo, status.AuthMode, colorize))
			}
			if status.Running {
				pipeline := fmt.Sprintf("%d active run(s)", status.Pipeline.ActiveRuns)
				kind := statusOK
				if status.Pipeline.LastError != "" {
					pipeline += "; last error: " + status.Pipeline.LastError
					kind = statusWarn
				}
				lines = append(lines, renderStatusLine("Pipeline", kind, pipeline, colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			for _, check := range status.Checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON")
	return cmd
}
