package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lifesaver/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify devices, binaries, directories and hand-off targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			proc, probeErr := preflight.ProbeRecorder(cfg)
			failed := preflight.Failed(results)

			if asJSON {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := wantsColor(out)
				fmt.Fprintln(out, sectionHeader("Preflight", colorize))
				for _, r := range results {
					state := stateOK
					if !r.Passed {
						state = stateFail
					}
					fmt.Fprintln(out, statusLine(r.Name, state, r.Detail, colorize))
				}
				switch {
				case probeErr != nil:
					fmt.Fprintln(out, statusLine("Recorder", stateWarn, probeErr.Error(), colorize))
				default:
					fmt.Fprintln(out, statusLine("Recorder", stateInfo, proc.Detail(), colorize))
				}
			}
			if len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print check results as JSON")
	return cmd
}
