package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lifesaver/internal/daemonctl"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startOpts daemonctl.LaunchOptions
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the recorder in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			startOpts.ConfigPath = ctx.configPath
			result, err := daemonctl.EnsureStarted(cfg.SocketPath(), exe, startOpts, 10*time.Second)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result.State == daemonctl.StartStateAlreadyRunning {
				fmt.Fprintf(out, "Recorder already running (pid %d)\n", result.PID)
				return nil
			}
			fmt.Fprintf(out, "Recorder started (pid %d)\n", result.PID)
			return nil
		},
	}
	startCmd.Flags().StringVar(&startOpts.LogLevel, "log-level", "", "Override the configured log level")
	startCmd.Flags().BoolVar(&startOpts.Synthetic, "synthetic", false, "Start in synthetic mode")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background recorder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(cfg, 15*time.Second)
			if errors.Is(err, daemonctl.ErrNotRunning) {
				fmt.Fprintln(out, "Recorder is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Recorder (pid %d) did not exit in time and was killed\n", result.PID)
				return nil
			}
			fmt.Fprintf(out, "Recorder stopped (pid %d)\n", result.PID)
			return nil
		},
	}

	var restartOpts daemonctl.LaunchOptions
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the background recorder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			restartOpts.ConfigPath = ctx.configPath
			result, err := daemonctl.Restart(cfg, exe, restartOpts, 15*time.Second, 10*time.Second)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result.WasRunning {
				fmt.Fprintf(out, "Recorder stopped (pid %d)\n", result.Stop.PID)
			}
			fmt.Fprintf(out, "Recorder restarted (pid %d)\n", result.Start.PID)
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartOpts.LogLevel, "log-level", "", "Override the configured log level")
	restartCmd.Flags().BoolVar(&restartOpts.Synthetic, "synthetic", false, "Restart in synthetic mode")

	return []*cobra.Command{startCmd, stopCmd, restartCmd}
}
