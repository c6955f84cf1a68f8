package main

import (
	"errors"

	"github.com/spf13/cobra"

	"lifesaver/internal/daemonrun"
)

// exitAlreadyRunning is returned when another recorder holds the lock.
const exitAlreadyRunning = 3

type exitError struct {
	err  error
	code int
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }
func (e exitError) ExitCode() int { return e.code }

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the recorder in the foreground",
		Long: "Run captures frames continuously and records an event each time the trigger fires.\n" +
			"With --synthetic the camera, shock sensor and gpsd are replaced by in-process stand-ins\n" +
			"so the encoder and hand-off path can be exercised on any machine.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if opts.TriggerEvery > 0 && !opts.Synthetic {
				return errors.New("--trigger-every requires --synthetic")
			}
			err = daemonrun.Run(cmd.Context(), cfg, opts)
			if errors.Is(err, daemonrun.ErrAlreadyRunning) {
				return exitError{err: err, code: exitAlreadyRunning}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Synthetic, "synthetic", false, "Use a test pattern, a simulated trigger and fixed location fixes")
	cmd.Flags().DurationVar(&opts.TriggerEvery, "trigger-every", 0, "Fire the simulated trigger on this interval (synthetic mode only)")
	return cmd
}
