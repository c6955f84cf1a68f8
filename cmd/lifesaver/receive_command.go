package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"lifesaver/internal/logging"
	"lifesaver/internal/receiver"
)

func newReceiveCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var dir string

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Run the upload receiver",
		Long:  "Receive accepts event uploads from recorders using the http transport and stores them with timestamped names.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			settings := cfg.Receiver
			if strings.TrimSpace(bind) != "" {
				settings.Bind = bind
			}
			if strings.TrimSpace(dir) != "" {
				settings.UploadsDir = dir
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			logger = logging.NewComponentLogger(logger, "receiver")

			srv, err := receiver.New(settings, logger)
			if err != nil {
				return err
			}
			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(signalCtx, settings.Bind)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (overrides receiver.bind)")
	cmd.Flags().StringVar(&dir, "dir", "", "Uploads directory (overrides receiver.uploads_dir)")
	return cmd
}
