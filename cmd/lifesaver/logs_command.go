package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lifesaver/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		raw    bool
		filter logs.Filter
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recorder logs",
		Long:  "Logs reads the newest daily log file in the log directory. It works whether or not the recorder is running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := logs.Latest(cfg.Paths.LogDir)
			if err != nil {
				return err
			}
			if path == "" && !follow {
				fmt.Fprintln(cmd.OutOrStdout(), "No log files yet")
				return nil
			}

			out := cmd.OutOrStdout()
			opts := logs.TailOptions{Offset: -1, Limit: lines, Filter: filter}
			result, err := logs.Tail(cmd.Context(), path, opts)
			if err != nil {
				return err
			}
			printEntries(out, result.Entries, raw)
			if !follow {
				return nil
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return followLogs(signalCtx, out, cfg.Paths.LogDir, path, result.Offset, filter, raw)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing entries to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the stored JSON lines unchanged")
	cmd.Flags().StringVar(&filter.SessionID, "session", "", "Only entries for this session id (prefix match)")
	cmd.Flags().StringVar(&filter.Component, "component", "", "Only entries from this component")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Minimum level (debug, info, warn, error)")
	return cmd
}

// followLogs polls for new entries, moving to the next daily file when the
// date rolls over.
func followLogs(ctx context.Context, out io.Writer, dir, path string, offset int64, filter logs.Filter, raw bool) error {
	for {
		if latest, err := logs.Latest(dir); err == nil && latest != "" && latest != path {
			path, offset = latest, 0
		}
		if path == "" {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		result, err := logs.Tail(ctx, path, logs.TailOptions{
			Offset: offset,
			Follow: true,
			Wait:   2 * time.Second,
			Filter: filter,
		})
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
		printEntries(out, result.Entries, raw)
		offset = result.Offset
	}
}

func printEntries(out io.Writer, entries []logs.Entry, raw bool) {
	for _, e := range entries {
		if raw || e.Time.IsZero() {
			fmt.Fprintln(out, e.Raw)
			continue
		}
		var b strings.Builder
		b.WriteString(e.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteString(" ")
		fmt.Fprintf(&b, "%-5s", strings.ToUpper(e.Level))
		if e.Component != "" {
			b.WriteString(" [" + e.Component + "]")
		}
		b.WriteString(" " + e.Msg)
		if e.SessionID != "" {
			b.WriteString(" session=" + e.SessionID)
		}
		fmt.Fprintln(out, b.String())
	}
}
