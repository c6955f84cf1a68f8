package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lifesaver/internal/ipc"
	"lifesaver/internal/journal"
	"lifesaver/internal/recorder"
	"lifesaver/internal/retention"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect recorded events",
	}
	eventsCmd.AddCommand(newEventsListCommand(ctx))
	eventsCmd.AddCommand(newEventsShowCommand(ctx))
	eventsCmd.AddCommand(newEventsPruneCommand(ctx))
	return eventsCmd
}

func newEventsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var failedOnly bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List recent events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJournal(func(store *journal.Store) error {
				events, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				views := make([]ipc.EventView, 0, len(events))
				for _, ev := range events {
					if failedOnly && !ev.Failed && ev.UploadStatus != journal.UploadFailed {
						continue
					}
					views = append(views, ipc.FromEvent(ev))
				}
				if asJSON {
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No events recorded")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						v.SessionID,
						formatTime(v.TriggeredAt),
						eventOutcome(v),
						strconv.FormatInt(v.FramesWritten, 10),
						strconv.Itoa(v.Fixes),
						humanize(v.UploadStatus),
					})
				}
				fmt.Fprint(out, renderTable([]string{"Session", "Triggered", "Recording", "Frames", "Fixes", "Upload"}, rows, 3, 4))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of events to show (0 for all)")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show events whose recording or upload failed")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON")
	return cmd
}

func newEventsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one event in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJournal(func(store *journal.Store) error {
				ev, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ev == nil {
					return errors.New("event " + strconv.Quote(args[0]) + " not found")
				}
				if asJSON {
					return writeJSON(cmd, ipc.FromEvent(*ev))
				}
				out := cmd.OutOrStdout()
				colorize := wantsColor(out)
				state := stateOK
				if ev.Failed || ev.UploadStatus == journal.UploadFailed {
					state = stateFail
				}
				fmt.Fprintln(out, sectionHeader("Event "+orDash(ev.SessionID), colorize))
				fmt.Fprintln(out, statusLine("Outcome", state, eventOutcome(ipc.FromEvent(*ev)), colorize))
				fmt.Fprintln(out, statusLine("Correlation", stateInfo, ev.CorrelationID, colorize))
				fmt.Fprintln(out, statusLine("Triggered", stateInfo, formatTime(ev.TriggeredAt), colorize))
				fmt.Fprintln(out, statusLine("Closed", stateInfo, formatOptionalTime(ev.ClosedAt), colorize))
				fmt.Fprintln(out, statusLine("Frames", stateInfo, fmt.Sprintf("%d written (%d pre-roll, %d live)", ev.FramesWritten, ev.PreRollFrames, ev.LiveFrames), colorize))
				fmt.Fprintln(out, statusLine("Location fixes", stateInfo, strconv.Itoa(ev.Fixes), colorize))
				fmt.Fprintln(out, statusLine("Video", stateInfo, orDash(ev.VideoPath), colorize))
				if ev.IncompletePath != "" {
					fmt.Fprintln(out, statusLine("Incomplete", stateWarn, ev.IncompletePath, colorize))
				}
				if ev.ErrorMessage != "" {
					fmt.Fprintln(out, statusLine("Error", stateFail, humanize(ev.ErrorKind)+": "+ev.ErrorMessage, colorize))
				}
				uploadState := stateInfo
				switch ev.UploadStatus {
				case journal.UploadDone:
					uploadState = stateOK
				case journal.UploadFailed:
					uploadState = stateFail
				}
				uploadDetail := humanize(ev.UploadStatus)
				if ev.UploadTransport != "" {
					uploadDetail += " via " + ev.UploadTransport
				}
				if ev.UploadError != "" {
					uploadDetail += ": " + ev.UploadError
				}
				fmt.Fprintln(out, statusLine("Upload", uploadState, uploadDetail, colorize))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the event as JSON")
	return cmd
}

func newEventsPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete event directories older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			maxAge := olderThan
			if maxAge <= 0 {
				maxAge = time.Duration(cfg.Recording.RetentionDays) * 24 * time.Hour
			}
			if maxAge <= 0 {
				return errors.New("no retention window: pass --older-than or set recording.retention_days")
			}
			result := retention.Prune(cmd.Context(), cfg.Paths.OutputDir, retention.PruneOptions{
				MaxAge: maxAge,
				DryRun: dryRun,
			}, nil)

			out := cmd.OutOrStdout()
			verb := "Removed"
			if dryRun {
				verb = "Would remove"
			}
			for _, path := range result.Removed {
				fmt.Fprintf(out, "%s %s\n", verb, path)
			}
			fmt.Fprintf(out, "%s %d event directories (%s)\n", verb, len(result.Removed), formatBytes(result.Freed))
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d directories could not be removed; first: %s: %w",
					len(result.Errors), result.Errors[0].Path, result.Errors[0].Error)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age threshold (defaults to recording.retention_days)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be removed without deleting")
	return cmd
}

// eventOutcome summarizes the recording half of an event.
func eventOutcome(v ipc.EventView) string {
	switch {
	case v.Failed && v.ErrorKind != "":
		return "Failed (" + humanize(v.ErrorKind) + ")"
	case v.Failed:
		return "Failed"
	case v.Status != string(recorder.StatusClosed):
		return humanize(v.Status)
	default:
		return "Recorded"
	}
}
