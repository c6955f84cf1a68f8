package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lifesaver/internal/config"
	"lifesaver/internal/ipc"
	"lifesaver/internal/journal"
	"lifesaver/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorder state, counters and event totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var live *ipc.StatusResponse
			dialErr := ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				live = resp
				return err
			})
			if live == nil {
				return offlineStatus(cmd, cfg, asJSON, dialErr)
			}
			if asJSON {
				return writeJSON(cmd, live)
			}
			renderLiveStatus(cmd.OutOrStdout(), live, wantsColor(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func renderLiveStatus(out io.Writer, s *ipc.StatusResponse, colorize bool) {
	fmt.Fprintln(out, sectionHeader("Recorder", colorize))
	fmt.Fprintln(out, statusLine("Process", stateOK, fmt.Sprintf("Running (pid %d)", s.PID), colorize))
	fmt.Fprintln(out, statusLine("Uptime", stateInfo, time.Since(s.StartedAt).Round(time.Second).String(), colorize))
	fmt.Fprintln(out, statusLine("Source", stateInfo, s.Device, colorize))
	fmt.Fprintln(out, statusLine("Pre-roll", stateInfo, fmt.Sprintf("%d/%d frames", s.BufferedFrames, s.BufferCapacity), colorize))
	if s.Active != nil {
		detail := fmt.Sprintf("%s %s (%d pre-roll, %d live)", s.Active.ID, humanize(s.Active.Status), s.Active.PreRollFrames, s.Active.LiveFrames)
		fmt.Fprintln(out, statusLine("Session", stateWarn, detail, colorize))
	} else {
		fmt.Fprintln(out, statusLine("Session", stateOK, "Idle", colorize))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, sectionHeader("Counters", colorize))
	rows := [][]string{
		{"Frames captured", strconv.FormatUint(s.FramesCaptured, 10)},
		{"Sessions started", strconv.FormatUint(s.SessionsStarted, 10)},
		{"Sessions succeeded", strconv.FormatUint(s.SessionsSucceeded, 10)},
		{"Sessions failed", strconv.FormatUint(s.SessionsFailed, 10)},
		{"Triggers ignored", strconv.FormatUint(s.TriggersIgnored, 10)},
		{"Hand-off overruns", strconv.FormatUint(s.Overruns, 10)},
	}
	fmt.Fprint(out, renderTable([]string{"Counter", "Value"}, rows, 1))
	fmt.Fprintln(out)
	renderEventCounts(out, s.EventCounts, colorize)
}

func renderEventCounts(out io.Writer, counts map[string]int, colorize bool) {
	fmt.Fprintln(out, sectionHeader("Events", colorize))
	if len(counts) == 0 {
		fmt.Fprintln(out, "No events recorded")
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{humanize(k), strconv.Itoa(counts[k])})
	}
	fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, 1))
}

type offlineStatusView struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid,omitempty"`
	Detail      string         `json:"detail"`
	EventCounts map[string]int `json:"event_counts,omitempty"`
}

// offlineStatus reports what can be learned without the recorder socket: the
// instance lock and the journal.
func offlineStatus(cmd *cobra.Command, cfg *config.Config, asJSON bool, dialErr error) error {
	proc, err := preflight.ProbeRecorder(cfg)
	if err != nil {
		return err
	}
	view := offlineStatusView{Running: proc.Running, PID: proc.PID, Detail: proc.Detail()}
	if proc.Running && dialErr != nil {
		view.Detail += "; socket unavailable: " + dialErr.Error()
	}
	if store, err := journal.Open(cfg); err == nil {
		view.EventCounts, _ = store.Counts(context.Background())
		store.Close()
	}
	if asJSON {
		return writeJSON(cmd, view)
	}

	out := cmd.OutOrStdout()
	colorize := wantsColor(out)
	state := stateWarn
	if proc.Running {
		state = stateFail
	}
	fmt.Fprintln(out, sectionHeader("Recorder", colorize))
	fmt.Fprintln(out, statusLine("Process", state, view.Detail, colorize))
	fmt.Fprintln(out)
	renderEventCounts(out, view.EventCounts, colorize)
	return nil
}

func newTriggerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Start an event recording now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Trigger()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case resp.Busy:
					fmt.Fprintln(out, "A recording is already in progress; trigger ignored")
				case resp.Message != "":
					fmt.Fprintln(out, resp.Message)
				default:
					fmt.Fprintln(out, "Trigger sent")
				}
				return nil
			})
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through the running recorder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case resp.Message != "":
					fmt.Fprintln(out, resp.Message)
				case resp.Sent:
					fmt.Fprintln(out, "Test notification sent")
				default:
					fmt.Fprintln(out, "Notification not sent")
				}
				return nil
			})
		},
	}
}
