package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type checkState int

const (
	stateInfo checkState = iota
	stateOK
	stateWarn
	stateFail
)

const labelWidth = 18

var titleCaser = cases.Title(language.English)

// humanize turns snake_case identifiers such as "recording_live" into
// "Recording Live".
func humanize(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "_", " "))
	if value == "" {
		return "-"
	}
	return titleCaser.String(value)
}

func (s checkState) label() string {
	switch s {
	case stateOK:
		return "OK"
	case stateWarn:
		return "WARN"
	case stateFail:
		return "FAIL"
	default:
		return "INFO"
	}
}

func (s checkState) color() text.Colors {
	switch s {
	case stateOK:
		return text.Colors{text.FgGreen}
	case stateWarn:
		return text.Colors{text.FgYellow}
	case stateFail:
		return text.Colors{text.FgRed}
	default:
		return text.Colors{text.FgBlue}
	}
}

// statusLine renders "  Label:   [OK] detail", colored when writing to a
// terminal.
func statusLine(label string, state checkState, detail string, colorize bool) string {
	badge := "[" + state.label() + "]"
	if detail != "" {
		badge += " " + detail
	}
	line := fmt.Sprintf("  %-*s %s", labelWidth, label+":", badge)
	if colorize {
		return state.color().Sprint(line)
	}
	return line
}

func sectionHeader(title string, colorize bool) string {
	heading := "== " + title + " =="
	if colorize {
		return text.Colors{text.Bold, text.FgBlue}.Sprint(heading)
	}
	return heading
}

func wantsColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// renderTable draws rows under headers. Columns listed in numeric are right
// aligned.
func renderTable(headers []string, rows [][]string, numeric ...int) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(numeric))
	for _, col := range numeric {
		configs = append(configs, table.ColumnConfig{Number: col + 1, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render() + "\n"
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
