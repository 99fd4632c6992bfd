package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/diddy-rotations/svsync/internal/config"
	"github.com/diddy-rotations/svsync/internal/history"
	"github.com/diddy-rotations/svsync/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// errHistoryDisabled indicates dev.ini has no [history] path.
var errHistoryDisabled = errors.New("sync history is disabled, set [history] path in dev.ini")

var historyCmd = &cobra.Command{
	Use:     "history",
	GroupID: "info",
	Short:   "Show recent syncs",
	Long: `Show the most recent syncs recorded by 'svsync watch' and 'svsync sync'.

Requires [history] path in dev.ini.

Examples:
  svsync history                  # last 20 syncs as a table
  svsync history -n 100 -f json   # machine-readable`,
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		if err := runHistory(cmd.Context(), os.Stdout, mustLoadConfig(), limit, format); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Number of entries to show (0 for all)")
	historyCmd.Flags().StringP("format", "f", "table", "Output format: table, json, yaml")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(ctx context.Context, w io.Writer, cfg *config.Config, limit int, format string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.History.Path == "" {
		return errHistoryDisabled
	}
	if _, err := os.Stat(cfg.History.Path); os.IsNotExist(err) {
		fmt.Fprintf(w, "%s No syncs recorded yet\n", ui.RenderWarn("⚠"))
		return nil
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	return writeHistory(w, entries, format)
}

func writeHistory(w io.Writer, entries []history.Entry, format string) error {
	switch strings.ToLower(format) {
	case "json":
		if entries == nil {
			entries = []history.Entry{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)

	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()

	case "table", "":
		if len(entries) == 0 {
			fmt.Fprintf(w, "%s No syncs recorded yet\n", ui.RenderWarn("⚠"))
			return nil
		}
		fmt.Fprintln(w, historyTable(entries))
		return nil

	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

func historyTable(entries []history.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		result := ui.RenderPass("ok")
		if e.Failed() {
			result = ui.RenderFail(e.Error)
		}
		rows = append(rows, []string{
			e.StartedAt.Local().Format(time.DateTime),
			e.Trigger,
			strings.Join(e.Units, ", "),
			fmt.Sprintf("%dms", e.DurationMS),
			fmt.Sprintf("%d", e.Bytes),
			result,
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(ui.MutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return ui.BoldStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("STARTED", "TRIGGER", "UNITS", "DURATION", "BYTES", "RESULT").
		Rows(rows...).
		String()
}
