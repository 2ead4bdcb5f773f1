package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/broadcast/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent submissions",
	Long: `Show the latest entries of the submission journal, newest first.

The journal is locked while "broadcast serve" is running.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show (0 for all)")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.History.Enabled() {
		return fmt.Errorf("history is disabled (history.path is empty)")
	}

	storage, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer storage.Close()

	entries, err := storage.List(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No submissions recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSOURCE\tSTATUS\tGROUPS\tDURATION\tMESSAGE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			e.Source,
			e.Status,
			len(e.Groups),
			time.Duration(e.DurationMs)*time.Millisecond,
			summarize(e),
		)
	}
	return w.Flush()
}

// summarize returns one line describing the entry: the error for failures,
// the message preview otherwise
func summarize(e *history.Entry) string {
	text := e.Preview
	if e.Status == history.StatusFailed && e.Error != "" {
		text = e.Error
	}
	return strings.Join(strings.Fields(text), " ")
}
