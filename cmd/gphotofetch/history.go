package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gphotofetch/pkg/ui"
)

var (
	historyLimit    int
	historyFailures bool
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs from the journal",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of runs to show")
	historyCmd.Flags().BoolVar(&historyFailures, "failures", false, "list the failed months and items of each run")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	if _, err := setupLogging(cfg); err != nil {
		return err
	}

	j, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer j.Close()

	ctx := cmd.Context()
	runs, err := j.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ui.PrintInfo("History", "no runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tRANGE\tSEEN\tDOWNLOADED\tSKIPPED\tFAILED\tBYTES\tDURATION")
	for _, r := range runs {
		duration := "running or interrupted"
		if !r.Finished.IsZero() {
			duration = ui.FormatDuration(r.Finished.Sub(r.Started))
		}
		failed := fmt.Sprintf("%d", r.Totals.Failed)
		if r.Totals.FailedBuckets > 0 {
			failed += fmt.Sprintf(" (+%d months)", r.Totals.FailedBuckets)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			humanize.Time(r.Started), r.Range, r.Totals.Seen, r.Totals.Downloaded,
			r.Totals.Skipped, failed, humanize.Bytes(uint64(r.Totals.Bytes)), duration)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !historyFailures {
		return nil
	}
	for _, r := range runs {
		failures, err := j.Failures(ctx, r.ID)
		if err != nil {
			return err
		}
		if len(failures) == 0 {
			continue
		}
		fmt.Printf("\n%s %s\n", ui.Cyan(r.Range), ui.Dim(r.ID))
		for _, f := range failures {
			fmt.Printf("  %s %s: %s\n", f.Kind, f.Key, f.Error)
		}
	}
	return nil
}
