package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/gremio/internal/batch"
)

var bulkCmd = &cobra.Command{
	Use:   "bulk-update",
	Short: "Re-investigate every tracked union, saving each as it completes",
	Long: `Refreshes the profile of every tracked union in name order. Unions are
processed one at a time with a pause (--cooldown) after each success.
A failure is reported and the run moves on. Interrupting stops the run after
the union in progress.`,
	Args: cobra.NoArgs,
	RunE: runBulk,
}

func runBulk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	updates, err := a.in.BulkRefreshStream(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var report *batch.Report
	for u := range updates {
		switch {
		case u.Progress != nil && !jsonOutput:
			fmt.Fprintf(out, "[%d/%d] %s ... ", u.Progress.Index, u.Progress.Total, u.Progress.Name)
		case u.Outcome != nil && !jsonOutput:
			if u.Outcome.OK {
				fmt.Fprintf(out, "ok (%s)\n", u.Outcome.Duration.Round(100 * time.Millisecond))
			} else {
				fmt.Fprintf(out, "failed: %s\n", u.Outcome.Error)
			}
		case u.Report != nil:
			report = u.Report
		}
	}
	if report == nil {
		return fmt.Errorf("bulk update ended without a report")
	}
	if jsonOutput {
		return printJSON(out, report)
	}

	fmt.Fprintf(out, "\n%d succeeded, %d failed", report.Succeeded, report.Failed)
	if report.Canceled {
		fmt.Fprintf(out, ", canceled after %d of %d", report.Attempted, report.Total)
	}
	fmt.Fprintf(out, " (%s)\n", report.Duration.Round(time.Second))
	return nil
}
