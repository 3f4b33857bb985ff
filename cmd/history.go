package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <schedule-id>",
	Short: "Show the execution history of a schedule",
	Long: `List execution attempts for one schedule, newest first.

Each attempt shows the occurrence that was due (scheduled time), when the
executor acted on it, and the outcome. A failed record whose schedule
still advanced is the signal to investigate a duplicate dispense.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum records to show (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := newBackend(ctx)
	if err != nil {
		return err
	}

	records, err := b.history.ListBySchedule(ctx, args[0], historyLimit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println("No execution history for this schedule.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXECUTED AT\tOCCURRENCE\tSTATUS\tCYCLES\tERROR")
	for _, rec := range records {
		errMsg := rec.ErrorMessage
		if errMsg == "" {
			errMsg = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			rec.ExecutedAt, rec.ScheduledTime, rec.Status, rec.FeedCycles, errMsg)
	}
	w.Flush()
	return nil
}
