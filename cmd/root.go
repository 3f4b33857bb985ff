package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "feederctl",
	Short: "Operate the cloud-connected pet feeder",
	Long: `feederctl - operations CLI for the pet feeder backend

Manages feeding schedules, triggers manual feeds, and inspects feed and
execution history against the live AWS tables.

Examples:
  # Feed two cycles right now
  feederctl feed now --cycles 2 --requested-by you@example.com

  # Feed every evening at 18:30 New York time
  feederctl schedule create --time "2025-10-18T18:30:00" \
    --timezone "America/New_York" --recurrence daily --requested-by you@example.com

  # See what the executor would have done, once
  feederctl schedule run

  # Recent feed activity
  feederctl feed history --limit 20`,
	Version: Version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
