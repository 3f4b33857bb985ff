package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/whiskertech/petfeeder/pkg/executor"
	"github.com/whiskertech/petfeeder/pkg/schedule"
	"github.com/whiskertech/petfeeder/pkg/store"
)

var (
	scheduleTime        string
	scheduleTimezone    string
	scheduleRecurrence  string
	scheduleCycles      int
	scheduleRequestedBy string
	scheduleDisabled    bool
	schedulePage        int
	schedulePageSize    int
	scheduleOwner       string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage feeding schedules",
	Long: `Create, list, and manage feeding schedules.

Schedules are evaluated by the schedule executor roughly once a minute.
Times may be given naive (interpreted in --timezone) or with an explicit
offset; either way they are stored in UTC.

Examples:
  # One-time feed tomorrow at 07:00 local
  feederctl schedule create --time "2025-10-19T07:00:00" \
    --timezone "Europe/Berlin" --requested-by you@example.com

  # Recurring monthly (day-of-month clamps, Jan 31 -> Feb 28)
  feederctl schedule create --time "2025-01-31T14:00:00Z" \
    --recurrence monthly --requested-by you@example.com

  # Pause and resume
  feederctl schedule disable <schedule-id>
  feederctl schedule enable <schedule-id>`,
}

var scheduleCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new feeding schedule",
	RunE:  runScheduleCreate,
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List feeding schedules",
	RunE:  runScheduleList,
}

var scheduleGetCmd = &cobra.Command{
	Use:   "get <schedule-id>",
	Short: "Show one schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleGet,
}

var scheduleUpdateCmd = &cobra.Command{
	Use:   "update <schedule-id>",
	Short: "Update a schedule",
	Long: `Update a schedule's time, cycles, or recurrence.

Changing the time clears the execution guard, so the new occurrence is
eligible to fire even if the old one already did.`,
	Args: cobra.ExactArgs(1),
	RunE: runScheduleUpdate,
}

var scheduleDeleteCmd = &cobra.Command{
	Use:   "delete <schedule-id>",
	Short: "Delete a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runScheduleDelete,
}

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable <schedule-id>",
	Short: "Enable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleEnabled(cmd.Context(), args[0], true)
	},
}

var scheduleDisableCmd = &cobra.Command{
	Use:   "disable <schedule-id>",
	Short: "Disable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleEnabled(cmd.Context(), args[0], false)
	},
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one executor pass from this machine",
	Long: `Run a single schedule executor pass against the live tables,
exactly as the scheduled Lambda would: scan enabled schedules, fire the
due ones, advance recurrence state, and print the run summary.`,
	RunE: runScheduleRun,
}

func init() {
	scheduleCreateCmd.Flags().StringVar(&scheduleTime, "time", "", "scheduled time, ISO 8601 (required)")
	scheduleCreateCmd.Flags().StringVar(&scheduleTimezone, "timezone", "UTC", "IANA timezone for naive times")
	scheduleCreateCmd.Flags().StringVar(&scheduleRecurrence, "recurrence", "none", "none, daily, weekly, or monthly")
	scheduleCreateCmd.Flags().IntVar(&scheduleCycles, "cycles", 1, "feed cycles per firing (1-10)")
	scheduleCreateCmd.Flags().StringVar(&scheduleRequestedBy, "requested-by", "", "owner identity (required)")
	scheduleCreateCmd.Flags().BoolVar(&scheduleDisabled, "disabled", false, "create the schedule disabled")
	scheduleCreateCmd.MarkFlagRequired("time")
	scheduleCreateCmd.MarkFlagRequired("requested-by")

	scheduleListCmd.Flags().IntVar(&schedulePage, "page", 1, "page number")
	scheduleListCmd.Flags().IntVar(&schedulePageSize, "page-size", 20, "schedules per page")
	scheduleListCmd.Flags().StringVar(&scheduleOwner, "requested-by", "", "filter by owner")

	scheduleUpdateCmd.Flags().StringVar(&scheduleTime, "time", "", "new scheduled time, ISO 8601")
	scheduleUpdateCmd.Flags().StringVar(&scheduleTimezone, "timezone", "", "IANA timezone for naive times")
	scheduleUpdateCmd.Flags().StringVar(&scheduleRecurrence, "recurrence", "", "none, daily, weekly, or monthly")
	scheduleUpdateCmd.Flags().IntVar(&scheduleCycles, "cycles", 0, "feed cycles per firing (1-10)")

	scheduleCmd.AddCommand(scheduleCreateCmd, scheduleListCmd, scheduleGetCmd,
		scheduleUpdateCmd, scheduleDeleteCmd, scheduleEnableCmd, scheduleDisableCmd,
		scheduleRunCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleCreate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := newBackend(ctx)
	if err != nil {
		return err
	}

	rec, err := b.schedules.Create(ctx, store.CreateScheduleInput{
		RequestedBy:   scheduleRequestedBy,
		ScheduledTime: scheduleTime,
		FeedCycles:    scheduleCycles,
		Recurrence:    schedule.Recurrence(scheduleRecurrence),
		Enabled:       !scheduleDisabled,
		Timezone:      scheduleTimezone,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created schedule %s\n", rec.ScheduleID)
	fmt.Printf("  Fires at:   %s (entered as %s %s)\n", rec.ScheduledTime, scheduleTime, rec.Timezone)
	fmt.Printf("  Recurrence: %s\n", rec.Recurrence)
	fmt.Printf("  Cycles:     %d\n", rec.FeedCycles)
	return nil
}

func runScheduleList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := newBackend(ctx)
	if err != nil {
		return err
	}

	page, err := b.schedules.List(ctx, schedulePage, schedulePageSize, scheduleOwner)
	if err != nil {
		return err
	}

	if len(page.Schedules) == 0 {
		fmt.Println("No schedules found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SCHEDULE ID\tSCHEDULED (UTC)\tRECURRENCE\tCYCLES\tENABLED\tLAST EXECUTED\tOWNER")
	for _, s := range page.Schedules {
		last := s.LastExecutedAt
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%s\t%s\n",
			s.ScheduleID, s.ScheduledTime, s.Recurrence, s.FeedCycles, s.Enabled, last, s.RequestedBy)
	}
	w.Flush()

	fmt.Printf("\nPage %d of %d (%d total)\n", page.Page,
		(page.Total+page.PageSize-1)/page.PageSize, page.Total)
	return nil
}

func runScheduleGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := newBackend(ctx)
	if err != nil {
		return err
	}

	rec, err := b.schedules.Get(ctx, args[0])
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runScheduleUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := newBackend(ctx)
	if err != nil {
		return err
	}

	var in store.UpdateScheduleInput
	if cmd.Flags().Changed("time") {
		in.ScheduledTime = &scheduleTime
	}
	if cmd.Flags().Changed("timezone") {
		in.Timezone = &scheduleTimezone
	}
	if cmd.Flags().Changed("recurrence") {
		rec := schedule.Recurrence(scheduleRecurrence)
		in.Recurrence = &rec
	}
	if cmd.Flags().Changed("cycles") {
		in.FeedCycles = &scheduleCycles
	}

	rec, err := b.schedules.Update(ctx, args[0], in)
	if err != nil {
		return err
	}

	fmt.Printf("Updated schedule %s; next fires at %s\n", rec.ScheduleID, rec.ScheduledTime)
	return nil
}

func runScheduleDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := newBackend(ctx)
	if err != nil {
		return err
	}

	if err := b.schedules.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted schedule %s\n", args[0])
	return nil
}

func setScheduleEnabled(ctx context.Context, scheduleID string, enabled bool) error {
	b, err := newBackend(ctx)
	if err != nil {
		return err
	}

	rec, err := b.schedules.SetEnabled(ctx, scheduleID, enabled)
	if err != nil {
		return err
	}

	state := "disabled"
	if rec.Enabled {
		state = "enabled"
	}
	fmt.Printf("Schedule %s is now %s\n", rec.ScheduleID, state)
	return nil
}

func runScheduleRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := newBackend(ctx)
	if err != nil {
		return err
	}

	gw, err := b.gateway(ctx)
	if err != nil {
		return err
	}

	exec := executor.New(b.schedules, b.history, gw, executor.Config{
		ToleranceMinutes:  b.cfg.ToleranceMinutes,
		MaxOverdueMinutes: b.cfg.MaxOverdueMinutes,
	})

	summary, err := exec.Run(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
