package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/internal/scheduler"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

var (
	watchCron   string
	watchLimit  int
	watchDryRun bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process tags on a cron schedule until interrupted",
	Long: `Run the tag workflow on a schedule.

Each run processes one batch, then evaluates alerts and sends them to the
configured Slack webhook. Flags default to the schedule section of
.taskflow.yaml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireStore(); err != nil {
			return err
		}

		cfg := scheduleConfig(cmd)
		sched, err := scheduler.NewFromConfig(cfg, scheduler.WithLogger(Logger))
		if err != nil {
			return fmt.Errorf("configuring schedule: %w", err)
		}

		out := cmd.OutOrStdout()
		opts := core.BatchOptions{Limit: cfg.Limit, DryRun: cfg.DryRun}
		sched.AddJob(func(ctx context.Context) error {
			return scheduledRun(ctx, out, opts)
		})

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		fmt.Fprintf(out, "Watching on %q, next run at %s. Press Ctrl+C to stop.\n",
			cfg.Cron, sched.NextRun().Format(time.RFC3339))

		<-ctx.Done()
		if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrNotRunning) {
			return fmt.Errorf("stopping scheduler: %w", err)
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchCron, "cron", "", "Cron expression, e.g. \"*/15 * * * *\" (default from config)")
	watchCmd.Flags().IntVar(&watchLimit, "limit", 0, "Maximum number of tasks per run (default from config)")
	watchCmd.Flags().BoolVar(&watchDryRun, "dry-run", false, "Report actions without changing any task")
	rootCmd.AddCommand(watchCmd)
}

// scheduleConfig merges the watch flags over the configured schedule.
func scheduleConfig(cmd *cobra.Command) models.ScheduleConfig {
	var cfg models.ScheduleConfig
	if Config != nil {
		cfg = Config.Schedule
	}
	if cmd.Flags().Changed("cron") {
		cfg.Cron = watchCron
	}
	if cmd.Flags().Changed("limit") {
		cfg.Limit = watchLimit
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = watchDryRun
	}
	return cfg
}

// scheduledRun processes one batch, prints a one-line summary and forwards
// any active alerts to the notifier.
func scheduledRun(ctx context.Context, w io.Writer, opts core.BatchOptions) error {
	report, err := runBatch(ctx, opts)
	if report != nil {
		var ok, failed, skipped int
		for _, tr := range report.Results {
			s, f, k := tr.Counts()
			ok += s
			failed += f
			skipped += k
		}
		fmt.Fprintf(w, "%s run %s: %d task(s), %d succeeded, %d failed, %d skipped\n",
			report.FinishedAt.Format(time.RFC3339), report.RunID, report.TasksProcessed, ok, failed, skipped)
	}
	if err != nil {
		return fmt.Errorf("scheduled batch: %w", err)
	}

	if AlertEngine == nil || Notifier == nil {
		return nil
	}
	alerts, err := AlertEngine.Evaluate()
	if err != nil {
		return fmt.Errorf("evaluating alerts: %w", err)
	}
	if err := Notifier.Notify(ctx, alerts); err != nil {
		return fmt.Errorf("sending alert notification: %w", err)
	}
	return nil
}
