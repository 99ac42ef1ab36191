package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/internal/observability"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

func TestScheduleConfig_FlagsOverrideConfig(t *testing.T) {
	origCfg, origCron, origLimit, origDry := Config, watchCron, watchLimit, watchDryRun
	t.Cleanup(func() {
		Config, watchCron, watchLimit, watchDryRun = origCfg, origCron, origLimit, origDry
	})
	Config = &models.Config{Schedule: models.ScheduleConfig{Cron: "0 * * * *", Limit: 5}}

	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{}
		cmd.Flags().StringVar(&watchCron, "cron", "", "")
		cmd.Flags().IntVar(&watchLimit, "limit", 0, "")
		cmd.Flags().BoolVar(&watchDryRun, "dry-run", false, "")
		return cmd
	}

	got := scheduleConfig(newCmd())
	if got.Cron != "0 * * * *" || got.Limit != 5 || got.DryRun {
		t.Errorf("defaults not taken from config: %+v", got)
	}

	cmd := newCmd()
	for flag, value := range map[string]string{"cron": "*/5 * * * *", "dry-run": "true"} {
		if err := cmd.Flags().Set(flag, value); err != nil {
			t.Fatal(err)
		}
	}
	got = scheduleConfig(cmd)
	if got.Cron != "*/5 * * * *" || got.Limit != 5 || !got.DryRun {
		t.Errorf("flags not applied: %+v", got)
	}
}

func TestWatchCmd_StoreNotInitialized(t *testing.T) {
	withoutStore(t, nil)

	_, err := runCommand(t, watchCmd)
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected not initialized error, got %v", err)
	}
}

func TestScheduledRun_NotifiesAlerts(t *testing.T) {
	withFileStore(t)
	var notified int
	withAlerts(t,
		&alertsMock{evaluateFn: func() ([]observability.Alert, error) { return sampleAlerts(), nil }},
		&notifierMock{notifyFn: func(alerts []observability.Alert) error {
			notified = len(alerts)
			return nil
		}},
	)

	var out strings.Builder
	err := scheduledRun(context.Background(), &out, core.BatchOptions{DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "run run-1: 2 task(s), 4 succeeded, 0 failed, 1 skipped") {
		t.Errorf("unexpected summary: %q", out.String())
	}
	if notified != 2 {
		t.Errorf("notified %d alerts, want 2", notified)
	}
}

func TestScheduledRun_WithoutAlertEngine(t *testing.T) {
	withFileStore(t)
	withAlerts(t, nil, nil)

	var out strings.Builder
	if err := scheduledRun(context.Background(), &out, core.BatchOptions{DryRun: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestScheduledRun_Errors(t *testing.T) {
	t.Run("cancelled batch", func(t *testing.T) {
		withFileStore(t)
		withAlerts(t, nil, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := scheduledRun(ctx, &strings.Builder{}, core.BatchOptions{DryRun: true})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("alert evaluation", func(t *testing.T) {
		withFileStore(t)
		withAlerts(t,
			&alertsMock{evaluateFn: func() ([]observability.Alert, error) { return nil, fmt.Errorf("bad log") }},
			observability.NopNotifier{},
		)

		err := scheduledRun(context.Background(), &strings.Builder{}, core.BatchOptions{DryRun: true})
		if err == nil || !strings.Contains(err.Error(), "evaluating alerts") {
			t.Errorf("expected alert error, got %v", err)
		}
	})
}
