package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valter-silva-au/taskflow/pkg/models"
)

// every fires at a fixed sub-second interval so tests stay fast.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cron    string
		wantErr error
		anyErr  bool
	}{
		{"standard", "*/15 * * * *", nil, false},
		{"descriptor", "@hourly", nil, false},
		{"every", "@every 5m", nil, false},
		{"empty", "", ErrNoSchedule, true},
		{"invalid", "not a cron", nil, true},
		{"six fields", "0 */15 * * * *", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewFromConfig(models.ScheduleConfig{Cron: tt.cron})
			if (err != nil) != tt.anyErr {
				t.Fatalf("NewFromConfig(%q) error = %v, wantErr %v", tt.cron, err, tt.anyErr)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && s.cronExpr != tt.cron {
				t.Errorf("cronExpr = %q, want %q", s.cronExpr, tt.cron)
			}
		})
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := New()
	if err := s.SetCron("* * * * *"); err != nil {
		t.Fatalf("SetCron: %v", err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false, want true")
	}
	if err := s.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Start() twice error = %v, want %v", err, ErrAlreadyRunning)
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop, want false")
	}
	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop() twice error = %v, want %v", err, ErrNotRunning)
	}
}

func TestScheduler_StartNoSchedule(t *testing.T) {
	if err := New().Start(context.Background()); !errors.Is(err, ErrNoSchedule) {
		t.Errorf("Start() error = %v, want %v", err, ErrNoSchedule)
	}
}

func TestScheduler_NextRun(t *testing.T) {
	s := New()
	if !s.NextRun().IsZero() {
		t.Error("NextRun() without schedule should be zero")
	}

	_ = s.SetCron("* * * * *")
	next := s.NextRun()
	if !next.After(time.Now()) || next.Sub(time.Now()) > time.Minute {
		t.Errorf("NextRun() = %v, want within the next minute", next)
	}
	if next.Second() != 0 {
		t.Errorf("NextRun() = %v, want on a minute boundary", next)
	}
}

func TestScheduler_RunsJobsInOrder(t *testing.T) {
	s := New()
	s.SetSchedule(every(20 * time.Millisecond))

	var order []int
	var ticks atomic.Int32
	s.AddJob(func(ctx context.Context) error {
		order = append(order, 1)
		return errors.New("first job fails")
	})
	s.AddJob(func(ctx context.Context) error {
		order = append(order, 2)
		ticks.Add(1)
		return nil
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return ticks.Load() >= 2 })
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if len(order) < 4 || order[0] != 1 || order[1] != 2 || order[2] != 1 || order[3] != 2 {
		t.Errorf("jobs ran in order %v, want 1,2,1,2,...", order)
	}
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := New()
	s.SetSchedule(every(10 * time.Millisecond))

	var active, maxActive atomic.Int32
	var runs atomic.Int32
	s.AddJob(func(ctx context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		runs.Add(1)
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return runs.Load() >= 2 })
	_ = s.Stop()

	if maxActive.Load() != 1 {
		t.Errorf("max concurrent runs = %d, want 1", maxActive.Load())
	}
}

func TestScheduler_ContextCancellationStops(t *testing.T) {
	s := New()
	s.SetSchedule(every(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	waitFor(t, func() bool { return !s.IsRunning() })
}

func TestScheduler_JobSeesCancelledContextOnStop(t *testing.T) {
	s := New()
	s.SetSchedule(every(10 * time.Millisecond))

	started := make(chan struct{}, 1)
	var sawCancel atomic.Bool
	s.AddJob(func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-started
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !sawCancel.Load() {
		t.Error("running job should observe cancellation before Stop returns")
	}
}
