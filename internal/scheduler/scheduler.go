// Package scheduler runs jobs on a cron schedule until stopped. It backs
// `taskflow watch`.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/valter-silva-au/taskflow/internal/logging"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

var (
	ErrNoSchedule     = errors.New("no schedule configured")
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
)

// Job is one unit of scheduled work. Errors are logged and do not stop the
// scheduler.
type Job func(ctx context.Context) error

// Scheduler fires its jobs on a cron schedule. A run that is still going when
// the next one is due is skipped.
type Scheduler struct {
	mu       sync.Mutex
	cronExpr string
	schedule cron.Schedule
	jobs     []Job
	log      *logging.Logger

	cron    *cron.Cron
	entry   cron.EntryID
	cancel  context.CancelFunc
	running bool
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler's logger.
func WithLogger(log *logging.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log.WithComponent("scheduler")
		}
	}
}

// New creates a scheduler with no schedule.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{log: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig creates a scheduler for cfg.Cron.
func NewFromConfig(cfg models.ScheduleConfig, opts ...Option) (*Scheduler, error) {
	if cfg.Cron == "" {
		return nil, ErrNoSchedule
	}
	s := New(opts...)
	if err := s.SetCron(cfg.Cron); err != nil {
		return nil, err
	}
	return s, nil
}

// SetCron parses a standard five-field cron expression. Descriptors such as
// "@hourly" and "@every 5m" are accepted.
func (s *Scheduler) SetCron(expr string) error {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cronExpr = expr
	s.schedule = sched
	return nil
}

// SetSchedule installs an already built schedule.
func (s *Scheduler) SetSchedule(sched cron.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cronExpr = ""
	s.schedule = sched
}

// AddJob registers a job. Jobs run in registration order on every tick.
func (s *Scheduler) AddJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// Start begins firing jobs. It returns immediately; the scheduler stops when
// ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	if s.schedule == nil {
		return ErrNoSchedule
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.log}),
		cron.SkipIfStillRunning(cronLogger{s.log}),
	))
	s.entry = c.Schedule(s.schedule, cron.FuncJob(func() { s.runJobs(runCtx) }))
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.running = true
	s.log.Info().Str("cron", s.cronExpr).Time("next_run", c.Entry(s.entry).Next).Msg("scheduler started")

	go func() {
		<-runCtx.Done()
		_ = s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	c, cancel := s.cron, s.cancel
	s.mu.Unlock()

	cancel()
	<-c.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
	return nil
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns when the jobs fire next. Before Start it is computed from
// the current time; the zero time means no schedule.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.cron.Entry(s.entry).Next
	}
	if s.schedule == nil {
		return time.Time{}
	}
	return s.schedule.Next(time.Now())
}

func (s *Scheduler) runJobs(ctx context.Context) {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	for i, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := job(ctx); err != nil {
			s.log.Err(err).Int("job", i).Dur("elapsed", time.Since(start)).Msg("scheduled job failed")
			continue
		}
		s.log.Debug().Int("job", i).Dur("elapsed", time.Since(start)).Msg("scheduled job finished")
	}
}

// cronLogger routes cron's own messages to the scheduler logger.
type cronLogger struct {
	log *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Err(err).Fields(keysAndValues).Msg(msg)
}
