// Package scheduler runs periodic maintenance jobs on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// Task is one unit of periodic work. The context is canceled on Stop.
type Task func(ctx context.Context) error

// JobInfo describes a registered job.
type JobInfo struct {
	Name     string
	CronExpr string
	LastRun  *time.Time
	LastErr  error
	NextRun  time.Time
}

type job struct {
	name     string
	cronExpr string
	task     Task
	ref      *gocron.Job
	lastRun  *time.Time
	lastErr  error
}

// Scheduler wraps gocron in singleton mode so a slow run never overlaps the next.
type Scheduler struct {
	cron   *gocron.Scheduler
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]*job
	running bool
}

// New creates a stopped scheduler evaluating cron expressions in UTC.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// AddJob registers task under name on a standard five-field cron expression.
func (s *Scheduler) AddJob(name, cronExpr string, task Task) error {
	if task == nil {
		return fmt.Errorf("job %s: task is required", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}
	j := &job{name: name, cronExpr: cronExpr, task: task}
	ref, err := s.cron.Cron(cronExpr).Tag(name).Do(func() { s.execute(j) })
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	j.ref = ref
	s.jobs[name] = j
	s.logger.Info("scheduler job added", "job", name, "cron", cronExpr)
	return nil
}

// RunNow executes a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}
	return s.execute(j)
}

func (s *Scheduler) execute(j *job) error {
	start := time.Now()
	err := j.task(s.ctx)
	s.mu.Lock()
	j.lastRun = &start
	j.lastErr = err
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("scheduler job failed", "job", j.name, "err", err, "duration_ms", time.Since(start).Milliseconds())
		return err
	}
	s.logger.Info("scheduler job finished", "job", j.name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Job returns a snapshot of a registered job.
func (s *Scheduler) Job(name string) (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return JobInfo{}, false
	}
	info := JobInfo{Name: j.name, CronExpr: j.cronExpr, LastErr: j.lastErr}
	if j.lastRun != nil {
		last := *j.lastRun
		info.LastRun = &last
	}
	if j.ref != nil {
		info.NextRun = j.ref.NextRun()
	}
	return info, true
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.StartAsync()
	s.running = true
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop halts scheduling and cancels the context handed to running tasks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel()
	if !s.running {
		return
	}
	s.cron.Stop()
	s.running = false
	s.logger.Info("scheduler stopped")
}

// ValidateCron reports whether expr is an accepted cron expression.
func ValidateCron(expr string) error {
	check := gocron.NewScheduler(time.UTC)
	if _, err := check.Cron(expr).Do(func() {}); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}
