// Package cron runs background housekeeping on a schedule
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config holds cron runner configuration
type Config struct {
	Schedule string        // cron expression, e.g. "@every 10m"
	Timeout  time.Duration // upper bound for one run of a job
}

// Job is one housekeeping task
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Runner manages scheduled job execution
type Runner struct {
	config  Config
	jobs    []Job
	logger  *zap.Logger
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
}

// NewRunner creates a new cron runner
func NewRunner(config Config, logger *zap.Logger, jobs ...Job) *Runner {
	ctx, cancel := context.WithCancel(context.Background())

	if config.Schedule == "" {
		config.Schedule = "@every 10m"
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		config: config,
		jobs:   jobs,
		logger: logger,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start schedules every job. Jobs run once immediately.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}

	if _, err := r.cron.AddFunc(r.config.Schedule, r.RunOnce); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", r.config.Schedule, err)
	}

	r.running = true
	r.cron.Start()
	go r.RunOnce()

	r.logger.Info("Cron runner started",
		zap.String("schedule", r.config.Schedule),
		zap.Int("jobs", len(r.jobs)))
	return nil
}

// Stop stops the cron runner and waits for running jobs
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("Cron runner stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// RunOnce executes every job in order. A failing job is logged and does
// not stop the others.
func (r *Runner) RunOnce() {
	for _, job := range r.jobs {
		if r.ctx.Err() != nil {
			return
		}
		r.executeJob(job)
	}
}

// executeJob runs a single job under the configured timeout
func (r *Runner) executeJob(job Job) {
	ctx, cancel := context.WithTimeout(r.ctx, r.config.Timeout)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		r.logger.Error("Maintenance job failed",
			zap.String("job", job.Name),
			zap.Error(err))
		return
	}
	r.logger.Debug("Maintenance job completed",
		zap.String("job", job.Name),
		zap.Duration("duration", time.Since(start)))
}
