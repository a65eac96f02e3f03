// Package scheduler runs jobs on cron expressions and on sun events.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	cron "gopkg.in/robfig/cron.v2"
)

// Cron runs jobs on six-field cron expressions (seconds first). A job that
// is still running when its next tick arrives skips that tick.
type Cron struct {
	ctx    context.Context
	cron   *cron.Cron
	logger *zap.SugaredLogger

	mu      sync.Mutex
	running map[string]bool
	jobs    sync.WaitGroup
}

// NewCron creates a stopped scheduler. Jobs receive ctx.
func NewCron(ctx context.Context, logger *zap.SugaredLogger) *Cron {
	return &Cron{
		ctx:     ctx,
		cron:    cron.New(),
		logger:  logger.Named("cron"),
		running: make(map[string]bool),
	}
}

// Start begins firing jobs.
func (c *Cron) Start() {
	c.cron.Start()
}

// Stop stops firing jobs and waits for running ones to return.
func (c *Cron) Stop() {
	c.cron.Stop()
	c.jobs.Wait()
}

// AddJob schedules fn under name.
func (c *Cron) AddJob(name, spec string, fn func(ctx context.Context)) (cron.EntryID, error) {
	id, err := c.cron.AddFunc(spec, func() { c.run(name, fn) })
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	c.logger.Infow("scheduled job", "job", name, "schedule", spec)
	return id, nil
}

// Remove unschedules a job.
func (c *Cron) Remove(id cron.EntryID) {
	c.cron.Remove(id)
}

func (c *Cron) run(name string, fn func(ctx context.Context)) {
	if c.ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	if c.running[name] {
		c.mu.Unlock()
		c.logger.Warnw("previous run still in progress, skipping", "job", name)
		return
	}
	c.running[name] = true
	c.jobs.Add(1)
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Errorw("job panicked", "job", name, "panic", r)
		}
		c.mu.Lock()
		delete(c.running, name)
		c.mu.Unlock()
		c.jobs.Done()
	}()

	fn(c.ctx)
}
