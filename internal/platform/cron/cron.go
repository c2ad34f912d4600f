// Package cron runs periodic maintenance jobs.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// JobFunc is a unit of periodic work.
type JobFunc func(ctx context.Context) error

type job struct {
	name       string
	fn         JobFunc
	runOnStart bool
}

// Scheduler wraps gocron with named jobs, per-run timeouts and logging.
type Scheduler struct {
	s       *gocron.Scheduler
	logger  zerolog.Logger
	timeout time.Duration

	mu     sync.Mutex
	jobs   []job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler evaluating clock times in loc. Each run is bounded
// by timeout.
func New(loc *time.Location, timeout time.Duration, logger zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	s := gocron.NewScheduler(loc)
	s.SingletonModeAll()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		s:       s,
		logger:  logger.With().Str("component", "cron").Logger(),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Daily registers fn to run every day at the "HH:mm" clock time at. When
// runOnStart is set it also runs once as soon as the scheduler starts.
func (c *Scheduler) Daily(name, at string, runOnStart bool, fn JobFunc) error {
	if _, err := time.Parse("15:04", at); err != nil {
		return fmt.Errorf("job %s: invalid time %q", name, at)
	}
	if _, err := c.s.Every(1).Day().At(at).Tag(name).Do(c.wrap(name, fn)); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	c.mu.Lock()
	c.jobs = append(c.jobs, job{name: name, fn: fn, runOnStart: runOnStart})
	c.mu.Unlock()
	return nil
}

// Every registers fn to run at a fixed interval.
func (c *Scheduler) Every(name string, interval time.Duration, fn JobFunc) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if _, err := c.s.Every(interval).WaitForSchedule().Tag(name).Do(c.wrap(name, fn)); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	c.mu.Lock()
	c.jobs = append(c.jobs, job{name: name, fn: fn})
	c.mu.Unlock()
	return nil
}

func (c *Scheduler) wrap(name string, fn JobFunc) func() {
	return func() {
		c.wg.Add(1)
		defer c.wg.Done()
		c.run(name, fn)
	}
}

func (c *Scheduler) run(name string, fn JobFunc) {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Str("job", name).Interface("panic", r).Msg("job panicked")
		}
	}()
	if err := fn(ctx); err != nil {
		c.logger.Error().Err(err).Str("job", name).Dur("elapsed", time.Since(start)).Msg("job failed")
		return
	}
	c.logger.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("job completed")
}

// Start runs the scheduler in the background and kicks off runOnStart jobs.
func (c *Scheduler) Start() {
	c.mu.Lock()
	jobs := append([]job(nil), c.jobs...)
	c.mu.Unlock()

	c.s.StartAsync()
	for _, j := range jobs {
		if !j.runOnStart {
			continue
		}
		c.wg.Add(1)
		go func(j job) {
			defer c.wg.Done()
			c.run(j.name, j.fn)
		}(j)
	}
	c.logger.Info().Int("jobs", len(jobs)).Msg("scheduler started")
}

// Stop halts scheduling, cancels running jobs and waits for them to return.
func (c *Scheduler) Stop() {
	c.s.Stop()
	c.cancel()
	c.wg.Wait()
	c.logger.Info().Msg("scheduler stopped")
}

// Len returns the number of registered jobs.
func (c *Scheduler) Len() int {
	return c.s.Len()
}
