// Package scheduler drives sync cycles on a fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner performs one sync cycle.
type Runner interface {
	RunCycle(ctx context.Context) error
}

// Scheduler runs a cycle immediately on start and then every interval.
// A cycle that is still running when the next tick fires is skipped.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	log      *slog.Logger
}

// New creates a Scheduler. cron.Every rounds interval down to whole
// seconds with a one second minimum.
func New(runner Runner, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		log:      log,
	}
}

// RunOnce runs a single guarded cycle.
func (s *Scheduler) RunOnce(ctx context.Context) {
	Guard("sync cycle", s.runner.RunCycle, s.log)(ctx)
}

// Run blocks until ctx is cancelled and any in-flight cycle has finished.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunOnce(ctx)
	if ctx.Err() != nil {
		return
	}

	logger := cronLogger{log: s.log}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(cron.Every(s.interval), cron.FuncJob(func() { s.RunOnce(ctx) }))
	c.Start()
	s.log.Info("scheduler started", "interval", s.interval)

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Guard wraps fn so that errors are logged and panics are recovered.
func Guard(name string, fn func(context.Context) error, log *slog.Logger) func(context.Context) {
	return func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("job panicked", "job", name, "panic", fmt.Sprint(r))
			}
		}()
		start := time.Now()
		if err := fn(ctx); err != nil {
			log.Error("job failed", "job", name, "duration", time.Since(start), "error", err)
			return
		}
		log.Debug("job finished", "job", name, "duration", time.Since(start))
	}
}

// cronLogger adapts slog to cron.Logger. Cron's info messages fire on
// every wakeup and are demoted to debug.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
