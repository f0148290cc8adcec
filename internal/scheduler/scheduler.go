// Package scheduler wires up the cron job that periodically scrapes every
// registered source.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is the work run on every tick.
type Job func(ctx context.Context)

// Scheduler wraps robfig/cron and manages the scrape loop.
type Scheduler struct {
	cron       *cron.Cron
	job        Job
	spec       string // cron spec, e.g. "@every 6h"
	runOnStart bool
}

// New creates a Scheduler that runs job on spec. Overlapping runs are
// skipped. When runOnStart is set, Start also runs the job once immediately.
func New(spec string, job Job, runOnStart bool) *Scheduler {
	logger := slogLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		job:        job,
		spec:       spec,
		runOnStart: runOnStart,
	}
}

// Start registers the job and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.run(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	slog.Info("Scheduler started", "spec", s.spec)

	if s.runOnStart {
		// Run immediately on startup (non-blocking)
		go s.run(ctx)
	}
	return nil
}

// Stop halts the scheduler and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("Scheduler stop timed out with a scrape still running")
	}
	slog.Info("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	slog.Info("Scheduled scrape cycle started")
	s.job(ctx)
	slog.Info("Scheduled scrape cycle complete")
}

// slogLogger adapts slog to cron.Logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
