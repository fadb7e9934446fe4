// Package scheduler runs the periodic maintenance jobs: rate-window
// eviction, online-user cleanup, and idle session sweeps.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron runner for the background maintenance jobs.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// AddJob registers fn under a cron spec (standard 5-field syntax).
func (s *Scheduler) AddJob(spec string, name string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Scheduler job recovered from panic", "job", name, "panic", r)
			}
		}()
		slog.Debug("Scheduler running job", "job", name)
		fn()
	})
	if err != nil {
		return err
	}
	slog.Info("Scheduler job registered", "job", name, "spec", spec)
	return nil
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop halts the scheduler, waiting for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Scheduler stopped")
}
