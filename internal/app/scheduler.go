/**
 * @description
 * Cron scheduler setup for the maintenance jobs.
 */
package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/tmasaiti/zimproperty/internal/config"
)

type scheduledJob struct {
	name string
	spec string
	run  func()
}

// Scheduler runs the maintenance jobs on their cron specs. A job still running
// when its next tick arrives skips that tick.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	entries []scheduledJob
}

func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	jobs.SetOutboxRetention(cfg.OutboxRetentionDays)

	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		logger: logger,
		entries: []scheduledJob{
			{name: "listing expiry", spec: cfg.ExpireListingsSchedule, run: jobs.ExpireListings},
			{name: "subscription lapse", spec: cfg.LapseSubscriptionsSchedule, run: jobs.LapseSubscriptions},
			{name: "session prune", spec: cfg.PruneSessionsSchedule, run: jobs.PruneSessions},
			{name: "outbox prune", spec: cfg.PruneOutboxSchedule, run: jobs.PruneOutbox},
		},
	}
}

// Start registers every job with a valid spec and starts the cron loop. It
// returns how many jobs were registered; a blank spec disables a job.
func (s *Scheduler) Start() int {
	registered := 0
	for _, job := range s.entries {
		spec := strings.TrimSpace(job.spec)
		if spec == "" {
			s.logger.Warn("job disabled; no schedule configured", "job", job.name)
			continue
		}
		if _, err := s.cron.AddFunc(spec, job.run); err != nil {
			s.logger.Error("failed to schedule job", "job", job.name, "schedule", spec, "error", err)
			continue
		}
		s.logger.Info("scheduled job", "job", job.name, "schedule", spec)
		registered++
	}

	s.cron.Start()
	return registered
}

// Stop halts the cron loop. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
