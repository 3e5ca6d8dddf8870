/**
 * @description
 * Scheduled maintenance jobs run by cmd/scheduler.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

const jobTimeout = 2 * time.Minute

// JobsRepository defines database operations needed by the jobs.
type JobsRepository interface {
	ExpireListings(ctx context.Context, now time.Time) (int64, error)
	LapseSubscriptions(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	PrunePublishedOutbox(ctx context.Context, before time.Time) (int64, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo            JobsRepository
	cache           PropertyCache
	logger          *slog.Logger
	now             func() time.Time
	outboxRetention time.Duration
}

// NewJobs creates a new Jobs runner. cache may be nil.
func NewJobs(repo JobsRepository, cache PropertyCache, logger *slog.Logger) *Jobs {
	return &Jobs{
		repo:            repo,
		cache:           cache,
		logger:          logger,
		now:             time.Now,
		outboxRetention: 7 * 24 * time.Hour,
	}
}

// SetOutboxRetention sets how long published events are kept.
func (j *Jobs) SetOutboxRetention(days int) {
	if days > 0 {
		j.outboxRetention = time.Duration(days) * 24 * time.Hour
	}
}

// ExpireListings moves active listings past their expiry date to expired.
func (j *Jobs) ExpireListings() {
	j.logger.Info("starting listing expiry job")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	expired, err := j.repo.ExpireListings(ctx, j.now())
	if err != nil {
		j.logger.Error("failed to expire listings", "error", err)
		return
	}
	if expired > 0 && j.cache != nil {
		if err := j.cache.Invalidate(ctx); err != nil {
			j.logger.Warn("failed to invalidate property cache", "error", err)
		}
	}

	j.logger.Info("listing expiry job finished", "expired", expired)
}

// LapseSubscriptions deactivates subscriptions whose end date has passed.
func (j *Jobs) LapseSubscriptions() {
	j.logger.Info("starting subscription lapse job")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	lapsed, err := j.repo.LapseSubscriptions(ctx, j.now())
	if err != nil {
		j.logger.Error("failed to lapse subscriptions", "error", err)
		return
	}

	j.logger.Info("subscription lapse job finished", "lapsed", lapsed)
}

// PruneSessions deletes expired login sessions.
func (j *Jobs) PruneSessions() {
	j.logger.Info("starting session prune job")
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	pruned, err := j.repo.DeleteExpiredSessions(ctx, j.now())
	if err != nil {
		j.logger.Error("failed to prune sessions", "error", err)
		return
	}

	j.logger.Info("session prune job finished", "pruned", pruned)
}

// PruneOutbox deletes delivered events older than the retention window.
// Pending and dead rows are kept.
func (j *Jobs) PruneOutbox() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := j.now().Add(-j.outboxRetention)
	pruned, err := j.repo.PrunePublishedOutbox(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to prune outbox", "error", err)
		return
	}
	j.logger.Info("outbox prune job finished", "pruned", pruned, "cutoff", cutoff)
}
