package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tmasaiti/zimproperty/internal/config"
)

type jobsRepoStub struct {
	expired    int64
	expireErr  error
	lapsed     int64
	pruned     int64
	lapseCalls int
	pruneCalls int

	outboxCutoff time.Time
}

func (s *jobsRepoStub) ExpireListings(ctx context.Context, now time.Time) (int64, error) {
	return s.expired, s.expireErr
}

func (s *jobsRepoStub) LapseSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	s.lapseCalls++
	return s.lapsed, nil
}

func (s *jobsRepoStub) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	s.pruneCalls++
	return s.pruned, nil
}

func (s *jobsRepoStub) PrunePublishedOutbox(ctx context.Context, before time.Time) (int64, error) {
	s.outboxCutoff = before
	return 12, nil
}

func newTestJobs(repo JobsRepository, cache PropertyCache) *Jobs {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJobs(repo, cache, logger)
}

func TestExpireListings_InvalidatesCacheWhenListingsExpire(t *testing.T) {
	cache := newCacheStub()
	jobs := newTestJobs(&jobsRepoStub{expired: 3}, cache)

	jobs.ExpireListings()

	if cache.invalidated != 1 {
		t.Fatalf("expected one invalidation, got %d", cache.invalidated)
	}
}

func TestExpireListings_KeepsCacheWhenNothingExpired(t *testing.T) {
	cache := newCacheStub()
	newTestJobs(&jobsRepoStub{}, cache).ExpireListings()
	newTestJobs(&jobsRepoStub{expireErr: errors.New("db unavailable"), expired: 3}, cache).ExpireListings()

	if cache.invalidated != 0 {
		t.Fatalf("expected no invalidation, got %d", cache.invalidated)
	}
}

func TestExpireListings_WithoutCache(t *testing.T) {
	newTestJobs(&jobsRepoStub{expired: 1}, nil).ExpireListings()
}

func TestLapseAndPruneJobs(t *testing.T) {
	repo := &jobsRepoStub{}
	jobs := newTestJobs(repo, nil)

	jobs.LapseSubscriptions()
	jobs.PruneSessions()

	if repo.lapseCalls != 1 || repo.pruneCalls != 1 {
		t.Fatalf("expected each job to hit the store once, lapse=%d prune=%d", repo.lapseCalls, repo.pruneCalls)
	}
}

func TestPruneOutbox_UsesRetentionWindow(t *testing.T) {
	repo := &jobsRepoStub{}
	jobs := newTestJobs(repo, nil)
	now := time.Date(2026, 3, 10, 3, 45, 0, 0, time.UTC)
	jobs.now = func() time.Time { return now }

	jobs.PruneOutbox()
	if want := now.Add(-7 * 24 * time.Hour); !repo.outboxCutoff.Equal(want) {
		t.Fatalf("expected default cutoff %s, got %s", want, repo.outboxCutoff)
	}

	jobs.SetOutboxRetention(2)
	jobs.PruneOutbox()
	if want := now.Add(-48 * time.Hour); !repo.outboxCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.outboxCutoff)
	}
}

func TestScheduler_SkipsInvalidAndEmptySchedules(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := newTestJobs(&jobsRepoStub{}, nil)
	scheduler := NewScheduler(jobs, logger, config.Config{
		ExpireListingsSchedule:     "*/15 * * * *",
		LapseSubscriptionsSchedule: "not a cron spec",
		PruneSessionsSchedule:      "",
		PruneOutboxSchedule:        "  ",
	})

	scheduled := scheduler.Start()
	<-scheduler.Stop().Done()

	if scheduled != 1 {
		t.Fatalf("expected 1 scheduled job, got %d", scheduled)
	}
}
