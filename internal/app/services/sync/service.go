// Package sync polls the payment provider for every open jar, appends
// balance samples and closes completed jars.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zcy-charity/jar-service/internal/app/domain/jar"
	"github.com/zcy-charity/jar-service/internal/app/storage"
	"github.com/zcy-charity/jar-service/pkg/logger"
)

// ErrCycleRunning is returned when a cycle is requested while another one is
// still in flight.
var ErrCycleRunning = errors.New("sync cycle already running")

// DefaultMinInterval is the minimum spacing between provider calls. The
// provider throttles clients that poll a jar more than once a minute.
const DefaultMinInterval = 61 * time.Second

// CycleReport summarises one completed sync cycle.
type CycleReport struct {
	Total      int
	Synced     int
	Failed     int
	Closed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Service runs sync cycles over all open jars.
type Service struct {
	jars        storage.JarStore
	fetcher     Fetcher
	limiter     *rate.Limiter
	closeOnGoal bool
	log         *logger.Logger
	now         func() time.Time

	mu      sync.Mutex
	running bool
}

// Option customises the sync service.
type Option func(*Service)

// WithMinInterval overrides the minimum spacing between provider calls.
func WithMinInterval(d time.Duration) Option {
	return func(s *Service) {
		s.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithCloseOnGoal enables closing a jar as soon as its balance reaches the
// goal, even if the provider still reports it active.
func WithCloseOnGoal(enabled bool) Option {
	return func(s *Service) { s.closeOnGoal = enabled }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the sync service.
func New(jarStore storage.JarStore, fetcher Fetcher, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("sync")
	}
	s := &Service{
		jars:    jarStore,
		fetcher: fetcher,
		limiter: rate.NewLimiter(rate.Every(DefaultMinInterval), 1),
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunCycle fetches every open jar once, paced by the provider rate limit.
// A fetch failure skips that jar and the cycle continues; only context
// cancellation aborts the cycle early. Overlapping cycles are rejected with
// ErrCycleRunning.
func (s *Service) RunCycle(ctx context.Context) (CycleReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return CycleReport{}, ErrCycleRunning
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	report := CycleReport{StartedAt: s.now().UTC()}
	open, err := s.jars.ListOpenJars(ctx)
	if err != nil {
		return report, fmt.Errorf("list open jars: %w", err)
	}
	report.Total = len(open)
	s.log.WithField("jars", len(open)).Info("sync cycle started")

	for _, j := range open {
		if err := s.limiter.Wait(ctx); err != nil {
			report.FinishedAt = s.now().UTC()
			return report, fmt.Errorf("sync cycle aborted: %w", err)
		}

		obs, err := s.fetcher.Fetch(ctx, j.ExternalID)
		if err != nil {
			report.Failed++
			s.log.WithError(err).WithField("jar_id", j.ID).Warn("fetch failed, skipping jar")
			continue
		}

		upd := s.buildUpdate(j, obs)
		sample, err := s.jars.RecordSyncResult(ctx, j.ID, upd)
		if err != nil {
			report.Failed++
			s.log.WithError(err).WithField("jar_id", j.ID).Error("failed to record sync result")
			continue
		}

		report.Synced++
		if upd.CloseAt != nil {
			report.Closed++
			s.log.WithField("jar_id", j.ID).WithField("status", obs.Status).Info("jar closed")
		}
		s.log.WithField("jar_id", j.ID).
			WithField("income_delta", sample.IncomeDelta).
			Debug("jar synced")
	}

	report.FinishedAt = s.now().UTC()
	s.log.WithField("synced", report.Synced).
		WithField("failed", report.Failed).
		WithField("closed", report.Closed).
		Info("sync cycle finished")
	return report, nil
}

// buildUpdate turns one observation into the storage mutation. The provider
// is the source of truth for the goal; a non-ACTIVE status closes the jar,
// and optionally so does reaching the goal.
func (s *Service) buildUpdate(j jar.Jar, obs jar.Observation) jar.SyncUpdate {
	upd := jar.SyncUpdate{
		Goal:       obs.Goal,
		Amount:     obs.Amount,
		ObservedAt: s.now().UTC(),
	}

	shouldClose := obs.Status != jar.ProviderStatusActive
	if !shouldClose && s.closeOnGoal {
		goal := j.Goal
		if obs.Goal != nil {
			goal = obs.Goal
		}
		if goal != nil && *goal > 0 && obs.Amount != nil && *obs.Amount >= *goal {
			shouldClose = true
		}
	}
	if shouldClose {
		at := upd.ObservedAt
		upd.CloseAt = &at
	}
	return upd
}
