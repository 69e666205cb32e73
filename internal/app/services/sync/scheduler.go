package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/zcy-charity/jar-service/internal/app/metrics"
	"github.com/zcy-charity/jar-service/pkg/logger"
)

// DefaultSchedule runs the daily cycle at 17:57 server time.
const DefaultSchedule = "57 17 * * *"

// Scheduler triggers sync cycles on a cron schedule. It implements the
// system service lifecycle.
type Scheduler struct {
	svc      *Service
	schedule string
	cron     *cron.Cron
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewScheduler wires the sync service to a cron schedule. An empty schedule
// falls back to DefaultSchedule.
func NewScheduler(svc *Service, schedule string, m *metrics.Metrics, log *logger.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if log == nil {
		log = logger.NewDefault("sync-scheduler")
	}
	return &Scheduler{svc: svc, schedule: schedule, metrics: m, log: log}
}

func (s *Scheduler) Name() string { return "sync-scheduler" }

// Start validates the schedule and begins triggering cycles.
func (s *Scheduler) Start(context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, s.runOnce)
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", s.schedule, err)
	}
	s.cron = c
	c.Start()
	s.log.WithField("schedule", s.schedule).Info("sync scheduler started")
	return nil
}

// Stop halts the schedule and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger runs a cycle immediately, outside the schedule. The caller's
// cancellation is stripped so that a triggered cycle, like a scheduled one,
// finishes jar-by-jar even when the caller goes away before the provider
// pacing lets the cycle through.
func (s *Scheduler) Trigger(ctx context.Context) (CycleReport, error) {
	report, err := s.svc.RunCycle(context.WithoutCancel(ctx))
	s.record(report, err)
	return report, err
}

func (s *Scheduler) runOnce() {
	report, err := s.svc.RunCycle(context.Background())
	s.record(report, err)
	if err != nil && !errors.Is(err, ErrCycleRunning) {
		s.log.WithError(err).Error("scheduled sync cycle failed")
	}
}

func (s *Scheduler) record(report CycleReport, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveSyncCycle(report.Synced, report.Failed, report.Closed, err)
}
