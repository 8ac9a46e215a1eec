// Package sweeper runs the periodic maintenance jobs: dispatching due
// alerts, expiring missed ones and resetting monthly credit ledgers.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/metrics"
	"github.com/ekaya-inc/ekaya-renewals/pkg/services"
)

// Job names reported in logs and metrics.
const (
	JobDispatch = "dispatch_alerts"
	JobExpire   = "expire_alerts"
	JobCredits  = "reset_credits"
)

// Sweeper schedules the maintenance jobs on a cron spec.
type Sweeper struct {
	alerts   services.AlertSchedulerService
	credits  services.CreditLedgerService
	getScope services.ScopeFunc
	schedule string
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger

	cron    *cron.Cron
	running atomic.Bool
}

// New creates a Sweeper. schedule is a six-field cron spec with seconds,
// evaluated in UTC.
func New(
	alerts services.AlertSchedulerService,
	credits services.CreditLedgerService,
	getScope services.ScopeFunc,
	schedule string,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*Sweeper, error) {
	if _, err := cron.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	logger = logger.Named("sweeper")
	c := cron.NewWithLocation(time.UTC)
	c.ErrorLog = zap.NewStdLog(logger)

	return &Sweeper{
		alerts:   alerts,
		credits:  credits,
		getScope: getScope,
		schedule: schedule,
		metrics:  m,
		now:      time.Now,
		logger:   logger,
		cron:     c,
	}, nil
}

// Start registers the sweep and starts the scheduler.
func (s *Sweeper) Start() error {
	if err := s.cron.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("Sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop halts the scheduler. A sweep already running finishes on its own.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Sweep finished with errors", zap.Error(err))
	}
}

// ErrSweepRunning is returned when a sweep is already in progress.
var ErrSweepRunning = errors.New("sweep already running")

// RunOnce runs every job once. A failing job does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSweepRunning
	}
	defer s.running.Store(false)

	ctx, cleanup, err := s.getScope(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	today := s.now().UTC()
	start := time.Now()

	var errs []error
	report, err := s.alerts.DispatchDue(ctx, today)
	s.metrics.RecordSweep(JobDispatch, err)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", JobDispatch, err))
	}

	expired, err := s.alerts.ExpireStale(ctx)
	s.metrics.RecordSweep(JobExpire, err)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", JobExpire, err))
	}

	reset, err := s.credits.ResetDue(ctx)
	s.metrics.RecordSweep(JobCredits, err)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", JobCredits, err))
	}

	fields := []zap.Field{
		zap.Int64("expired", expired),
		zap.Int("ledgers_reset", reset),
		zap.Duration("elapsed", time.Since(start)),
	}
	if report != nil {
		fields = append(fields, zap.Int("sent", report.Sent), zap.Int("failed", report.Failed))
	}
	s.logger.Info("Sweep completed", fields...)

	return errors.Join(errs...)
}
