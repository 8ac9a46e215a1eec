package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/metrics"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
	"github.com/ekaya-inc/ekaya-renewals/pkg/notify"
	"github.com/ekaya-inc/ekaya-renewals/pkg/repositories"
	"github.com/ekaya-inc/ekaya-renewals/pkg/scheduling"
)

// DispatchReport summarizes one alert dispatch run.
type DispatchReport struct {
	Due    int `json:"due"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// AlertSchedulerService keeps a contract's alert events in step with its
// renewal schedule and delivers them when due.
// Every method expects a database scope in ctx.
type AlertSchedulerService interface {
	// Regenerate replaces the contract's upcoming events with a fresh plan.
	// Running it twice on an unchanged contract yields the same event set.
	Regenerate(ctx context.Context, c *models.Contract) ([]models.AlertEvent, error)
	ListForContract(ctx context.Context, contractID uuid.UUID) ([]models.AlertEvent, error)
	// DispatchDue sends every pending event scheduled for day.
	DispatchDue(ctx context.Context, day time.Time) (*DispatchReport, error)
	// ExpireStale marks pending events from past days as expired.
	ExpireStale(ctx context.Context) (int64, error)
}

type alertSchedulerService struct {
	repo     repositories.AlertEventRepository
	notifier notify.Notifier
	offsets  []scheduling.Offset
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewAlertSchedulerService creates an AlertSchedulerService. warningDays
// overrides the default renewal warning offsets when non-empty.
func NewAlertSchedulerService(
	repo repositories.AlertEventRepository,
	notifier notify.Notifier,
	warningDays []int,
	m *metrics.Metrics,
	logger *zap.Logger,
) AlertSchedulerService {
	return &alertSchedulerService{
		repo:     repo,
		notifier: notifier,
		offsets:  warningOffsets(warningDays),
		metrics:  m,
		now:      time.Now,
		logger:   logger.Named("alert-scheduler"),
	}
}

var _ AlertSchedulerService = (*alertSchedulerService)(nil)

func warningOffsets(days []int) []scheduling.Offset {
	if len(days) == 0 {
		return nil
	}
	offsets := make([]scheduling.Offset, 0, len(days))
	for _, d := range days {
		if d > 0 {
			offsets = append(offsets, scheduling.Offset{Days: d, Type: models.AlertTypeRenewalWarning})
		}
	}
	return offsets
}

func (s *alertSchedulerService) Regenerate(ctx context.Context, c *models.Contract) ([]models.AlertEvent, error) {
	today := models.DateOf(s.now())
	plan := scheduling.Plan(scheduling.Input{
		ContractID:       c.ID,
		UserID:           c.UserID,
		Title:            c.Title,
		NextRenewalDate:  c.NextRenewalDate,
		NoticePeriodDays: c.NoticePeriodDays,
		Today:            today,
		Offsets:          s.offsets,
	})

	events, err := s.repo.ReplaceForContract(ctx, c.ID, plan, c.NextRenewalDate, today)
	if err != nil {
		return nil, fmt.Errorf("failed to replace alert events: %w", err)
	}

	s.metrics.RecordAlertRegeneration()
	s.logger.Debug("Alert events regenerated",
		zap.String("contract_id", c.ID.String()),
		zap.Int("planned", len(plan)),
		zap.Int("stored", len(events)))
	return events, nil
}

func (s *alertSchedulerService) ListForContract(ctx context.Context, contractID uuid.UUID) ([]models.AlertEvent, error) {
	events, err := s.repo.ListByContract(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert events: %w", err)
	}
	return events, nil
}

func (s *alertSchedulerService) DispatchDue(ctx context.Context, day time.Time) (*DispatchReport, error) {
	due, err := s.repo.ListDue(ctx, day, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list due alert events: %w", err)
	}

	report := &DispatchReport{Due: len(due)}
	for _, event := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		sendErr := s.notifier.Notify(ctx, event)
		s.metrics.RecordAlertDispatch(sendErr)
		if sendErr != nil {
			report.Failed++
			s.logger.Warn("Alert delivery failed",
				zap.String("event_id", event.ID.String()),
				zap.String("contract_id", event.ContractID.String()),
				zap.Error(sendErr))
			if err := s.repo.MarkFailed(ctx, event.ID, sendErr.Error()); err != nil {
				return report, fmt.Errorf("failed to record delivery failure: %w", err)
			}
			continue
		}

		if err := s.repo.MarkSent(ctx, event.ID, s.now().UTC()); err != nil {
			return report, fmt.Errorf("failed to record delivery: %w", err)
		}
		report.Sent++
	}

	if report.Due > 0 {
		s.logger.Info("Alert dispatch completed",
			zap.Time("day", models.DateOf(day)),
			zap.Int("sent", report.Sent),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}

func (s *alertSchedulerService) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireStale(ctx, models.DateOf(s.now()))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("Expired stale alert events", zap.Int64("count", n))
	}
	return n, nil
}
