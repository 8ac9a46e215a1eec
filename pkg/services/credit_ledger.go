package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-renewals/pkg/audit"
	"github.com/ekaya-inc/ekaya-renewals/pkg/credits"
	"github.com/ekaya-inc/ekaya-renewals/pkg/metrics"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
	"github.com/ekaya-inc/ekaya-renewals/pkg/repositories"
)

// CreditLedgerService meters semantic analyses per user.
// Every method expects a database scope in ctx.
type CreditLedgerService interface {
	// Balance returns the user's balance, applying a due monthly reset.
	Balance(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error)
	// Consume spends one credit or fails with apperrors.ErrInsufficientCredits.
	Consume(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error)
	// Refund returns one consumed credit.
	Refund(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error)
	// Purchase adds bought credits.
	Purchase(ctx context.Context, userID uuid.UUID, amount int) (*models.CreditBalance, error)
	// ResetDue applies the monthly reset to every ledger whose reset date passed.
	ResetDue(ctx context.Context) (int, error)
}

type creditLedgerService struct {
	repo         repositories.CreditLedgerRepository
	defaultLimit int
	auditor      *audit.LedgerAuditor
	metrics      *metrics.Metrics
	now          func() time.Time
	logger       *zap.Logger
}

// NewCreditLedgerService creates a CreditLedgerService. New ledgers start
// with defaultLimit monthly credits. auditor may be nil.
func NewCreditLedgerService(
	repo repositories.CreditLedgerRepository,
	defaultLimit int,
	auditor *audit.LedgerAuditor,
	m *metrics.Metrics,
	logger *zap.Logger,
) CreditLedgerService {
	return &creditLedgerService{
		repo:         repo,
		defaultLimit: defaultLimit,
		auditor:      auditor,
		metrics:      m,
		now:          time.Now,
		logger:       logger.Named("credit-ledger"),
	}
}

var _ CreditLedgerService = (*creditLedgerService)(nil)

func (s *creditLedgerService) Balance(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error) {
	now := s.now().UTC()
	ledger, err := s.repo.Mutate(ctx, userID, s.defaultLimit, now, func(l models.CreditLedger) (models.CreditLedger, error) {
		if credits.ResetDue(l, now) {
			return credits.ResetMonthly(l, now), nil
		}
		return l, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load credit balance: %w", err)
	}
	b := ledger.Balance()
	return &b, nil
}

func (s *creditLedgerService) Consume(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error) {
	now := s.now().UTC()
	ledger, err := s.repo.Mutate(ctx, userID, s.defaultLimit, now, func(l models.CreditLedger) (models.CreditLedger, error) {
		return credits.Consume(l, now)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientCredits) {
			s.logger.Info("Credit consumption rejected",
				zap.String("user_id", userID.String()),
				zap.Int("remaining", ledger.Remaining))
			s.auditor.LogRejected(userID, ledger.Remaining, ledger.Purchased)
			return nil, err
		}
		return nil, fmt.Errorf("failed to consume credit: %w", err)
	}

	s.metrics.RecordCredit("consume")
	s.auditor.LogConsumed(userID, ledger.Remaining, ledger.Purchased)
	b := ledger.Balance()
	return &b, nil
}

func (s *creditLedgerService) Refund(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error) {
	ledger, err := s.repo.Mutate(ctx, userID, s.defaultLimit, s.now().UTC(), func(l models.CreditLedger) (models.CreditLedger, error) {
		return credits.Refund(l), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to refund credit: %w", err)
	}

	s.metrics.RecordCredit("refund")
	s.auditor.LogRefunded(userID, ledger.Remaining, ledger.Purchased)
	b := ledger.Balance()
	return &b, nil
}

func (s *creditLedgerService) Purchase(ctx context.Context, userID uuid.UUID, amount int) (*models.CreditBalance, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("purchase of %d credits: %w", amount, apperrors.ErrInvalidAmount)
	}

	ledger, err := s.repo.Mutate(ctx, userID, s.defaultLimit, s.now().UTC(), func(l models.CreditLedger) (models.CreditLedger, error) {
		return credits.Purchase(l, amount)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to purchase credits: %w", err)
	}

	s.metrics.RecordCredit("purchase")
	s.auditor.LogPurchased(userID, amount, ledger.Remaining, ledger.Purchased)
	s.logger.Info("Credits purchased",
		zap.String("user_id", userID.String()),
		zap.Int("amount", amount),
		zap.Int("remaining", ledger.Remaining))
	b := ledger.Balance()
	return &b, nil
}

func (s *creditLedgerService) ResetDue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	userIDs, err := s.repo.ListDueForReset(ctx, now, 0)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, userID := range userIDs {
		var before int
		ledger, err := s.repo.Mutate(ctx, userID, s.defaultLimit, now, func(l models.CreditLedger) (models.CreditLedger, error) {
			before = l.Remaining
			// Another caller may have reset the ledger since it was listed.
			if !credits.ResetDue(l, now) {
				return l, nil
			}
			return credits.ResetMonthly(l, now), nil
		})
		if err != nil {
			return reset, fmt.Errorf("failed to reset ledger for user %s: %w", userID, err)
		}
		reset++
		s.metrics.RecordCredit("reset")
		s.auditor.LogReset(userID, ledger.Remaining-before, ledger.Remaining, ledger.Purchased)
	}

	if reset > 0 {
		s.logger.Info("Monthly credit reset completed", zap.Int("ledgers", reset))
	}
	return reset, nil
}
