package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

func newTestCreditService(repo *fakeLedgerRepo, now time.Time) *creditLedgerService {
	svc := NewCreditLedgerService(repo, 5, nil, nil, zap.NewNop()).(*creditLedgerService)
	svc.now = fixedNow(now)
	return svc
}

func TestCreditLedgerService_BalanceCreatesLedger(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	repo := newFakeLedgerRepo()
	svc := newTestCreditService(repo, now)
	userID := uuid.New()

	balance, err := svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 5, balance.Remaining)
	assert.Equal(t, 5, balance.MonthlyLimit)
	assert.Equal(t, models.NewDate(2026, 4, 1), balance.ResetDate)
}

func TestCreditLedgerService_BalanceAppliesDueReset(t *testing.T) {
	now := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	userID := uuid.New()
	repo := newFakeLedgerRepo(models.CreditLedger{
		UserID:        userID,
		Remaining:     0,
		MonthlyLimit:  5,
		Purchased:     2,
		UsedThisMonth: 7,
		TotalUsed:     12,
		ResetDate:     models.NewDate(2026, 4, 1),
	})
	svc := newTestCreditService(repo, now)

	balance, err := svc.Balance(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 7, balance.Remaining)
	assert.Equal(t, 0, balance.UsedThisMonth)
	assert.Equal(t, models.NewDate(2026, 5, 1), balance.ResetDate)
}

func TestCreditLedgerService_ConsumeAndRefund(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	repo := newFakeLedgerRepo()
	svc := newTestCreditService(repo, now)
	userID := uuid.New()
	ctx := context.Background()

	_, err := svc.Balance(ctx, userID)
	require.NoError(t, err)
	before := repo.ledger(userID)

	balance, err := svc.Consume(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 4, balance.Remaining)
	assert.Equal(t, 1, balance.UsedThisMonth)

	_, err = svc.Refund(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, before, repo.ledger(userID))
}

func TestCreditLedgerService_ConsumeOnEmptyBalance(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	userID := uuid.New()
	empty := models.CreditLedger{
		UserID:        userID,
		MonthlyLimit:  5,
		UsedThisMonth: 5,
		TotalUsed:     5,
		ResetDate:     models.NewDate(2026, 4, 1),
	}
	repo := newFakeLedgerRepo(empty)
	svc := newTestCreditService(repo, now)

	balance, err := svc.Consume(context.Background(), userID)
	require.ErrorIs(t, err, apperrors.ErrInsufficientCredits)
	assert.Nil(t, balance)
	assert.Equal(t, empty, repo.ledger(userID))
}

func TestCreditLedgerService_Purchase(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	repo := newFakeLedgerRepo()
	svc := newTestCreditService(repo, now)
	userID := uuid.New()

	balance, err := svc.Purchase(context.Background(), userID, 10)
	require.NoError(t, err)
	assert.Equal(t, 15, balance.Remaining)
	assert.Equal(t, 10, balance.Purchased)

	_, err = svc.Purchase(context.Background(), userID, 0)
	require.ErrorIs(t, err, apperrors.ErrInvalidAmount)
	assert.Equal(t, 15, repo.ledger(userID).Remaining)
}

func TestCreditLedgerService_ResetDue(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 5, 0, 0, time.UTC)
	due := uuid.New()
	notDue := uuid.New()
	repo := newFakeLedgerRepo(
		models.CreditLedger{UserID: due, MonthlyLimit: 5, UsedThisMonth: 5, ResetDate: models.NewDate(2026, 4, 1)},
		models.CreditLedger{UserID: notDue, Remaining: 1, MonthlyLimit: 5, UsedThisMonth: 4, ResetDate: models.NewDate(2026, 5, 1)},
	)
	svc := newTestCreditService(repo, now)

	n, err := svc.ResetDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 5, repo.ledger(due).Remaining)
	assert.Equal(t, models.NewDate(2026, 5, 1), repo.ledger(due).ResetDate)
	assert.Equal(t, 1, repo.ledger(notDue).Remaining)
}
