// Package credits holds the pure arithmetic of the per-user credit ledger.
// Persistence and locking live in the repository layer; every function here
// returns a new ledger value and never touches storage.
package credits

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-renewals/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

// New returns a fresh ledger for a user with a full monthly allowance.
func New(userID uuid.UUID, monthlyLimit int, now time.Time) models.CreditLedger {
	return models.CreditLedger{
		UserID:       userID,
		Remaining:    monthlyLimit,
		MonthlyLimit: monthlyLimit,
		ResetDate:    NextResetDate(now),
	}
}

// NextResetDate returns the first day of the month following now, in UTC.
func NextResetDate(now time.Time) time.Time {
	y, m, _ := now.UTC().Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
}

// ResetDue reports whether the monthly counters should be reset at now.
func ResetDue(l models.CreditLedger, now time.Time) bool {
	return !now.UTC().Before(l.ResetDate)
}

// ResetMonthly restores the monthly allowance plus purchased credits.
func ResetMonthly(l models.CreditLedger, now time.Time) models.CreditLedger {
	l.Remaining = l.MonthlyLimit + l.Purchased
	l.UsedThisMonth = 0
	l.ResetDate = NextResetDate(now)
	return l
}

// Consume spends one credit, resetting first when a reset is due. On an empty
// balance the ledger is returned unchanged with ErrInsufficientCredits.
func Consume(l models.CreditLedger, now time.Time) (models.CreditLedger, error) {
	if ResetDue(l, now) {
		l = ResetMonthly(l, now)
	}
	if l.Remaining <= 0 {
		return l, apperrors.ErrInsufficientCredits
	}
	l.Remaining--
	l.UsedThisMonth++
	l.TotalUsed++
	return l, nil
}

// Refund returns one previously consumed credit.
func Refund(l models.CreditLedger) models.CreditLedger {
	l.Remaining++
	l.UsedThisMonth = max(0, l.UsedThisMonth-1)
	l.TotalUsed = max(0, l.TotalUsed-1)
	return l
}

// Purchase adds n bought credits to the balance.
func Purchase(l models.CreditLedger, n int) (models.CreditLedger, error) {
	if n <= 0 {
		return l, fmt.Errorf("purchase of %d credits: %w", n, apperrors.ErrInvalidAmount)
	}
	l.Purchased += n
	l.Remaining += n
	return l, nil
}
