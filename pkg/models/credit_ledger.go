package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditLedger is the per-user balance of semantic analysis credits.
// Remaining never drops below zero.
type CreditLedger struct {
	UserID        uuid.UUID `json:"user_id"`
	Remaining     int       `json:"remaining"`
	MonthlyLimit  int       `json:"monthly_limit"`
	Purchased     int       `json:"purchased"`
	UsedThisMonth int       `json:"used_this_month"`
	TotalUsed     int       `json:"total_used"`
	ResetDate     time.Time `json:"reset_date"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreditBalance is the balance snapshot returned to callers.
type CreditBalance struct {
	Remaining     int       `json:"remaining"`
	MonthlyLimit  int       `json:"monthly_limit"`
	Purchased     int       `json:"purchased"`
	UsedThisMonth int       `json:"used_this_month"`
	ResetDate     time.Time `json:"reset_date"`
}

// Balance returns the caller-facing snapshot.
func (l *CreditLedger) Balance() CreditBalance {
	return CreditBalance{
		Remaining:     l.Remaining,
		MonthlyLimit:  l.MonthlyLimit,
		Purchased:     l.Purchased,
		UsedThisMonth: l.UsedThisMonth,
		ResetDate:     l.ResetDate,
	}
}
