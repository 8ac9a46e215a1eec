package models

import (
	"time"

	"github.com/google/uuid"
)

// Alert event types.
const (
	AlertTypeRenewalWarning  = "renewal_warning"
	AlertTypeNoticeDeadline  = "notice_deadline"
	AlertTypeContractExpired = "contract_expired"
	AlertTypeRenewal         = "renewal"
	AlertTypeExpiry          = "expiry"
	AlertTypeCustom          = "custom"
)

// Alert event statuses.
const (
	AlertStatusPending  = "pending"
	AlertStatusSent     = "sent"
	AlertStatusFailed   = "failed"
	AlertStatusActive   = "active"
	AlertStatusInactive = "inactive"
	AlertStatusExpired  = "expired"
)

// AlertEvent is a dated reminder derived from a contract's renewal schedule.
// At most one event exists per (ContractID, Type, ScheduledFor).
type AlertEvent struct {
	ID           uuid.UUID  `json:"id"`
	ContractID   uuid.UUID  `json:"contract_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Type         string     `json:"type"`
	OffsetDays   int        `json:"offset_days"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	Status       string     `json:"status"`
	Message      string     `json:"message"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// AlertKey identifies an event independently of its storage identity.
type AlertKey struct {
	ContractID   uuid.UUID
	Type         string
	ScheduledFor time.Time
}

// Key returns the uniqueness key for the event.
func (e *AlertEvent) Key() AlertKey {
	return AlertKey{ContractID: e.ContractID, Type: e.Type, ScheduledFor: DateOf(e.ScheduledFor)}
}

// ValidAlertStatus reports whether s is a known alert status.
func ValidAlertStatus(s string) bool {
	switch s {
	case AlertStatusPending, AlertStatusSent, AlertStatusFailed,
		AlertStatusActive, AlertStatusInactive, AlertStatusExpired:
		return true
	}
	return false
}
