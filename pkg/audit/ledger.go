// Package audit records credit ledger movements for billing reconciliation.
// Events are logged in structured JSON form so they can be shipped to a
// log pipeline and replayed against the ledger table.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LedgerEventType categorizes ledger movements.
type LedgerEventType string

const (
	// EventCreditConsumed is logged when an analysis spends a credit.
	EventCreditConsumed LedgerEventType = "credit_consumed"
	// EventCreditRefunded is logged when a failed analysis returns its credit.
	EventCreditRefunded LedgerEventType = "credit_refunded"
	// EventCreditsPurchased is logged when bought credits are added.
	EventCreditsPurchased LedgerEventType = "credits_purchased"
	// EventConsumptionRejected is logged when a user runs out of credits.
	EventConsumptionRejected LedgerEventType = "consumption_rejected"
	// EventMonthlyReset is logged when a ledger rolls over to a new month.
	EventMonthlyReset LedgerEventType = "monthly_reset"
)

// LedgerEvent is one auditable ledger movement.
type LedgerEvent struct {
	Timestamp time.Time       `json:"timestamp"`
	EventType LedgerEventType `json:"event_type"`
	UserID    uuid.UUID       `json:"user_id"`
	Delta     int             `json:"delta"`
	Remaining int             `json:"remaining"`
	Purchased int             `json:"purchased"`
}

// LedgerAuditor logs ledger movements. A nil *LedgerAuditor discards events.
type LedgerAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewLedgerAuditor creates an auditor under the "ledger_audit" logger
// namespace so the trail can be filtered downstream.
func NewLedgerAuditor(logger *zap.Logger) *LedgerAuditor {
	return &LedgerAuditor{
		logger: logger.Named("ledger_audit"),
		now:    time.Now,
	}
}

// LogConsumed records one credit spent by an analysis.
func (a *LedgerAuditor) LogConsumed(userID uuid.UUID, remaining, purchased int) {
	a.log(zap.InfoLevel, "Credit consumed", EventCreditConsumed, userID, -1, remaining, purchased)
}

// LogRefunded records one credit given back after a failed analysis.
func (a *LedgerAuditor) LogRefunded(userID uuid.UUID, remaining, purchased int) {
	a.log(zap.InfoLevel, "Credit refunded", EventCreditRefunded, userID, 1, remaining, purchased)
}

// LogPurchased records bought credits.
func (a *LedgerAuditor) LogPurchased(userID uuid.UUID, amount, remaining, purchased int) {
	a.log(zap.InfoLevel, "Credits purchased", EventCreditsPurchased, userID, amount, remaining, purchased)
}

// LogRejected records a consumption refused for lack of credits. It is
// logged at WARN so repeated exhaustion stands out.
func (a *LedgerAuditor) LogRejected(userID uuid.UUID, remaining, purchased int) {
	a.log(zap.WarnLevel, "Credit consumption rejected", EventConsumptionRejected, userID, 0, remaining, purchased)
}

// LogReset records a monthly rollover. delta is the change in remaining
// credits, which can be negative when unused monthly credits lapse.
func (a *LedgerAuditor) LogReset(userID uuid.UUID, delta, remaining, purchased int) {
	a.log(zap.InfoLevel, "Monthly credit reset", EventMonthlyReset, userID, delta, remaining, purchased)
}

func (a *LedgerAuditor) log(level zapcore.Level, msg string, eventType LedgerEventType, userID uuid.UUID, delta, remaining, purchased int) {
	if a == nil {
		return
	}

	event := LedgerEvent{
		Timestamp: a.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Delta:     delta,
		Remaining: remaining,
		Purchased: purchased,
	}

	// Ignoring error as marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	a.logger.Log(level, msg,
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(eventType)),
		zap.String("user_id", userID.String()),
		zap.Int("delta", delta),
		zap.Int("remaining", remaining),
	)
}
