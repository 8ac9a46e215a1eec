// Package notify delivers due alert events to their owners.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

// Notifier delivers one alert event.
type Notifier interface {
	Notify(ctx context.Context, event models.AlertEvent) error
}

// LogNotifier writes alerts to the log. It is the fallback when no message
// broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

var _ Notifier = (*LogNotifier)(nil)

func (n *LogNotifier) Notify(ctx context.Context, event models.AlertEvent) error {
	n.logger.Info("Renewal alert",
		zap.String("alert_id", event.ID.String()),
		zap.String("contract_id", event.ContractID.String()),
		zap.String("user_id", event.UserID.String()),
		zap.String("type", event.Type),
		zap.String("scheduled_for", event.ScheduledFor.Format("2006-01-02")),
		zap.String("message", event.Message))
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

var _ Notifier = Fanout(nil)

func (f Fanout) Notify(ctx context.Context, event models.AlertEvent) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
