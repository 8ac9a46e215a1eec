package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

// AlertMessage is the JSON payload published for each alert.
type AlertMessage struct {
	AlertID      uuid.UUID `json:"alert_id"`
	ContractID   uuid.UUID `json:"contract_id"`
	UserID       uuid.UUID `json:"user_id"`
	Type         string    `json:"type"`
	OffsetDays   int       `json:"offset_days"`
	ScheduledFor string    `json:"scheduled_for"`
	Message      string    `json:"message"`
}

// NATSNotifier publishes alerts on "<subject>.<type>".
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// Connect dials the NATS server with reconnects enabled.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("ekaya-renewals"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrlRedacted()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NewNATSNotifier creates a notifier publishing on subject.
func NewNATSNotifier(conn *nats.Conn, subject string, logger *zap.Logger) *NATSNotifier {
	return &NATSNotifier{
		conn:    conn,
		subject: subject,
		logger:  logger.Named("notify-nats"),
	}
}

var _ Notifier = (*NATSNotifier)(nil)

func (n *NATSNotifier) Notify(ctx context.Context, event models.AlertEvent) error {
	data, err := json.Marshal(AlertMessage{
		AlertID:      event.ID,
		ContractID:   event.ContractID,
		UserID:       event.UserID,
		Type:         event.Type,
		OffsetDays:   event.OffsetDays,
		ScheduledFor: event.ScheduledFor.Format("2006-01-02"),
		Message:      event.Message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	subject := n.subject + "." + event.Type
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, event.ID.String())

	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish alert on %s: %w", subject, err)
	}
	// An alert counts as sent only once the server has acknowledged it.
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush alert on %s: %w", subject, err)
	}

	n.logger.Debug("Alert published",
		zap.String("subject", subject),
		zap.String("alert_id", event.ID.String()))
	return nil
}
