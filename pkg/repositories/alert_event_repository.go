package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-renewals/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-renewals/pkg/database"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

// AlertEventRepository provides data access for scheduled alert events.
type AlertEventRepository interface {
	// ReplaceForContract swaps every unsent event of the contract for plan in
	// one transaction and returns the resulting event set.
	ReplaceForContract(ctx context.Context, contractID uuid.UUID, plan []models.AlertEvent, renewalDate *time.Time, today time.Time) ([]models.AlertEvent, error)
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.AlertEvent, error)
	// ListDue returns pending events scheduled for day, oldest first.
	ListDue(ctx context.Context, day time.Time, limit int) ([]models.AlertEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	// ExpireStale marks pending events scheduled before today as expired.
	ExpireStale(ctx context.Context, today time.Time) (int64, error)
}

type alertEventRepository struct{}

// NewAlertEventRepository creates an AlertEventRepository.
func NewAlertEventRepository() AlertEventRepository {
	return &alertEventRepository{}
}

var _ AlertEventRepository = (*alertEventRepository)(nil)

const alertEventColumns = `
	id, contract_id, user_id, type, offset_days, scheduled_for, status,
	message, sent_at, last_error, created_at, updated_at`

func (r *alertEventRepository) ReplaceForContract(ctx context.Context, contractID uuid.UUID, plan []models.AlertEvent, renewalDate *time.Time, today time.Time) ([]models.AlertEvent, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}
	today = models.DateOf(today)

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	// Sent events stay as delivery history and keep their slot, so the
	// insert below never re-plans a delivered alert.
	if _, err := tx.Exec(ctx, `
		DELETE FROM alert_events
		WHERE contract_id = $1 AND status <> 'sent'`,
		contractID); err != nil {
		return nil, fmt.Errorf("failed to delete alert events: %w", err)
	}

	for _, e := range plan {
		if e.ContractID != contractID {
			return nil, fmt.Errorf("alert event for contract %s in plan for %s", e.ContractID, contractID)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO alert_events (contract_id, user_id, type, offset_days, scheduled_for, status, message)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (contract_id, type, scheduled_for) DO NOTHING`,
			e.ContractID, e.UserID, e.Type, e.OffsetDays, models.DateOf(e.ScheduledFor), models.AlertStatusPending, e.Message,
		); err != nil {
			return nil, fmt.Errorf("failed to insert alert event: %w", err)
		}
	}

	if renewalDate != nil {
		if _, err := tx.Exec(ctx, `
			DELETE FROM alert_events
			WHERE contract_id = $1 AND type = 'contract_expired' AND status = 'pending' AND scheduled_for > $2`,
			contractID, models.DateOf(*renewalDate)); err != nil {
			return nil, fmt.Errorf("failed to prune expiry events: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE alert_events SET status = 'expired', updated_at = NOW()
		WHERE contract_id = $1 AND status = 'pending' AND scheduled_for < $2`,
		contractID, today); err != nil {
		return nil, fmt.Errorf("failed to expire stale alert events: %w", err)
	}

	events, err := queryAlertEvents(ctx, tx, `
		SELECT `+alertEventColumns+`
		FROM alert_events
		WHERE contract_id = $1
		ORDER BY scheduled_for, type`, contractID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return events, nil
}

func (r *alertEventRepository) ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.AlertEvent, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	return queryAlertEvents(ctx, scope.Conn, `
		SELECT `+alertEventColumns+`
		FROM alert_events
		WHERE contract_id = $1
		ORDER BY scheduled_for, type`, contractID)
}

func (r *alertEventRepository) ListDue(ctx context.Context, day time.Time, limit int) ([]models.AlertEvent, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}
	if limit <= 0 {
		limit = 500
	}

	return queryAlertEvents(ctx, scope.Conn, `
		SELECT `+alertEventColumns+`
		FROM alert_events
		WHERE status = 'pending' AND scheduled_for = $1
		ORDER BY created_at
		LIMIT $2`, models.DateOf(day), limit)
}

func (r *alertEventRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE alert_events SET status = 'sent', sent_at = $2, last_error = '', updated_at = NOW()
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark alert event sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *alertEventRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE alert_events SET status = 'failed', last_error = $2, updated_at = NOW()
		WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark alert event failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *alertEventRepository) ExpireStale(ctx context.Context, today time.Time) (int64, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE alert_events SET status = 'expired', updated_at = NOW()
		WHERE status = 'pending' AND scheduled_for < $1`, models.DateOf(today))
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale alert events: %w", err)
	}
	return result.RowsAffected(), nil
}

// querier is satisfied by both pooled connections and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryAlertEvents(ctx context.Context, q querier, sql string, args ...any) ([]models.AlertEvent, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	var events []models.AlertEvent
	for rows.Next() {
		var e models.AlertEvent
		if err := rows.Scan(
			&e.ID, &e.ContractID, &e.UserID, &e.Type, &e.OffsetDays, &e.ScheduledFor, &e.Status,
			&e.Message, &e.SentAt, &e.LastError, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert events: %w", err)
	}
	return events, nil
}
