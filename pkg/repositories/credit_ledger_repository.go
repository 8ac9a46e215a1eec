package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-renewals/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-renewals/pkg/credits"
	"github.com/ekaya-inc/ekaya-renewals/pkg/database"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

// LedgerMutation computes the next ledger state. Returning an error aborts
// the transaction and leaves the stored ledger untouched.
type LedgerMutation func(models.CreditLedger) (models.CreditLedger, error)

// CreditLedgerRepository provides locked access to per-user credit ledgers.
type CreditLedgerRepository interface {
	// Get returns the stored ledger or apperrors.ErrNotFound.
	Get(ctx context.Context, userID uuid.UUID) (*models.CreditLedger, error)
	// Mutate applies fn under a row lock, creating the ledger with
	// defaultLimit first when the user has none. On error it returns the
	// ledger as stored.
	Mutate(ctx context.Context, userID uuid.UUID, defaultLimit int, now time.Time, fn LedgerMutation) (models.CreditLedger, error)
	// ListDueForReset returns users whose reset date is at or before now.
	ListDueForReset(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type creditLedgerRepository struct{}

// NewCreditLedgerRepository creates a CreditLedgerRepository.
func NewCreditLedgerRepository() CreditLedgerRepository {
	return &creditLedgerRepository{}
}

var _ CreditLedgerRepository = (*creditLedgerRepository)(nil)

const creditLedgerColumns = `
	user_id, remaining, monthly_limit, purchased, used_this_month, total_used,
	reset_date, created_at, updated_at`

func (r *creditLedgerRepository) Get(ctx context.Context, userID uuid.UUID) (*models.CreditLedger, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	l, err := scanLedger(scope.Conn.QueryRow(ctx,
		`SELECT `+creditLedgerColumns+` FROM credit_ledgers WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credit ledger: %w", err)
	}
	return &l, nil
}

func (r *creditLedgerRepository) Mutate(ctx context.Context, userID uuid.UUID, defaultLimit int, now time.Time, fn LedgerMutation) (models.CreditLedger, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return models.CreditLedger{}, fmt.Errorf("no database scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return models.CreditLedger{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	fresh := credits.New(userID, defaultLimit, now)
	if _, err := tx.Exec(ctx, `
		INSERT INTO credit_ledgers (user_id, remaining, monthly_limit, reset_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING`,
		fresh.UserID, fresh.Remaining, fresh.MonthlyLimit, fresh.ResetDate); err != nil {
		return models.CreditLedger{}, fmt.Errorf("failed to create credit ledger: %w", err)
	}

	current, err := scanLedger(tx.QueryRow(ctx,
		`SELECT `+creditLedgerColumns+` FROM credit_ledgers WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return models.CreditLedger{}, fmt.Errorf("failed to lock credit ledger: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return current, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE credit_ledgers SET
			remaining = $2, monthly_limit = $3, purchased = $4,
			used_this_month = $5, total_used = $6, reset_date = $7, updated_at = NOW()
		WHERE user_id = $1
		RETURNING updated_at`,
		userID, next.Remaining, next.MonthlyLimit, next.Purchased,
		next.UsedThisMonth, next.TotalUsed, next.ResetDate,
	).Scan(&next.UpdatedAt)
	if err != nil {
		return current, fmt.Errorf("failed to update credit ledger: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return current, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return next, nil
}

func (r *creditLedgerRepository) ListDueForReset(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT user_id FROM credit_ledgers
		WHERE reset_date <= $1
		ORDER BY reset_date
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledgers due for reset: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledgers: %w", err)
	}
	return ids, nil
}

func scanLedger(row pgx.Row) (models.CreditLedger, error) {
	var l models.CreditLedger
	err := row.Scan(
		&l.UserID, &l.Remaining, &l.MonthlyLimit, &l.Purchased, &l.UsedThisMonth, &l.TotalUsed,
		&l.ResetDate, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == nil {
		l.ResetDate = l.ResetDate.UTC()
	}
	return l, err
}
