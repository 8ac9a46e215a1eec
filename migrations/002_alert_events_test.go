//go:build integration

package migrations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-renewals/pkg/testhelpers"
)

// Test_002_AlertEventsUnique verifies one event per (contract, type, date).
func Test_002_AlertEventsUnique(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	contractID := uuid.New()
	userID := uuid.New()
	_, err := testDB.DB.Exec(ctx,
		`INSERT INTO contracts (id, user_id, file_path) VALUES ($1, $2, 'a.pdf')`, contractID, userID)
	require.NoError(t, err)

	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	insert := `INSERT INTO alert_events (contract_id, user_id, type, scheduled_for) VALUES ($1, $2, $3, $4)`

	_, err = testDB.DB.Exec(ctx, insert, contractID, userID, "renewal_warning", day)
	require.NoError(t, err)

	_, err = testDB.DB.Exec(ctx, insert, contractID, userID, "renewal_warning", day)
	assert.Error(t, err, "duplicate (contract, type, date) must be rejected")

	_, err = testDB.DB.Exec(ctx, insert, contractID, userID, "notice_deadline", day)
	assert.NoError(t, err, "another type on the same date is allowed")

	_, err = testDB.DB.Exec(ctx, `DELETE FROM contracts WHERE id = $1`, contractID)
	require.NoError(t, err)

	var left int
	require.NoError(t, testDB.DB.QueryRow(ctx,
		`SELECT COUNT(*) FROM alert_events WHERE contract_id = $1`, contractID).Scan(&left))
	assert.Zero(t, left, "events cascade with their contract")
}
