//go:build integration

package migrations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-renewals/pkg/testhelpers"
)

// Test_003_CreditLedgersNonNegative verifies the balance check constraint.
func Test_003_CreditLedgersNonNegative(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	_, err := testDB.DB.Exec(ctx,
		`INSERT INTO credit_ledgers (user_id, remaining, reset_date) VALUES ($1, -1, $2)`,
		uuid.New(), time.Now())
	assert.Error(t, err, "remaining must not go below zero")

	_, err = testDB.DB.Exec(ctx,
		`INSERT INTO credit_ledgers (user_id, remaining, monthly_limit, reset_date) VALUES ($1, 5, 5, $2)`,
		uuid.New(), time.Now())
	assert.NoError(t, err)
}
