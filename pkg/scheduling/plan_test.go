package scheduling

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

var today = models.NewDate(2026, 5, 10)

func input(renewalIn int, notice *int) Input {
	renewal := today.AddDate(0, 0, renewalIn)
	return Input{
		ContractID:       uuid.MustParse("0d8f6c1e-8b0a-4a51-9a3c-2b1d7e6f5a40"),
		UserID:           uuid.MustParse("5e2a1c9d-7b3f-4e60-8d21-6c4b3a2f1e09"),
		Title:            "Office lease",
		NextRenewalDate:  &renewal,
		NoticePeriodDays: notice,
		Today:            today.Add(14 * time.Hour),
	}
}

func intPtr(v int) *int { return &v }

func offsets(events []models.AlertEvent) []int {
	out := make([]int, 0, len(events))
	for _, e := range events {
		out = append(out, e.OffsetDays)
	}
	return out
}

func TestPlan_NoticeCoincidesWithThirtyDayWarning(t *testing.T) {
	events := Plan(input(45, intPtr(30)))

	require.Len(t, events, 2)
	assert.Equal(t, []int{30, 7}, offsets(events))

	assert.Equal(t, models.AlertTypeNoticeDeadline, events[0].Type)
	assert.Equal(t, today.AddDate(0, 0, 15), events[0].ScheduledFor)
	assert.Equal(t, models.AlertTypeRenewalWarning, events[1].Type)
	assert.Equal(t, today.AddDate(0, 0, 38), events[1].ScheduledFor)

	for _, e := range events {
		assert.Equal(t, models.AlertStatusPending, e.Status)
		assert.Equal(t, uuid.Nil, e.ID)
		assert.NotEmpty(t, e.Message)
	}
}

func TestPlan_AllOffsetsInFuture(t *testing.T) {
	events := Plan(input(200, intPtr(60)))

	assert.Equal(t, []int{90, 60, 30, 7}, offsets(events))
	assert.Equal(t, models.AlertTypeNoticeDeadline, events[1].Type)
}

func TestPlan_RenewalToday(t *testing.T) {
	events := Plan(input(0, intPtr(30)))

	require.Len(t, events, 1)
	assert.Equal(t, models.AlertTypeContractExpired, events[0].Type)
	assert.Equal(t, 0, events[0].OffsetDays)
	assert.Equal(t, today, events[0].ScheduledFor)
}

func TestPlan_NoEvents(t *testing.T) {
	past := input(-1, intPtr(30))
	assert.Empty(t, Plan(past))

	missing := input(10, nil)
	missing.NextRenewalDate = nil
	assert.Empty(t, Plan(missing))
}

func TestPlan_OffsetFallingToday(t *testing.T) {
	events := Plan(input(7, nil))

	require.Len(t, events, 1)
	assert.Equal(t, today, events[0].ScheduledFor)
}

func TestPlan_Idempotent(t *testing.T) {
	in := input(120, intPtr(45))

	first := Plan(in)
	second := Plan(in)

	assert.Equal(t, first, second)

	seen := map[models.AlertKey]bool{}
	for _, e := range first {
		assert.False(t, seen[e.Key()], "duplicate event %v", e.Key())
		seen[e.Key()] = true
	}
}

func TestPlan_CustomOffsets(t *testing.T) {
	in := input(20, nil)
	in.Offsets = []Offset{{Days: 14, Type: models.AlertTypeRenewalWarning}, {Days: 0, Type: models.AlertTypeRenewalWarning}}

	assert.Equal(t, []int{14}, offsets(Plan(in)))
}

func TestMessage(t *testing.T) {
	renewal := models.NewDate(2026, 9, 1)

	assert.Equal(t, "Office lease renews in 30 days, on 2026-09-01",
		Message("Office lease", models.AlertTypeRenewalWarning, 30, renewal))
	assert.Contains(t, Message("", models.AlertTypeNoticeDeadline, 60, renewal), "Your contract: last day")
}
