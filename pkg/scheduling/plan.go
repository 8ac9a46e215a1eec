// Package scheduling derives the dated alert events of a contract from its
// renewal date and notice period. Planning is pure: the same input always
// yields the same events, which makes regeneration idempotent.
package scheduling

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

// Offset is one reminder ahead of the renewal date.
type Offset struct {
	Days int
	Type string
}

// DefaultOffsets are the fixed renewal reminders. The notice deadline is
// added per contract.
func DefaultOffsets() []Offset {
	return []Offset{
		{Days: 90, Type: models.AlertTypeRenewalWarning},
		{Days: 30, Type: models.AlertTypeRenewalWarning},
		{Days: 7, Type: models.AlertTypeRenewalWarning},
	}
}

// Input is everything the planner reads.
type Input struct {
	ContractID       uuid.UUID
	UserID           uuid.UUID
	Title            string
	NextRenewalDate  *time.Time
	NoticePeriodDays *int
	Today            time.Time
	// Offsets overrides DefaultOffsets when non-empty.
	Offsets []Offset
}

// Plan returns the pending events for a contract, sorted by date. Events
// never carry storage identity; the repository assigns it.
func Plan(in Input) []models.AlertEvent {
	if in.NextRenewalDate == nil {
		return nil
	}
	today := models.DateOf(in.Today)
	renewal := models.DateOf(*in.NextRenewalDate)

	switch {
	case renewal.Before(today):
		return nil
	case renewal.Equal(today):
		return []models.AlertEvent{newEvent(in, models.AlertTypeContractExpired, 0, renewal)}
	}

	offsets := in.Offsets
	if len(offsets) == 0 {
		offsets = DefaultOffsets()
	}
	if in.NoticePeriodDays != nil && *in.NoticePeriodDays > 0 {
		offsets = append(append([]Offset(nil), offsets...), Offset{Days: *in.NoticePeriodDays, Type: models.AlertTypeNoticeDeadline})
	}

	byDate := make(map[time.Time]models.AlertEvent, len(offsets))
	for _, o := range offsets {
		if o.Days <= 0 {
			continue
		}
		at := renewal.AddDate(0, 0, -o.Days)
		if at.Before(today) {
			continue
		}
		if existing, ok := byDate[at]; ok && !wins(o.Type, existing.Type) {
			continue
		}
		byDate[at] = newEvent(in, o.Type, o.Days, at)
	}

	events := make([]models.AlertEvent, 0, len(byDate))
	for _, e := range byDate {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].ScheduledFor.Before(events[j].ScheduledFor)
	})
	return events
}

// wins reports whether an event of type candidate replaces one of type
// current on the same day.
func wins(candidate, current string) bool {
	return candidate == models.AlertTypeNoticeDeadline && current != models.AlertTypeNoticeDeadline
}

func newEvent(in Input, alertType string, offset int, at time.Time) models.AlertEvent {
	return models.AlertEvent{
		ContractID:   in.ContractID,
		UserID:       in.UserID,
		Type:         alertType,
		OffsetDays:   offset,
		ScheduledFor: at,
		Status:       models.AlertStatusPending,
		Message:      Message(in.Title, alertType, offset, models.DateOf(*in.NextRenewalDate)),
	}
}

// Message renders the user-facing text of an alert.
func Message(title, alertType string, offset int, renewal time.Time) string {
	name := title
	if name == "" {
		name = "Your contract"
	}
	day := renewal.Format("2006-01-02")

	switch alertType {
	case models.AlertTypeNoticeDeadline:
		return fmt.Sprintf("%s: last day to send the termination notice (%d days before the %s renewal)", name, offset, day)
	case models.AlertTypeContractExpired:
		return fmt.Sprintf("%s renews or expires today (%s)", name, day)
	default:
		return fmt.Sprintf("%s renews in %d days, on %s", name, offset, day)
	}
}
