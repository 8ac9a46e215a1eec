package consolidation

import (
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

// SemanticOutcome reports what a semantic analysis changed on the record.
type SemanticOutcome struct {
	Contract  *models.Contract
	Committed []string
	// ScheduleChanged is true when a field that drives alert scheduling
	// changed value.
	ScheduleChanged bool
}

// ApplySemantic commits each analysis field whose own confidence reaches
// the threshold. Fields without their own confidence use the analysis-wide
// score.
func ApplySemantic(c *models.Contract, a *models.AIAnalysis, threshold float64) *SemanticOutcome {
	out := c.Clone()
	res := &SemanticOutcome{Contract: out}
	if a == nil {
		return res
	}

	conf := func(field float64) float64 {
		if field > 0 {
			return field
		}
		return a.ConfidenceScore
	}

	if f := a.IsTacitRenewal; f != nil && conf(f.Confidence) >= threshold {
		out.IsTacitRenewal = f.Value
		res.Committed = append(res.Committed, "is_tacit_renewal")
	}
	if f := a.StartDate; f != nil && !f.Value.IsZero() && conf(f.Confidence) >= threshold {
		out.StartDate = models.DatePtr(f.Value)
		res.Committed = append(res.Committed, models.FieldStartDate)
	}
	if f := a.EndDate; f != nil && !f.Value.IsZero() && conf(f.Confidence) >= threshold {
		out.EndDate = models.DatePtr(f.Value)
		out.NextRenewalDate = models.DatePtr(f.Value)
		res.Committed = append(res.Committed, models.FieldEndDate, "next_renewal_date")
	}
	if f := a.NoticePeriodDays; f != nil && f.Value > 0 && conf(f.Confidence) >= threshold {
		days := f.Value
		out.NoticePeriodDays = &days
		res.Committed = append(res.Committed, "notice_period_days")
	}
	if f := a.Amount; f != nil && f.Value.IsPositive() && conf(f.Confidence) >= threshold {
		v := f.Value
		out.Amount = &v
		if f.Currency != "" {
			out.Currency = f.Currency
		}
		res.Committed = append(res.Committed, "amount")
	}

	res.ScheduleChanged = !models.SameDate(c.NextRenewalDate, out.NextRenewalDate) ||
		!sameInt(c.NoticePeriodDays, out.NoticePeriodDays)
	return res
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
