// Package consolidation merges extraction and pattern analysis output into
// the canonical contract record.
package consolidation

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

// Settings controls how confidences are blended and committed.
type Settings struct {
	// CommitThreshold is the minimum per-field confidence (0-1) required
	// before a value overwrites a canonical field.
	CommitThreshold float64
	OCRWeight       float64
	PatternWeight   float64
	// LowOCRConfidence is the extraction confidence (0-100) under which a
	// verification recommendation is attached.
	LowOCRConfidence float64
}

// DefaultSettings returns the production blend.
func DefaultSettings() Settings {
	return Settings{
		CommitThreshold:  0.7,
		OCRWeight:        0.6,
		PatternWeight:    0.4,
		LowOCRConfidence: 70,
	}
}

// Input is everything consolidation reads besides the record itself.
type Input struct {
	// OCRConfidence is on a 0-100 scale.
	OCRConfidence float64
	// Pattern is nil when pattern analysis failed.
	Pattern    *models.PatternResult
	PatternErr error
}

// Outcome is the consolidated record plus what changed.
type Outcome struct {
	Contract          *models.Contract
	FinalConfidence   float64
	PatternConfidence float64
	Committed         []string
}

// FinalConfidence blends extraction (0-100) and pattern (0-1) confidences
// into a 0-100 score rounded to whole percent.
func FinalConfidence(ocr, pattern float64, s Settings) float64 {
	ocr = math.Max(0, math.Min(100, ocr))
	pattern = math.Max(0, math.Min(1, pattern))
	v := math.Round(((ocr/100)*s.OCRWeight + pattern*s.PatternWeight) * 100)
	return math.Max(0, math.Min(100, v))
}

// Apply returns a copy of c with confident pattern fields committed, the
// blended confidence stored and recommendations regenerated. Applying the
// same input twice yields the same record.
func Apply(c *models.Contract, in Input, s Settings) *Outcome {
	out := c.Clone()
	var committed []string

	patternConfidence := 0.0
	if in.Pattern != nil {
		patternConfidence = in.Pattern.ConfidenceScore
		committed = commitPattern(out, in.Pattern, s.CommitThreshold)
	}

	final := FinalConfidence(in.OCRConfidence, patternConfidence, s)
	ocr := in.OCRConfidence

	out.OCRConfidence = &ocr
	out.PatternResult = in.Pattern
	out.PatternConfidence = &patternConfidence
	out.FinalConfidence = &final
	out.Recommendations = Recommend(out, in, s)

	return &Outcome{
		Contract:          out,
		FinalConfidence:   final,
		PatternConfidence: patternConfidence,
		Committed:         committed,
	}
}

func commitPattern(c *models.Contract, p *models.PatternResult, threshold float64) []string {
	var committed []string
	sel := p.Selected

	if p.TacitRenewalDetected && p.ConfidenceScore >= threshold {
		c.IsTacitRenewal = true
		committed = append(committed, "is_tacit_renewal")
	}
	if sel.StartDate != nil && sel.StartDate.Confidence >= threshold {
		c.StartDate = models.DatePtr(sel.StartDate.Value)
		committed = append(committed, models.FieldStartDate)
	}
	if sel.EndDate != nil && sel.EndDate.Confidence >= threshold {
		c.EndDate = models.DatePtr(sel.EndDate.Value)
		c.NextRenewalDate = models.DatePtr(sel.EndDate.Value)
		committed = append(committed, models.FieldEndDate, "next_renewal_date")
	}
	if sel.NoticePeriod != nil && sel.NoticePeriod.Confidence >= threshold {
		days := sel.NoticePeriod.Days
		c.NoticePeriodDays = &days
		committed = append(committed, "notice_period_days")
	}

	switch {
	case sel.AnnualAmount != nil && sel.AnnualAmount.Confidence >= threshold:
		v := sel.AnnualAmount.Value
		c.Amount = &v
		c.Currency = currencyOr(sel.AnnualAmount.Currency, p.Currency)
		committed = append(committed, "amount")
	case sel.MonthlyAmount != nil && sel.MonthlyAmount.Confidence >= threshold:
		v := sel.MonthlyAmount.Value.Mul(decimal.NewFromInt(12))
		c.Amount = &v
		c.Currency = currencyOr(sel.MonthlyAmount.Currency, p.Currency)
		committed = append(committed, "amount")
	}

	return committed
}

// Recommend derives the actionable suggestions for a consolidated record.
func Recommend(c *models.Contract, in Input, s Settings) []models.Recommendation {
	recs := []models.Recommendation{}
	tacit := c.IsTacitRenewal || (in.Pattern != nil && in.Pattern.TacitRenewalDetected)

	if tacit && c.NoticePeriodDays != nil {
		msg := fmt.Sprintf("Tacit renewal clause detected: send the termination notice at least %d days before renewal", *c.NoticePeriodDays)
		if c.NextRenewalDate != nil {
			deadline := c.NextRenewalDate.AddDate(0, 0, -*c.NoticePeriodDays)
			msg += fmt.Sprintf(" (no later than %s)", deadline.Format("2006-01-02"))
		}
		recs = append(recs, models.Recommendation{Kind: models.RecommendationRenewalWarning, Priority: models.PriorityHigh, Message: msg})
	}
	if tacit && c.NoticePeriodDays == nil {
		recs = append(recs, models.Recommendation{
			Kind:     models.RecommendationManualCheck,
			Priority: models.PriorityMedium,
			Message:  "Tacit renewal clause detected but no notice period was found: check the termination clause manually",
		})
	}
	if in.OCRConfidence < s.LowOCRConfidence {
		recs = append(recs, models.Recommendation{
			Kind:     models.RecommendationVerifyExtraction,
			Priority: models.PriorityMedium,
			Message:  fmt.Sprintf("Text extraction confidence is %.0f%%: verify extracted dates and amounts against the document", in.OCRConfidence),
		})
	}
	if in.Pattern != nil && len(in.Pattern.ValidationWarnings) > 0 {
		recs = append(recs, models.Recommendation{
			Kind:     models.RecommendationDataInconsistency,
			Priority: models.PriorityMedium,
			Message:  "Extracted data is inconsistent: " + strings.Join(in.Pattern.ValidationWarnings, "; "),
		})
	}
	if in.Pattern == nil && in.PatternErr != nil {
		recs = append(recs, models.Recommendation{
			Kind:     models.RecommendationPatternFailed,
			Priority: models.PriorityMedium,
			Message:  "Clause analysis could not run on this document; fields were not extracted automatically",
		})
	}
	if tacit && c.EndDate != nil {
		recs = append(recs, models.Recommendation{
			Kind:     models.RecommendationScheduleAlerts,
			Priority: models.PriorityLow,
			Message:  fmt.Sprintf("Renewal reminders are scheduled ahead of %s", c.EndDate.Format("2006-01-02")),
		})
	}

	return recs
}

func currencyOr(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}
