// Package patterns implements the rule-based renewal clause analyzer.
package patterns

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

// Analyzer detects tacit renewal phrasing and extracts dated, priced and
// notice fields from contract text.
type Analyzer interface {
	Analyze(text string) (*models.PatternResult, error)
}

// Settings holds the tunable thresholds of the analyzer.
type Settings struct {
	DateFloor       float64
	AmountFloor     float64
	NoticeFloor     float64
	DayFirst        bool
	DefaultCurrency string
	AmountTolerance float64
	MinNoticeDays   int
	MaxNoticeDays   int
	MinDurationDays int
	MaxDurationDays int
}

// DefaultSettings returns the production thresholds.
func DefaultSettings() Settings {
	return Settings{
		DateFloor:       0.6,
		AmountFloor:     0.5,
		NoticeFloor:     0.6,
		DayFirst:        true,
		DefaultCurrency: "EUR",
		AmountTolerance: 0.15,
		MinNoticeDays:   1,
		MaxNoticeDays:   365,
		MinDurationDays: 1,
		MaxDurationDays: 3650,
	}
}

type ruleAnalyzer struct {
	rules    *RuleSet
	settings Settings
}

// NewAnalyzer creates an Analyzer over a compiled rule library.
func NewAnalyzer(rules *RuleSet, settings Settings) Analyzer {
	return &ruleAnalyzer{rules: rules, settings: settings}
}

var _ Analyzer = (*ruleAnalyzer)(nil)

// Analyze runs every rule over text. Any panic inside a rule surfaces as an
// *AnalysisError rather than crashing the pipeline.
func (a *ruleAnalyzer) Analyze(text string) (result *models.PatternResult, err error) {
	stage := "normalize"
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &AnalysisError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	normalized := Normalize(text)
	result = &models.PatternResult{
		SchemaVersion:      models.PatternResultVersion,
		PatternsMatched:    []models.PatternMatch{},
		ValidationWarnings: []string{},
	}

	stage = "renewal"
	a.scoreRenewal(normalized, result)

	stage = "dates"
	dates := a.findDates(normalized)
	result.ExtractedData.StartDates, result.ExtractedData.EndDates = a.classifyDates(normalized, dates)

	stage = "amounts"
	result.ExtractedData.MonthlyAmounts, result.ExtractedData.AnnualAmounts = a.findAmounts(normalized, dates)

	stage = "notice"
	result.ExtractedData.NoticePeriods = a.findNotice(normalized)

	stage = "selection"
	result.Selected = Select(result.ExtractedData, a.settings)
	result.Currency = a.currencyOf(result)

	stage = "validation"
	result.ValidationWarnings = Validate(result.Selected, a.settings)

	return result, nil
}

func (a *ruleAnalyzer) scoreRenewal(text string, result *models.PatternResult) {
	weighted := 0
	for _, class := range a.rules.Classes {
		for _, rule := range class.Rules {
			for _, m := range rule.Expr.FindAllStringIndex(text, -1) {
				weighted += class.Weight
				result.PatternsMatched = append(result.PatternsMatched, models.PatternMatch{
					Class:  class.Class,
					Rule:   rule.Name,
					Weight: class.Weight,
					Span:   models.SourceSpan{Start: m[0], End: m[1], Text: text[m[0]:m[1]]},
				})
			}
		}
	}

	result.WeightedScore = weighted
	result.ConfidenceScore = clamp01(round2(float64(weighted) / float64(a.rules.Normalizer)))
	result.TacitRenewalDetected = weighted > 0 && weighted >= a.rules.DetectionThreshold
}

func (a *ruleAnalyzer) currencyOf(r *models.PatternResult) string {
	if c := r.Selected.AnnualAmount; c != nil && c.Currency != "" {
		return c.Currency
	}
	if c := r.Selected.MonthlyAmount; c != nil && c.Currency != "" {
		return c.Currency
	}
	for _, c := range r.ExtractedData.AnnualAmounts {
		if c.Currency != "" {
			return c.Currency
		}
	}
	for _, c := range r.ExtractedData.MonthlyAmounts {
		if c.Currency != "" {
			return c.Currency
		}
	}
	return a.settings.DefaultCurrency
}

// Select applies the selection policy to every field kind: the first
// candidate at or above the kind's floor, otherwise the single most
// confident one.
func Select(data models.ExtractedData, s Settings) models.SelectedFields {
	var sel models.SelectedFields
	if i := selectIndex(len(data.StartDates), func(i int) float64 { return data.StartDates[i].Confidence }, s.DateFloor); i >= 0 {
		c := data.StartDates[i]
		sel.StartDate = &c
	}
	if i := selectIndex(len(data.EndDates), func(i int) float64 { return data.EndDates[i].Confidence }, s.DateFloor); i >= 0 {
		c := data.EndDates[i]
		sel.EndDate = &c
	}
	if i := selectIndex(len(data.MonthlyAmounts), func(i int) float64 { return data.MonthlyAmounts[i].Confidence }, s.AmountFloor); i >= 0 {
		c := data.MonthlyAmounts[i]
		sel.MonthlyAmount = &c
	}
	if i := selectIndex(len(data.AnnualAmounts), func(i int) float64 { return data.AnnualAmounts[i].Confidence }, s.AmountFloor); i >= 0 {
		c := data.AnnualAmounts[i]
		sel.AnnualAmount = &c
	}
	if i := selectIndex(len(data.NoticePeriods), func(i int) float64 { return data.NoticePeriods[i].Confidence }, s.NoticeFloor); i >= 0 {
		c := data.NoticePeriods[i]
		sel.NoticePeriod = &c
	}
	return sel
}

func selectIndex(n int, confidence func(int) float64, floor float64) int {
	best := -1
	for i := 0; i < n; i++ {
		if confidence(i) >= floor {
			return i
		}
		if best < 0 || confidence(i) > confidence(best) {
			best = i
		}
	}
	return best
}

// Validate cross-checks the selected fields and returns human readable
// warnings. Warnings never block processing.
func Validate(sel models.SelectedFields, s Settings) []string {
	warnings := []string{}

	if sel.MonthlyAmount != nil && sel.AnnualAmount != nil && sel.AnnualAmount.Value.IsPositive() {
		yearly := sel.MonthlyAmount.Value.Mul(decimal.NewFromInt(12))
		deviation := yearly.Sub(sel.AnnualAmount.Value).Abs().Div(sel.AnnualAmount.Value)
		if deviation.GreaterThan(decimal.NewFromFloat(s.AmountTolerance)) {
			warnings = append(warnings, fmt.Sprintf(
				"monthly amount x12 (%s) differs from annual amount (%s) by more than %.0f%%",
				yearly.StringFixed(2), sel.AnnualAmount.Value.StringFixed(2), s.AmountTolerance*100))
		}
	}

	if sel.NoticePeriod != nil {
		d := sel.NoticePeriod.Days
		if d < s.MinNoticeDays || d > s.MaxNoticeDays {
			warnings = append(warnings, fmt.Sprintf(
				"notice period of %d days is outside the expected range [%d, %d]", d, s.MinNoticeDays, s.MaxNoticeDays))
		}
	}

	// A single unlabeled date may be selected as both start and end.
	if sel.StartDate != nil && sel.EndDate != nil && sel.StartDate.Span != sel.EndDate.Span {
		d := models.DaysBetween(sel.StartDate.Value, sel.EndDate.Value)
		if d < s.MinDurationDays || d > s.MaxDurationDays {
			warnings = append(warnings, fmt.Sprintf(
				"contract duration of %d days is outside the expected range [%d, %d]", d, s.MinDurationDays, s.MaxDurationDays))
		}
	}

	return warnings
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
