package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PatternResultVersion is the current schema version of PatternResult payloads.
const PatternResultVersion = 1

// Pattern classes in decreasing order of weight.
const (
	PatternClassExplicit    = "explicit"
	PatternClassImplicit    = "implicit"
	PatternClassTermination = "termination"
)

// Candidate field kinds.
const (
	FieldStartDate     = "start_date"
	FieldEndDate       = "end_date"
	FieldMonthlyAmount = "monthly_amount"
	FieldAnnualAmount  = "annual_amount"
	FieldNoticePeriod  = "notice_period"
)

// SourceSpan locates a match in the normalized document text.
type SourceSpan struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// PatternMatch is one hit of a rule against the document text.
type PatternMatch struct {
	Class  string     `json:"class"`
	Rule   string     `json:"rule"`
	Weight int        `json:"weight"`
	Span   SourceSpan `json:"span"`
}

// DateCandidate is a date found in the text with its confidence.
type DateCandidate struct {
	Kind       string     `json:"kind"`
	Value      time.Time  `json:"value"`
	Confidence float64    `json:"confidence"`
	Span       SourceSpan `json:"span"`
}

// AmountCandidate is a monetary amount found in the text.
type AmountCandidate struct {
	Kind       string          `json:"kind"`
	Value      decimal.Decimal `json:"value"`
	Currency   string          `json:"currency,omitempty"`
	Confidence float64         `json:"confidence"`
	Span       SourceSpan      `json:"span"`
}

// NoticeCandidate is a notice period expressed in days.
type NoticeCandidate struct {
	Days       int        `json:"days"`
	Confidence float64    `json:"confidence"`
	Span       SourceSpan `json:"span"`
}

// ExtractedData holds every candidate per field kind, in document order.
type ExtractedData struct {
	StartDates     []DateCandidate   `json:"start_dates"`
	EndDates       []DateCandidate   `json:"end_dates"`
	MonthlyAmounts []AmountCandidate `json:"monthly_amount"`
	AnnualAmounts  []AmountCandidate `json:"annual_amount"`
	NoticePeriods  []NoticeCandidate `json:"notice_periods"`
}

// SelectedFields holds the candidate chosen per field kind.
type SelectedFields struct {
	StartDate     *DateCandidate   `json:"start_date,omitempty"`
	EndDate       *DateCandidate   `json:"end_date,omitempty"`
	MonthlyAmount *AmountCandidate `json:"monthly_amount,omitempty"`
	AnnualAmount  *AmountCandidate `json:"annual_amount,omitempty"`
	NoticePeriod  *NoticeCandidate `json:"notice_period,omitempty"`
}

// PatternResult is the output of the rule-based analyzer.
type PatternResult struct {
	SchemaVersion        int            `json:"schema_version"`
	TacitRenewalDetected bool           `json:"tacit_renewal_detected"`
	ConfidenceScore      float64        `json:"confidence_score"`
	WeightedScore        int            `json:"weighted_score"`
	PatternsMatched      []PatternMatch `json:"patterns_matched"`
	ExtractedData        ExtractedData  `json:"extracted_data"`
	Selected             SelectedFields `json:"selected"`
	Currency             string         `json:"currency,omitempty"`
	ValidationWarnings   []string       `json:"validation_warnings"`
}

// NoticePeriodDays returns the selected notice period, if any.
func (r *PatternResult) NoticePeriodDays() *int {
	if r == nil || r.Selected.NoticePeriod == nil {
		return nil
	}
	d := r.Selected.NoticePeriod.Days
	return &d
}

// legacyPatternResult is the untyped shape stored before schema versioning.
type legacyPatternResult struct {
	TacitRenewalDetected bool     `json:"tacit_renewal_detected"`
	ConfidenceScore      float64  `json:"confidence_score"`
	PatternsMatched      []string `json:"patterns_matched"`
	ExtractedData        struct {
		StartDates       []string  `json:"start_dates"`
		EndDates         []string  `json:"end_dates"`
		MonthlyAmount    []float64 `json:"monthly_amount"`
		AnnualAmount     []float64 `json:"annual_amount"`
		NoticePeriodDays *int      `json:"notice_period_days"`
	} `json:"extracted_data"`
	ValidationWarnings []string `json:"validation_warnings"`
}

// DecodePatternResult parses a stored payload, upgrading older versions.
// Candidates recovered from legacy payloads carry zero confidence, so they
// are never committed to canonical fields.
func DecodePatternResult(raw []byte) (*PatternResult, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var header struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("failed to read pattern result version: %w", err)
	}

	switch header.SchemaVersion {
	case PatternResultVersion:
		var r PatternResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to decode pattern result: %w", err)
		}
		return &r, nil
	case 0:
		return upgradeLegacyPatternResult(raw)
	default:
		return nil, fmt.Errorf("unsupported pattern result schema version %d", header.SchemaVersion)
	}
}

func upgradeLegacyPatternResult(raw []byte) (*PatternResult, error) {
	var legacy legacyPatternResult
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return nil, fmt.Errorf("failed to decode legacy pattern result: %w", err)
	}

	r := &PatternResult{
		SchemaVersion:        PatternResultVersion,
		TacitRenewalDetected: legacy.TacitRenewalDetected,
		ConfidenceScore:      legacy.ConfidenceScore,
		ValidationWarnings:   legacy.ValidationWarnings,
	}
	for _, p := range legacy.PatternsMatched {
		r.PatternsMatched = append(r.PatternsMatched, PatternMatch{Rule: p, Span: SourceSpan{Text: p}})
	}
	r.ExtractedData.StartDates = legacyDates(FieldStartDate, legacy.ExtractedData.StartDates)
	r.ExtractedData.EndDates = legacyDates(FieldEndDate, legacy.ExtractedData.EndDates)
	r.ExtractedData.MonthlyAmounts = legacyAmounts(FieldMonthlyAmount, legacy.ExtractedData.MonthlyAmount)
	r.ExtractedData.AnnualAmounts = legacyAmounts(FieldAnnualAmount, legacy.ExtractedData.AnnualAmount)
	if legacy.ExtractedData.NoticePeriodDays != nil {
		r.ExtractedData.NoticePeriods = []NoticeCandidate{{Days: *legacy.ExtractedData.NoticePeriodDays}}
	}
	return r, nil
}

func legacyDates(kind string, values []string) []DateCandidate {
	var out []DateCandidate
	for _, v := range values {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			continue
		}
		out = append(out, DateCandidate{Kind: kind, Value: t, Span: SourceSpan{Text: v}})
	}
	return out
}

func legacyAmounts(kind string, values []float64) []AmountCandidate {
	var out []AmountCandidate
	for _, v := range values {
		out = append(out, AmountCandidate{Kind: kind, Value: decimal.NewFromFloat(v)})
	}
	return out
}
