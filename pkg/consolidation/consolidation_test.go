package consolidation

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

func newContract() *models.Contract {
	return &models.Contract{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		OCRStatus: models.ExtractionCompleted,
		AIStatus:  models.AIPending,
	}
}

func kinds(recs []models.Recommendation) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Kind)
	}
	return out
}

func TestFinalConfidence(t *testing.T) {
	s := DefaultSettings()

	assert.Equal(t, 66.0, FinalConfidence(50, 0.9, s))
	assert.Equal(t, 100.0, FinalConfidence(100, 1, s))
	assert.Equal(t, 0.0, FinalConfidence(0, 0, s))
	assert.Equal(t, 100.0, FinalConfidence(250, 3, s))
	assert.Equal(t, 0.0, FinalConfidence(-10, -1, s))
	assert.Equal(t, 60.0, FinalConfidence(100, 0, s))
}

func TestFinalConfidence_Monotone(t *testing.T) {
	s := DefaultSettings()

	for ocr := 0.0; ocr <= 100; ocr += 5 {
		for p := 0; p <= 20; p++ {
			pattern := float64(p) / 20
			base := FinalConfidence(ocr, pattern, s)
			assert.GreaterOrEqual(t, FinalConfidence(ocr+5, pattern, s), base)
			assert.GreaterOrEqual(t, FinalConfidence(ocr, pattern+0.05, s), base)
			assert.GreaterOrEqual(t, base, 0.0)
			assert.LessOrEqual(t, base, 100.0)
		}
	}
}

func TestApply_FinalConfidenceDoesNotForceCommit(t *testing.T) {
	c := newContract()
	pattern := &models.PatternResult{
		SchemaVersion:   models.PatternResultVersion,
		ConfidenceScore: 0.9,
		Selected: models.SelectedFields{
			EndDate: &models.DateCandidate{Value: models.NewDate(2026, 12, 31), Confidence: 0.6},
		},
	}

	out := Apply(c, Input{OCRConfidence: 50, Pattern: pattern}, DefaultSettings())

	assert.Equal(t, 66.0, out.FinalConfidence)
	assert.Nil(t, out.Contract.EndDate)
	assert.Nil(t, out.Contract.NextRenewalDate)
	assert.Empty(t, out.Committed)
	assert.Nil(t, c.FinalConfidence, "input record must not be mutated")
}

func TestApply_CommitsConfidentFields(t *testing.T) {
	c := newContract()
	pattern := &models.PatternResult{
		SchemaVersion:        models.PatternResultVersion,
		TacitRenewalDetected: true,
		ConfidenceScore:      0.83,
		Currency:             "EUR",
		Selected: models.SelectedFields{
			StartDate:    &models.DateCandidate{Value: models.NewDate(2026, 1, 1), Confidence: 0.8},
			EndDate:      &models.DateCandidate{Value: models.NewDate(2026, 12, 31), Confidence: 0.8},
			NoticePeriod: &models.NoticeCandidate{Days: 90, Confidence: 0.85},
		},
	}

	out := Apply(c, Input{OCRConfidence: 92, Pattern: pattern}, DefaultSettings())
	got := out.Contract

	assert.True(t, got.IsTacitRenewal)
	require.NotNil(t, got.StartDate)
	require.NotNil(t, got.EndDate)
	require.NotNil(t, got.NextRenewalDate)
	assert.Equal(t, models.NewDate(2026, 12, 31), *got.EndDate)
	assert.Equal(t, *got.EndDate, *got.NextRenewalDate)
	require.NotNil(t, got.NoticePeriodDays)
	assert.Equal(t, 90, *got.NoticePeriodDays)
	assert.Equal(t, 0.83, *got.PatternConfidence)

	require.NotEmpty(t, got.Recommendations)
	assert.Equal(t, models.RecommendationRenewalWarning, got.Recommendations[0].Kind)
	assert.Equal(t, models.PriorityHigh, got.Recommendations[0].Priority)
	assert.Contains(t, got.Recommendations[0].Message, "90 days")
	assert.Contains(t, got.Recommendations[0].Message, "2026-10-02")
	assert.Contains(t, kinds(got.Recommendations), models.RecommendationScheduleAlerts)
	assert.NotContains(t, kinds(got.Recommendations), models.RecommendationVerifyExtraction)
}

func TestApply_AnnualAmountWinsOverMonthly(t *testing.T) {
	pattern := &models.PatternResult{
		SchemaVersion: models.PatternResultVersion,
		Currency:      "EUR",
		Selected: models.SelectedFields{
			MonthlyAmount: &models.AmountCandidate{Value: decimal.NewFromInt(100), Confidence: 0.9},
			AnnualAmount:  &models.AmountCandidate{Value: decimal.NewFromInt(1150), Currency: "USD", Confidence: 0.9},
		},
	}

	out := Apply(newContract(), Input{OCRConfidence: 90, Pattern: pattern}, DefaultSettings())

	require.NotNil(t, out.Contract.Amount)
	assert.True(t, out.Contract.Amount.Equal(decimal.NewFromInt(1150)))
	assert.Equal(t, "USD", out.Contract.Currency)
}

func TestApply_MonthlyAmountIsAnnualized(t *testing.T) {
	pattern := &models.PatternResult{
		SchemaVersion: models.PatternResultVersion,
		Currency:      "EUR",
		Selected: models.SelectedFields{
			MonthlyAmount: &models.AmountCandidate{Value: decimal.RequireFromString("49.90"), Confidence: 0.9},
			AnnualAmount:  &models.AmountCandidate{Value: decimal.NewFromInt(600), Confidence: 0.5},
		},
	}

	out := Apply(newContract(), Input{OCRConfidence: 90, Pattern: pattern}, DefaultSettings())

	require.NotNil(t, out.Contract.Amount)
	assert.True(t, out.Contract.Amount.Equal(decimal.RequireFromString("598.8")))
	assert.Equal(t, "EUR", out.Contract.Currency)
}

func TestApply_Idempotent(t *testing.T) {
	pattern := &models.PatternResult{
		SchemaVersion:        models.PatternResultVersion,
		TacitRenewalDetected: true,
		ConfidenceScore:      0.5,
		ValidationWarnings:   []string{"notice period of 400 days is outside the expected range [1, 365]"},
		Selected: models.SelectedFields{
			EndDate:      &models.DateCandidate{Value: models.NewDate(2027, 3, 31), Confidence: 0.95},
			NoticePeriod: &models.NoticeCandidate{Days: 400, Confidence: 0.85},
		},
	}
	in := Input{OCRConfidence: 61, Pattern: pattern}

	first := Apply(newContract(), in, DefaultSettings())
	second := Apply(first.Contract, in, DefaultSettings())

	assert.Equal(t, first.Contract, second.Contract)
	assert.Equal(t, first.FinalConfidence, second.FinalConfidence)
}

func TestApply_PatternFailureDegradesToExtractionOnly(t *testing.T) {
	out := Apply(newContract(), Input{OCRConfidence: 40, PatternErr: errors.New("boom")}, DefaultSettings())

	assert.Equal(t, 24.0, out.FinalConfidence)
	assert.Equal(t, 0.0, out.PatternConfidence)
	assert.Nil(t, out.Contract.PatternResult)
	assert.ElementsMatch(t,
		[]string{models.RecommendationVerifyExtraction, models.RecommendationPatternFailed},
		kinds(out.Contract.Recommendations))
}

func TestRecommend_TacitWithoutNotice(t *testing.T) {
	pattern := &models.PatternResult{
		SchemaVersion:        models.PatternResultVersion,
		TacitRenewalDetected: true,
		ConfidenceScore:      0.5,
		ValidationWarnings:   []string{"contract duration of 0 days is outside the expected range [1, 3650]"},
	}

	out := Apply(newContract(), Input{OCRConfidence: 95, Pattern: pattern}, DefaultSettings())
	recs := out.Contract.Recommendations

	require.Len(t, recs, 2)
	assert.Equal(t, models.RecommendationManualCheck, recs[0].Kind)
	assert.Equal(t, models.PriorityMedium, recs[0].Priority)
	assert.Equal(t, models.RecommendationDataInconsistency, recs[1].Kind)
	assert.Contains(t, recs[1].Message, "contract duration")
	assert.False(t, out.Contract.IsTacitRenewal, "confidence below threshold must not commit")
}

func TestApplySemantic(t *testing.T) {
	notice := 30
	renewal := models.NewDate(2026, 6, 30)
	c := newContract()
	c.NoticePeriodDays = &notice
	c.NextRenewalDate = &renewal
	c.EndDate = &renewal

	analysis := &models.AIAnalysis{
		SchemaVersion:    models.AIAnalysisVersion,
		ConfidenceScore:  0.75,
		IsTacitRenewal:   &models.AIBoolField{Value: true},
		EndDate:          &models.AIDateField{Value: models.NewDate(2026, 9, 30), Confidence: 0.9},
		NoticePeriodDays: &models.AIIntField{Value: 60, Confidence: 0.4},
		Amount:           &models.AIAmountField{Value: decimal.NewFromInt(2400), Currency: "EUR", Confidence: 0.8},
	}

	out := ApplySemantic(c, analysis, 0.7)

	assert.True(t, out.Contract.IsTacitRenewal, "falls back to the overall confidence")
	assert.Equal(t, models.NewDate(2026, 9, 30), *out.Contract.NextRenewalDate)
	assert.Equal(t, 30, *out.Contract.NoticePeriodDays, "low-confidence notice is not committed")
	assert.True(t, out.Contract.Amount.Equal(decimal.NewFromInt(2400)))
	assert.True(t, out.ScheduleChanged)
	assert.Equal(t, renewal, *c.NextRenewalDate, "input record must not be mutated")
}

func TestApplySemantic_NoScheduleChange(t *testing.T) {
	renewal := models.NewDate(2026, 6, 30)
	c := newContract()
	c.NextRenewalDate = &renewal
	c.EndDate = &renewal

	analysis := &models.AIAnalysis{
		SchemaVersion:   models.AIAnalysisVersion,
		ConfidenceScore: 0.9,
		EndDate:         &models.AIDateField{Value: renewal, Confidence: 0.9},
	}

	out := ApplySemantic(c, analysis, 0.7)
	assert.False(t, out.ScheduleChanged)
}
