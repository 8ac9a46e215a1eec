package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AIAnalysisVersion is the current schema version of AIAnalysis payloads.
const AIAnalysisVersion = 1

// AIBoolField is a boolean finding with its own confidence.
type AIBoolField struct {
	Value      bool    `json:"value"`
	Confidence float64 `json:"confidence"`
}

// AIDateField is a date finding with its own confidence.
type AIDateField struct {
	Value      time.Time `json:"value"`
	Confidence float64   `json:"confidence"`
}

// AIIntField is an integer finding with its own confidence.
type AIIntField struct {
	Value      int     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// AIAmountField is an annualized amount finding with its own confidence.
type AIAmountField struct {
	Value      decimal.Decimal `json:"value"`
	Currency   string          `json:"currency,omitempty"`
	Confidence float64         `json:"confidence"`
}

// AIAnalysis is the semantic engine's reading of a contract.
type AIAnalysis struct {
	SchemaVersion    int            `json:"schema_version"`
	IsTacitRenewal   *AIBoolField   `json:"is_tacit_renewal,omitempty"`
	StartDate        *AIDateField   `json:"start_date,omitempty"`
	EndDate          *AIDateField   `json:"end_date,omitempty"`
	NoticePeriodDays *AIIntField    `json:"notice_period_days,omitempty"`
	Amount           *AIAmountField `json:"amount,omitempty"`
	ConfidenceScore  float64        `json:"confidence_score"`
	Summary          string         `json:"summary,omitempty"`
	KeyClauses       []string       `json:"key_clauses,omitempty"`
	Model            string         `json:"model,omitempty"`
	AnalyzedAt       time.Time      `json:"analyzed_at"`
}

type legacyAIAnalysis struct {
	IsTacitRenewal   *bool    `json:"is_tacit_renewal"`
	EndDate          *string  `json:"end_date"`
	NoticePeriodDays *int     `json:"notice_period_days"`
	Amount           *float64 `json:"amount"`
	ConfidenceScore  float64  `json:"confidence_score"`
	Summary          string   `json:"summary"`
}

// DecodeAIAnalysis parses a stored payload, upgrading older versions.
// Legacy payloads carried one overall confidence, which becomes the
// confidence of every field.
func DecodeAIAnalysis(raw []byte) (*AIAnalysis, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var header struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("failed to read ai analysis version: %w", err)
	}

	switch header.SchemaVersion {
	case AIAnalysisVersion:
		var a AIAnalysis
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("failed to decode ai analysis: %w", err)
		}
		return &a, nil
	case 0:
		var legacy legacyAIAnalysis
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, fmt.Errorf("failed to decode legacy ai analysis: %w", err)
		}
		return upgradeLegacyAIAnalysis(&legacy), nil
	default:
		return nil, fmt.Errorf("unsupported ai analysis schema version %d", header.SchemaVersion)
	}
}

func upgradeLegacyAIAnalysis(legacy *legacyAIAnalysis) *AIAnalysis {
	conf := legacy.ConfidenceScore
	a := &AIAnalysis{
		SchemaVersion:   AIAnalysisVersion,
		ConfidenceScore: conf,
		Summary:         legacy.Summary,
	}
	if legacy.IsTacitRenewal != nil {
		a.IsTacitRenewal = &AIBoolField{Value: *legacy.IsTacitRenewal, Confidence: conf}
	}
	if legacy.EndDate != nil {
		if t, err := time.Parse("2006-01-02", *legacy.EndDate); err == nil {
			a.EndDate = &AIDateField{Value: t, Confidence: conf}
		}
	}
	if legacy.NoticePeriodDays != nil {
		a.NoticePeriodDays = &AIIntField{Value: *legacy.NoticePeriodDays, Confidence: conf}
	}
	if legacy.Amount != nil {
		a.Amount = &AIAmountField{Value: decimal.NewFromFloat(*legacy.Amount), Confidence: conf}
	}
	return a
}
