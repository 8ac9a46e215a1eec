// Package models contains domain types for ekaya-renewals.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExtractionStatus tracks the document text extraction stage of a contract.
type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionProcessing ExtractionStatus = "processing"
	ExtractionCompleted  ExtractionStatus = "completed"
	ExtractionFailed     ExtractionStatus = "failed"
)

// AIStatus tracks the semantic analysis stage of a contract.
type AIStatus string

const (
	AIPending    AIStatus = "pending"
	AIProcessing AIStatus = "processing"
	AICompleted  AIStatus = "completed"
	AIFailed     AIStatus = "failed"
)

// ProcessingMode records which stages contributed to the canonical fields.
type ProcessingMode string

const (
	ProcessingPatternOnly ProcessingMode = "pattern_only"
	ProcessingAIEnhanced  ProcessingMode = "ai_enhanced"
)

// Contract lifecycle values exposed to users.
const (
	ContractStatusActive   = "active"
	ContractStatusExpired  = "expired"
	ContractStatusArchived = "archived"
)

// Contract is the canonical record for an uploaded contract document.
// Every pipeline stage reads and writes this record.
type Contract struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	Title    string    `json:"title"`
	FilePath string    `json:"file_path"`
	MimeType string    `json:"mime_type"`
	Status   string    `json:"status"`

	// Canonical fields. Only written when a source is confident enough.
	Amount           *decimal.Decimal `json:"amount,omitempty"`
	Currency         string           `json:"currency,omitempty"`
	StartDate        *time.Time       `json:"start_date,omitempty"`
	EndDate          *time.Time       `json:"end_date,omitempty"`
	NextRenewalDate  *time.Time       `json:"next_renewal_date,omitempty"`
	NoticePeriodDays *int             `json:"notice_period_days,omitempty"`
	IsTacitRenewal   bool             `json:"is_tacit_renewal"`

	// Extraction
	OCRStatus     ExtractionStatus `json:"ocr_status"`
	OCRText       string           `json:"-"`
	OCRConfidence *float64         `json:"ocr_confidence,omitempty"`
	OCRMethod     string           `json:"ocr_method,omitempty"`
	OCRError      string           `json:"ocr_error,omitempty"`

	// Pattern analysis and consolidation
	PatternResult     *PatternResult   `json:"pattern_result,omitempty"`
	PatternConfidence *float64         `json:"pattern_confidence,omitempty"`
	FinalConfidence   *float64         `json:"final_confidence,omitempty"`
	Recommendations   []Recommendation `json:"recommendations,omitempty"`

	// Semantic analysis
	AIStatus           AIStatus    `json:"ai_status"`
	AIAnalysis         *AIAnalysis `json:"ai_analysis,omitempty"`
	AIAnalysisCached   bool        `json:"ai_analysis_cached"`
	AIAnalysisCachedAt *time.Time  `json:"ai_analysis_cached_at,omitempty"`
	AIError            string      `json:"ai_error,omitempty"`

	ProcessingMode      ProcessingMode `json:"processing_mode"`
	ProcessingStartedAt *time.Time     `json:"processing_started_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// HasOCRText reports whether extraction produced usable text.
func (c *Contract) HasOCRText() bool {
	return c.OCRStatus == ExtractionCompleted && c.OCRText != ""
}

// HasAIAnalysis reports whether a semantic analysis result is stored.
func (c *Contract) HasAIAnalysis() bool {
	return c.AIAnalysis != nil
}

// Clone returns a copy that shares no mutable state with c.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	out := *c
	if c.Amount != nil {
		a := *c.Amount
		out.Amount = &a
	}
	out.StartDate = cloneTime(c.StartDate)
	out.EndDate = cloneTime(c.EndDate)
	out.NextRenewalDate = cloneTime(c.NextRenewalDate)
	out.AIAnalysisCachedAt = cloneTime(c.AIAnalysisCachedAt)
	out.ProcessingStartedAt = cloneTime(c.ProcessingStartedAt)
	if c.NoticePeriodDays != nil {
		n := *c.NoticePeriodDays
		out.NoticePeriodDays = &n
	}
	out.OCRConfidence = cloneFloat(c.OCRConfidence)
	out.PatternConfidence = cloneFloat(c.PatternConfidence)
	out.FinalConfidence = cloneFloat(c.FinalConfidence)
	if c.Recommendations != nil {
		out.Recommendations = append([]Recommendation(nil), c.Recommendations...)
	}
	return &out
}

// ContractStatus is the lightweight progress view returned to callers.
type ContractStatus struct {
	ContractID     uuid.UUID        `json:"contract_id"`
	OCRStatus      ExtractionStatus `json:"ocr_status"`
	AIStatus       AIStatus         `json:"ai_status"`
	HasOCRText     bool             `json:"has_ocr_text"`
	HasAIAnalysis  bool             `json:"has_ai_analysis"`
	ProcessingMode ProcessingMode   `json:"processing_mode"`
	OCRError       string           `json:"ocr_error,omitempty"`
	AIError        string           `json:"ai_error,omitempty"`
}

// StatusOf builds the progress view for a contract.
func StatusOf(c *Contract) *ContractStatus {
	return &ContractStatus{
		ContractID:     c.ID,
		OCRStatus:      c.OCRStatus,
		AIStatus:       c.AIStatus,
		HasOCRText:     c.HasOCRText(),
		HasAIAnalysis:  c.HasAIAnalysis(),
		ProcessingMode: c.ProcessingMode,
		OCRError:       c.OCRError,
		AIError:        c.AIError,
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
