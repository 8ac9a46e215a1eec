package models

// Recommendation priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Recommendation kinds.
const (
	RecommendationRenewalWarning    = "renewal_warning"
	RecommendationManualCheck       = "manual_check"
	RecommendationVerifyExtraction  = "verify_extraction"
	RecommendationDataInconsistency = "data_inconsistency"
	RecommendationScheduleAlerts    = "schedule_alerts"
	RecommendationPatternFailed     = "pattern_analysis_failed"
)

// Recommendation is an actionable suggestion attached to a contract.
type Recommendation struct {
	Kind     string `json:"kind"`
	Priority string `json:"priority"`
	Message  string `json:"message"`
}
