package patterns

import "fmt"

// AnalysisError reports an internal fault in the rule engine. Callers treat
// it as a soft failure and continue without pattern data.
type AnalysisError struct {
	Stage string
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("pattern analysis failed at %s: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
