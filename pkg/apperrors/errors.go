package apperrors

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrAlreadyProcessing    = errors.New("contract is already being processed")
	ErrAIPreconditionFailed = errors.New("contract is not ready for semantic analysis")
	ErrAINotConfigured      = errors.New("semantic analysis engine is not configured")
	ErrInvalidAmount        = errors.New("invalid credit amount")
)
