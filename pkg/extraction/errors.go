package extraction

import (
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures.
type ErrorKind string

const (
	// KindUnsupported means no engine handles the document type.
	KindUnsupported ErrorKind = "unsupported"
	// KindUnreadable covers missing, corrupt, oversized or empty documents.
	KindUnreadable ErrorKind = "unreadable"
	// KindTimeout means the extraction deadline passed.
	KindTimeout ErrorKind = "timeout"
	// KindEngine covers failures inside an OCR engine.
	KindEngine ErrorKind = "engine"
)

// Error is the failure type of every Extractor.
type Error struct {
	Kind   ErrorKind
	Method string
	Err    error
}

// NewError creates an extraction error.
func NewError(kind ErrorKind, method string, err error) *Error {
	return &Error{Kind: kind, Method: method, Err: err}
}

func (e *Error) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("extraction %s (%s): %v", e.Kind, e.Method, e.Err)
	}
	return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an extraction error, or KindEngine for any
// other error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindEngine
}
