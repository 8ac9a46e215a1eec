// Package extraction turns stored contract documents into plain text with a
// confidence score. Engines live in subpackages; Router picks one per
// document type.
package extraction

import (
	"context"
)

// Extraction methods recorded on the contract.
const (
	MethodText       = "text"
	MethodTesseract  = "tesseract"
	MethodDocumentAI = "documentai"
)

// Document is a contract file to extract. Data is loaded from the
// FileSource by the Router when empty.
type Document struct {
	Path     string
	MimeType string
	Data     []byte
}

// Result is the output of a successful extraction.
type Result struct {
	Text string
	// Confidence is on a 0-100 scale.
	Confidence float64
	Method     string
	Metadata   map[string]string
}

// Extractor converts a document to text. Failures are returned as *Error.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (*Result, error)
}

// Engine is an Extractor that declares which document types it handles.
type Engine interface {
	Extractor
	Name() string
	Supports(mimeType string) bool
}
