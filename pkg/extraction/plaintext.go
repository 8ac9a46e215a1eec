package extraction

import (
	"context"
	"strconv"
	"strings"
	"unicode/utf8"
)

// PlainTextExtractor returns text documents as-is with full confidence.
type PlainTextExtractor struct{}

// NewPlainTextExtractor creates a PlainTextExtractor.
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

var _ Engine = (*PlainTextExtractor)(nil)

func (e *PlainTextExtractor) Name() string {
	return MethodText
}

func (e *PlainTextExtractor) Supports(mimeType string) bool {
	return mimeType == "text/plain"
}

func (e *PlainTextExtractor) Extract(ctx context.Context, doc Document) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := string(doc.Data)
	valid := utf8.ValidString(text)
	if !valid {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	text = strings.TrimPrefix(text, "\ufeff")

	return &Result{
		Text:       text,
		Confidence: 100,
		Method:     MethodText,
		Metadata: map[string]string{
			"bytes":      strconv.Itoa(len(doc.Data)),
			"valid_utf8": strconv.FormatBool(valid),
		},
	}, nil
}
