// Package tesseract extracts text from scanned contract images with the
// Tesseract OCR engine.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // register the webp decoder

	"github.com/ekaya-inc/ekaya-renewals/pkg/extraction"
)

// DefaultMinHeight is the height small scans are upscaled to before OCR.
const DefaultMinHeight = 1200

// Config holds the engine settings.
type Config struct {
	// Languages is a "+" separated list of traineddata names, e.g. "eng+fra".
	Languages string
	MinHeight int
}

// Extractor runs Tesseract on image documents.
type Extractor struct {
	languages []string
	minHeight int
	logger    *zap.Logger
}

// New creates a Tesseract extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	langs := strings.FieldsFunc(cfg.Languages, func(r rune) bool { return r == '+' || r == ',' })
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	minHeight := cfg.MinHeight
	if minHeight <= 0 {
		minHeight = DefaultMinHeight
	}
	return &Extractor{
		languages: langs,
		minHeight: minHeight,
		logger:    logger.Named("tesseract"),
	}
}

var _ extraction.Engine = (*Extractor)(nil)

func (e *Extractor) Name() string {
	return extraction.MethodTesseract
}

func (e *Extractor) Supports(mimeType string) bool {
	switch mimeType {
	case "image/png", "image/jpeg", "image/tiff", "image/bmp", "image/gif", "image/webp":
		return true
	}
	return false
}

type ocrOutput struct {
	text       string
	confidence float64
	words      int
	err        error
}

func (e *Extractor) Extract(ctx context.Context, doc extraction.Document) (*extraction.Result, error) {
	img, err := imaging.Decode(bytes.NewReader(doc.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, extraction.NewError(extraction.KindUnreadable, e.Name(), fmt.Errorf("failed to decode image: %w", err))
	}

	prepared := Preprocess(img, e.minHeight)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, prepared, imaging.PNG); err != nil {
		return nil, extraction.NewError(extraction.KindEngine, e.Name(), fmt.Errorf("failed to encode image: %w", err))
	}

	// gosseract is not context aware; the recognition finishes in the
	// background when the deadline passes first.
	done := make(chan ocrOutput, 1)
	go func() {
		done <- e.recognize(buf.Bytes())
	}()

	var out ocrOutput
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out = <-done:
	}
	if out.err != nil {
		return nil, extraction.NewError(extraction.KindEngine, e.Name(), out.err)
	}

	bounds := prepared.Bounds()
	return &extraction.Result{
		Text:       out.text,
		Confidence: out.confidence,
		Method:     extraction.MethodTesseract,
		Metadata: map[string]string{
			"languages": strings.Join(e.languages, "+"),
			"words":     strconv.Itoa(out.words),
			"width":     strconv.Itoa(bounds.Dx()),
			"height":    strconv.Itoa(bounds.Dy()),
		},
	}, nil
}

func (e *Extractor) recognize(png []byte) ocrOutput {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(e.languages...); err != nil {
		return ocrOutput{err: fmt.Errorf("failed to set languages: %w", err)}
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return ocrOutput{err: fmt.Errorf("failed to load image: %w", err)}
	}

	text, err := client.Text()
	if err != nil {
		return ocrOutput{err: fmt.Errorf("ocr failed: %w", err)}
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		e.logger.Warn("Word confidences unavailable", zap.Error(err))
	}

	confidences := make([]float64, 0, len(boxes))
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		confidences = append(confidences, b.Confidence)
	}

	return ocrOutput{
		text:       text,
		confidence: MeanConfidence(confidences),
		words:      len(confidences),
	}
}

// Preprocess converts a scan to grayscale and upscales it when shorter than
// minHeight, which noticeably improves recognition of small print.
func Preprocess(img image.Image, minHeight int) image.Image {
	gray := imaging.Grayscale(img)
	if gray.Bounds().Dy() < minHeight {
		return imaging.Resize(gray, 0, minHeight, imaging.Lanczos)
	}
	return gray
}

// MeanConfidence averages per-word confidences (0-100). Negative values,
// which Tesseract reports for non-text blocks, are skipped.
func MeanConfidence(confidences []float64) float64 {
	var sum float64
	var n int
	for _, c := range confidences {
		if c < 0 {
			continue
		}
		sum += min(c, 100)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
