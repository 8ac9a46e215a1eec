// Package documentai extracts text from PDFs and scans with Google Document AI.
package documentai

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	gax "github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/ekaya-inc/ekaya-renewals/pkg/extraction"
)

// Config identifies the Document AI processor.
type Config struct {
	ProjectID       string
	Location        string
	ProcessorID     string
	CredentialsFile string
	// HandleImages routes images here instead of to Tesseract.
	HandleImages bool
}

// ProcessorName returns the fully qualified processor resource name.
func (c Config) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		strings.TrimSpace(c.ProjectID), strings.TrimSpace(c.Location), strings.TrimSpace(c.ProcessorID))
}

// processor is the subset of the Document AI client used here.
type processor interface {
	ProcessDocument(ctx context.Context, req *documentaipb.ProcessRequest, opts ...gax.CallOption) (*documentaipb.ProcessResponse, error)
}

// Extractor sends documents to a Document AI processor.
type Extractor struct {
	cfg    Config
	client processor
	closer func() error
	logger *zap.Logger
}

// New dials Document AI for the configured location.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Extractor, error) {
	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create documentai client: %w", err)
	}

	e := newExtractor(cfg, client, logger)
	e.closer = client.Close
	e.logger.Info("Document AI initialized",
		zap.String("processor", cfg.ProcessorName()),
		zap.Bool("handle_images", cfg.HandleImages))
	return e, nil
}

func newExtractor(cfg Config, client processor, logger *zap.Logger) *Extractor {
	return &Extractor{
		cfg:    cfg,
		client: client,
		closer: func() error { return nil },
		logger: logger.Named("documentai"),
	}
}

var _ extraction.Engine = (*Extractor)(nil)

// Close releases the underlying client.
func (e *Extractor) Close() error {
	return e.closer()
}

func (e *Extractor) Name() string {
	return extraction.MethodDocumentAI
}

func (e *Extractor) Supports(mimeType string) bool {
	if mimeType == "application/pdf" {
		return true
	}
	if !e.cfg.HandleImages {
		return false
	}
	switch mimeType {
	case "image/png", "image/jpeg", "image/tiff", "image/gif", "image/bmp", "image/webp":
		return true
	}
	return false
}

func (e *Extractor) Extract(ctx context.Context, doc extraction.Document) (*extraction.Result, error) {
	resp, err := e.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: e.cfg.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  doc.Data,
				MimeType: doc.MimeType,
			},
		},
	})
	if err != nil {
		return nil, extraction.NewError(extraction.KindEngine, e.Name(), fmt.Errorf("documentai ProcessDocument: %w", err))
	}
	if resp == nil || resp.GetDocument() == nil {
		return nil, extraction.NewError(extraction.KindUnreadable, e.Name(), fmt.Errorf("documentai returned no document"))
	}

	d := resp.GetDocument()
	return &extraction.Result{
		Text:       d.GetText(),
		Confidence: PageConfidence(d.GetPages()) * 100,
		Method:     extraction.MethodDocumentAI,
		Metadata: map[string]string{
			"pages":     strconv.Itoa(len(d.GetPages())),
			"processor": e.cfg.ProcessorID,
		},
	}, nil
}

// PageConfidence is the mean layout confidence (0-1) of the pages that
// report one.
func PageConfidence(pages []*documentaipb.Document_Page) float64 {
	var sum float64
	var n int
	for _, p := range pages {
		layout := p.GetLayout()
		if layout == nil {
			continue
		}
		sum += float64(layout.GetConfidence())
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
