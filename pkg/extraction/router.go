package extraction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxBytes caps the size of a document loaded for extraction.
const DefaultMaxBytes = 50 << 20

// Router loads a document and hands it to the first engine that supports its
// type, under a deadline.
type Router struct {
	source   FileSource
	engines  []Engine
	timeout  time.Duration
	maxBytes int64
	logger   *zap.Logger
}

// NewRouter creates a Router. Engines are tried in order.
func NewRouter(source FileSource, timeout time.Duration, logger *zap.Logger, engines ...Engine) *Router {
	return &Router{
		source:   source,
		engines:  engines,
		timeout:  timeout,
		maxBytes: DefaultMaxBytes,
		logger:   logger.Named("extraction"),
	}
}

var _ Extractor = (*Router)(nil)

// Engines returns the names of the registered engines.
func (r *Router) Engines() []string {
	names := make([]string, len(r.engines))
	for i, e := range r.engines {
		names[i] = e.Name()
	}
	return names
}

func (r *Router) Extract(ctx context.Context, doc Document) (*Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if len(doc.Data) == 0 {
		data, err := r.load(ctx, doc.Path)
		if err != nil {
			return nil, r.classify(ctx, "", err)
		}
		doc.Data = data
	}
	doc.MimeType = DetectMimeType(doc.Path, doc.MimeType, doc.Data)

	engine := r.engineFor(doc.MimeType)
	if engine == nil {
		return nil, NewError(KindUnsupported, "", fmt.Errorf("no extractor for %q", doc.MimeType))
	}

	start := time.Now()
	result, err := engine.Extract(ctx, doc)
	if err != nil {
		return nil, r.classify(ctx, engine.Name(), err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, NewError(KindUnreadable, engine.Name(), errors.New("no text found in document"))
	}
	if result.Method == "" {
		result.Method = engine.Name()
	}
	result.Confidence = math.Max(0, math.Min(100, result.Confidence))

	r.logger.Info("Document extracted",
		zap.String("method", result.Method),
		zap.String("mime_type", doc.MimeType),
		zap.Int("chars", len(result.Text)),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

func (r *Router) engineFor(mimeType string) Engine {
	for _, e := range r.engines {
		if e.Supports(mimeType) {
			return e
		}
	}
	return nil
}

func (r *Router) load(ctx context.Context, path string) ([]byte, error) {
	rc, err := r.source.Open(ctx, path)
	if err != nil {
		return nil, NewError(KindUnreadable, "", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, r.maxBytes+1))
	if err != nil {
		return nil, NewError(KindUnreadable, "", fmt.Errorf("failed to read %s: %w", path, err))
	}
	if int64(len(data)) > r.maxBytes {
		return nil, NewError(KindUnreadable, "", fmt.Errorf("document exceeds %d bytes", r.maxBytes))
	}
	if len(data) == 0 {
		return nil, NewError(KindUnreadable, "", fmt.Errorf("document %s is empty", path))
	}
	return data, nil
}

// classify turns any failure into an *Error, reporting a passed deadline as
// a timeout whatever the engine returned.
func (r *Router) classify(ctx context.Context, method string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, method, fmt.Errorf("extraction exceeded %s: %w", r.timeout, err))
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Method == "" {
			e.Method = method
		}
		return e
	}
	return NewError(KindEngine, method, err)
}

// DetectMimeType returns the bare media type of a document. A declared type
// wins unless it is empty or generic; then the file extension and finally
// the content are consulted.
func DetectMimeType(path, declared string, data []byte) string {
	if t := mediaType(declared); t != "" && t != "application/octet-stream" {
		return t
	}
	if t := mediaType(mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))); t != "" {
		return t
	}
	if len(data) > 0 {
		return mediaType(http.DetectContentType(data))
	}
	return "application/octet-stream"
}

func mediaType(v string) string {
	if v == "" {
		return ""
	}
	t, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return strings.ToLower(t)
}
