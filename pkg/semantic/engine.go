// Package semantic runs the AI reading of contract text.
package semantic

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ekaya-inc/ekaya-renewals/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-renewals/pkg/llm"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
	"github.com/ekaya-inc/ekaya-renewals/pkg/prompts"
	"github.com/ekaya-inc/ekaya-renewals/pkg/retry"
)

// Request is one document to analyze.
type Request struct {
	Title string
	Text  string
	// Hints are short findings of the rule-based analyzer.
	Hints []string
}

// Engine analyzes contract text. Every failure is returned as *llm.Error.
type Engine interface {
	Analyze(ctx context.Context, req Request) (*models.AIAnalysis, error)
	Model() string
}

// Config tunes the LLM-backed engine.
type Config struct {
	Temperature   float64
	MaxInputChars int
	// RequestsPerMinute caps provider calls made by this process. Zero disables the cap.
	RequestsPerMinute float64
	Burst             int
	Retry             *retry.Config
	CircuitBreaker    llm.CircuitBreakerConfig
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Temperature:       0,
		MaxInputChars:     60000,
		RequestsPerMinute: 60,
		Burst:             5,
		Retry:             retry.DefaultConfig(),
		CircuitBreaker:    llm.DefaultCircuitBreakerConfig(),
	}
}

type llmEngine struct {
	client  llm.LLMClient
	cfg     Config
	limiter *rate.Limiter
	breaker *llm.CircuitBreaker
	logger  *zap.Logger
	now     func() time.Time
}

// NewLLMEngine creates an Engine on top of an LLM client.
func NewLLMEngine(client llm.LLMClient, cfg Config, logger *zap.Logger) Engine {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &llmEngine{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		breaker: llm.NewCircuitBreaker(cfg.CircuitBreaker),
		logger:  logger.Named("semantic"),
		now:     time.Now,
	}
}

var _ Engine = (*llmEngine)(nil)

func (e *llmEngine) Model() string {
	return e.client.GetModel()
}

// Analyze sends the document to the model. Transient failures are retried
// within cfg.Retry; config and quota failures return at once.
func (e *llmEngine) Analyze(ctx context.Context, req Request) (*models.AIAnalysis, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, llm.NewError(llm.KindInvalidResponse, "no text to analyze", nil)
	}

	prompt := prompts.BuildContractAnalysisPrompt(prompts.ContractContext{
		Title:        req.Title,
		Text:         req.Text,
		MaxChars:     e.cfg.MaxInputChars,
		PatternHints: req.Hints,
	})

	retryCfg := *e.retryConfig()
	retryCfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		e.logger.Warn("Semantic analysis attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	analysis, err := retry.DoIfRetryableWithResult(ctx, &retryCfg, func() (*models.AIAnalysis, error) {
		return e.attempt(ctx, prompt)
	})
	if err != nil {
		return nil, llm.ClassifyError(err)
	}
	return analysis, nil
}

func (e *llmEngine) retryConfig() *retry.Config {
	if e.cfg.Retry != nil {
		return e.cfg.Retry
	}
	return retry.DefaultConfig()
}

func (e *llmEngine) attempt(ctx context.Context, prompt string) (*models.AIAnalysis, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, llm.NewError(llm.KindTransient, "rate limiter wait", err)
	}
	if err := e.breaker.Allow(); err != nil {
		return nil, err
	}

	resp, err := e.client.GenerateResponse(ctx, prompt, prompts.ContractAnalysisSystemMessage, e.cfg.Temperature)
	if err != nil {
		classified := llm.ClassifyError(err)
		e.breaker.Record(classified)
		return nil, classified
	}
	e.breaker.RecordSuccess()

	r, err := llm.ParseJSONResponse[reply](resp.Content)
	if err != nil {
		return nil, err
	}

	analysis := r.toAnalysis(e.logger)
	analysis.Model = e.client.GetModel()
	analysis.AnalyzedAt = e.now().UTC()
	return analysis, nil
}

type replyField struct {
	Value      json.RawMessage `json:"value"`
	Confidence *float64        `json:"confidence"`
}

type replyAmount struct {
	Value      json.RawMessage `json:"value"`
	Currency   string          `json:"currency"`
	Confidence *float64        `json:"confidence"`
}

// reply is the JSON object the model is asked to return. Field values are
// read loosely since models quote numbers and spell out booleans.
type reply struct {
	IsTacitRenewal   *replyField  `json:"is_tacit_renewal"`
	StartDate        *replyField  `json:"start_date"`
	EndDate          *replyField  `json:"end_date"`
	NoticePeriodDays *replyField  `json:"notice_period_days"`
	Amount           *replyAmount `json:"amount"`
	ConfidenceScore  *float64     `json:"confidence_score"`
	Summary          string       `json:"summary"`
	KeyClauses       []string     `json:"key_clauses"`
}

// toAnalysis keeps only well-formed fields. Missing confidences stay zero so
// that commit falls back to the overall score.
func (r *reply) toAnalysis(logger *zap.Logger) *models.AIAnalysis {
	a := &models.AIAnalysis{
		SchemaVersion: models.AIAnalysisVersion,
		Summary:       strings.TrimSpace(r.Summary),
		KeyClauses:    r.KeyClauses,
	}
	if r.ConfidenceScore != nil {
		a.ConfidenceScore = unit(*r.ConfidenceScore)
	}

	if f := r.IsTacitRenewal; f != nil {
		if v, ok := jsonutil.FlexibleBool(f.Value); ok {
			a.IsTacitRenewal = &models.AIBoolField{Value: v, Confidence: conf(f.Confidence)}
		}
	}
	if d, ok := parseDate(r.StartDate, logger, "start_date"); ok {
		a.StartDate = d
	}
	if d, ok := parseDate(r.EndDate, logger, "end_date"); ok {
		a.EndDate = d
	}
	if f := r.NoticePeriodDays; f != nil {
		if v, ok := jsonutil.FlexibleInt(f.Value); ok && v > 0 {
			a.NoticePeriodDays = &models.AIIntField{Value: v, Confidence: conf(f.Confidence)}
		} else if ok {
			logger.Debug("Dropping non-positive notice period", zap.Int("value", v))
		}
	}
	if f := r.Amount; f != nil {
		if v, ok := parseAmount(f.Value, logger); ok {
			a.Amount = &models.AIAmountField{
				Value:      v,
				Currency:   strings.ToUpper(strings.TrimSpace(f.Currency)),
				Confidence: conf(f.Confidence),
			}
		}
	}
	return a
}

func parseDate(f *replyField, logger *zap.Logger, name string) (*models.AIDateField, bool) {
	if f == nil {
		return nil, false
	}
	value := jsonutil.FlexibleStringValue(f.Value)
	if value == "" {
		return nil, false
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		logger.Debug("Dropping unparseable date",
			zap.String("field", name),
			zap.String("value", value))
		return nil, false
	}
	return &models.AIDateField{Value: models.DateOf(t), Confidence: conf(f.Confidence)}, true
}

func parseAmount(raw json.RawMessage, logger *zap.Logger) (decimal.Decimal, bool) {
	text, err := jsonutil.FlexibleDecimalString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		logger.Debug("Dropping unparseable amount", zap.String("value", text))
		return decimal.Decimal{}, false
	}
	if !d.IsPositive() {
		logger.Debug("Dropping non-positive amount", zap.String("value", d.String()))
		return decimal.Decimal{}, false
	}
	return d.Round(2), true
}

func conf(c *float64) float64 {
	if c == nil {
		return 0
	}
	return unit(*c)
}

// unit clamps to [0,1]. Models sometimes answer in percent.
func unit(v float64) float64 {
	if v > 1 && v <= 100 {
		v /= 100
	}
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
