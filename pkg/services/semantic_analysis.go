package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-renewals/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-renewals/pkg/consolidation"
	"github.com/ekaya-inc/ekaya-renewals/pkg/metrics"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
	"github.com/ekaya-inc/ekaya-renewals/pkg/repositories"
	"github.com/ekaya-inc/ekaya-renewals/pkg/semantic"
	"github.com/ekaya-inc/ekaya-renewals/pkg/services/workqueue"
)

// ReanalyzeResult is returned by SemanticAnalysisService.Reanalyze.
type ReanalyzeResult struct {
	ContractID        uuid.UUID          `json:"contract_id"`
	AIStatus          models.AIStatus    `json:"ai_status"`
	Analysis          *models.AIAnalysis `json:"analysis,omitempty"`
	HasCachedAnalysis bool               `json:"has_cached_analysis"`
	CreditsRemaining  *int               `json:"credits_remaining,omitempty"`
	Committed         []string           `json:"committed,omitempty"`
}

// SemanticConfig holds the tunables of semantic analysis.
type SemanticConfig struct {
	CommitThreshold float64
	CacheTTL        time.Duration
	// Timeout bounds one analysis run including engine retries.
	Timeout time.Duration
}

// SemanticAnalysisService runs credit-metered semantic analysis of
// extracted contract text. Methods expect a database scope in ctx.
type SemanticAnalysisService interface {
	// Reanalyze returns a fresh cached analysis unless force is set;
	// otherwise it spends one credit and invokes the engine.
	Reanalyze(ctx context.Context, contractID uuid.UUID, force bool) (*ReanalyzeResult, error)
	// Available reports whether an engine is configured.
	Available() bool
}

type semanticAnalysisService struct {
	repo    repositories.ContractRepository
	engine  semantic.Engine
	credits CreditLedgerService
	alerts  AlertSchedulerService
	locker  ContractLocker
	cfg     SemanticConfig
	metrics *metrics.Metrics
	flight  singleflight.Group
	now     func() time.Time
	logger  *zap.Logger
}

// NewSemanticAnalysisService creates a SemanticAnalysisService. A nil
// engine makes every analysis fail its precondition.
func NewSemanticAnalysisService(
	repo repositories.ContractRepository,
	engine semantic.Engine,
	credits CreditLedgerService,
	alerts AlertSchedulerService,
	locker ContractLocker,
	cfg SemanticConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) SemanticAnalysisService {
	if locker == nil {
		locker = NewLocalContractLocker()
	}
	return &semanticAnalysisService{
		repo:    repo,
		engine:  engine,
		credits: credits,
		alerts:  alerts,
		locker:  locker,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
		logger:  logger.Named("semantic-analysis"),
	}
}

var _ SemanticAnalysisService = (*semanticAnalysisService)(nil)

func (s *semanticAnalysisService) Available() bool {
	return s.engine != nil
}

// Reanalyze collapses concurrent calls for the same contract and force
// flag into one run. The run outlives a cancelled caller so joined callers
// still get its result; cfg.Timeout bounds it instead.
func (s *semanticAnalysisService) Reanalyze(ctx context.Context, contractID uuid.UUID, force bool) (*ReanalyzeResult, error) {
	key := contractID.String() + ":" + strconv.FormatBool(force)
	v, err, _ := s.flight.Do(key, func() (any, error) {
		runCtx := context.WithoutCancel(ctx)
		if s.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(runCtx, s.cfg.Timeout)
			defer cancel()
		}
		return s.reanalyze(runCtx, contractID, force)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReanalyzeResult), nil
}

func (s *semanticAnalysisService) reanalyze(ctx context.Context, contractID uuid.UUID, force bool) (*ReanalyzeResult, error) {
	c, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if c.OCRStatus == models.ExtractionProcessing {
		return nil, fmt.Errorf("%w: extraction in progress", apperrors.ErrAlreadyProcessing)
	}

	if err := s.checkPreconditions(ctx, c); err != nil {
		return nil, err
	}

	if !force && s.cacheFresh(c) {
		s.metrics.RecordAnalysis("cached")
		return &ReanalyzeResult{
			ContractID:        c.ID,
			AIStatus:          c.AIStatus,
			Analysis:          c.AIAnalysis,
			HasCachedAnalysis: true,
		}, nil
	}

	release, err := s.locker.Acquire(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	balance, err := s.credits.Consume(ctx, c.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientCredits) {
			s.metrics.RecordAnalysis("insufficient_credits")
		}
		return nil, err
	}

	if err := s.repo.SetAIStatus(ctx, c.ID, models.AIProcessing, ""); err != nil {
		s.refund(ctx, c)
		return nil, fmt.Errorf("failed to mark analysis as processing: %w", err)
	}

	analysis, err := s.invoke(ctx, c)
	if err != nil {
		return nil, s.fail(ctx, c, err)
	}

	outcome := consolidation.ApplySemantic(c, analysis, s.cfg.CommitThreshold)
	updated := outcome.Contract
	cachedAt := s.now().UTC()
	updated.AIAnalysis = analysis
	updated.AIAnalysisCached = true
	updated.AIAnalysisCachedAt = &cachedAt
	updated.AIStatus = models.AICompleted
	updated.AIError = ""
	updated.ProcessingMode = models.ProcessingAIEnhanced

	committed, err := s.repo.CommitAnalysis(ctx, updated, c.OCRText)
	if err != nil {
		return nil, s.fail(ctx, c, fmt.Errorf("failed to store analysis: %w", err))
	}
	if !committed {
		return nil, s.fail(ctx, c, fmt.Errorf("%w: extracted text changed during analysis", apperrors.ErrConflict))
	}
	s.metrics.RecordAnalysis("completed")

	s.logger.Info("Semantic analysis completed",
		zap.String("contract_id", c.ID.String()),
		zap.String("model", analysis.Model),
		zap.Float64("confidence", analysis.ConfidenceScore),
		zap.Strings("committed", outcome.Committed))

	if outcome.ScheduleChanged {
		if _, err := s.alerts.Regenerate(ctx, updated); err != nil {
			return nil, fmt.Errorf("failed to regenerate alerts: %w", err)
		}
	}

	remaining := balance.Remaining
	return &ReanalyzeResult{
		ContractID:       updated.ID,
		AIStatus:         updated.AIStatus,
		Analysis:         analysis,
		CreditsRemaining: &remaining,
		Committed:        outcome.Committed,
	}, nil
}

func (s *semanticAnalysisService) checkPreconditions(ctx context.Context, c *models.Contract) error {
	var cause error
	switch {
	case s.engine == nil:
		cause = fmt.Errorf("%w: %w", apperrors.ErrAIPreconditionFailed, apperrors.ErrAINotConfigured)
	case !c.HasOCRText():
		cause = fmt.Errorf("%w: no extracted text", apperrors.ErrAIPreconditionFailed)
	default:
		return nil
	}

	s.metrics.RecordAnalysis("precondition_failed")
	if err := s.repo.SetAIStatus(ctx, c.ID, models.AIFailed, cause.Error()); err != nil {
		return fmt.Errorf("failed to record precondition failure: %w", err)
	}
	return cause
}

func (s *semanticAnalysisService) cacheFresh(c *models.Contract) bool {
	if !c.AIAnalysisCached || c.AIAnalysis == nil || c.AIAnalysisCachedAt == nil {
		return false
	}
	if s.cfg.CacheTTL <= 0 {
		return true
	}
	return s.now().Sub(*c.AIAnalysisCachedAt) < s.cfg.CacheTTL
}

func (s *semanticAnalysisService) invoke(ctx context.Context, c *models.Contract) (*models.AIAnalysis, error) {
	analysis, err := s.engine.Analyze(ctx, semantic.Request{
		Title: c.Title,
		Text:  c.OCRText,
		Hints: patternHints(c.PatternResult),
	})
	if err != nil {
		return nil, err
	}
	if analysis.Model == "" {
		analysis.Model = s.engine.Model()
	}
	if analysis.AnalyzedAt.IsZero() {
		analysis.AnalyzedAt = s.now().UTC()
	}
	return analysis, nil
}

// fail refunds the consumed credit and records the failure on the record.
func (s *semanticAnalysisService) fail(ctx context.Context, c *models.Contract, cause error) error {
	// The run context may have expired; the refund must still land.
	ctx = context.WithoutCancel(ctx)
	s.metrics.RecordAnalysis("failed")
	s.refund(ctx, c)

	s.logger.Error("Semantic analysis failed",
		zap.String("contract_id", c.ID.String()),
		zap.Error(cause))

	if err := s.repo.SetAIStatus(ctx, c.ID, models.AIFailed, cause.Error()); err != nil {
		s.logger.Error("Failed to record analysis failure",
			zap.String("contract_id", c.ID.String()),
			zap.Error(err))
	}
	return fmt.Errorf("semantic analysis failed: %w", cause)
}

func (s *semanticAnalysisService) refund(ctx context.Context, c *models.Contract) {
	if _, err := s.credits.Refund(ctx, c.UserID); err != nil {
		s.logger.Error("Failed to refund analysis credit",
			zap.String("contract_id", c.ID.String()),
			zap.String("user_id", c.UserID.String()),
			zap.Error(err))
	}
}

// patternHints summarizes the rule-based findings for the prompt.
func patternHints(r *models.PatternResult) []string {
	if r == nil {
		return nil
	}

	var hints []string
	if r.TacitRenewalDetected {
		hints = append(hints, fmt.Sprintf("tacit renewal phrasing detected (confidence %.2f)", r.ConfidenceScore))
	}
	if d := r.Selected.StartDate; d != nil {
		hints = append(hints, "start date candidate: "+d.Value.Format("2006-01-02"))
	}
	if d := r.Selected.EndDate; d != nil {
		hints = append(hints, "end date candidate: "+d.Value.Format("2006-01-02"))
	}
	if n := r.Selected.NoticePeriod; n != nil {
		hints = append(hints, fmt.Sprintf("notice period candidate: %d days", n.Days))
	}
	if a := r.Selected.AnnualAmount; a != nil {
		hints = append(hints, fmt.Sprintf("annual amount candidate: %s %s", a.Value.StringFixed(2), a.Currency))
	}
	if a := r.Selected.MonthlyAmount; a != nil {
		hints = append(hints, fmt.Sprintf("monthly amount candidate: %s %s", a.Value.StringFixed(2), a.Currency))
	}
	return hints
}

// SemanticAnalysisTask runs one analysis on the LLM lane.
type SemanticAnalysisTask struct {
	workqueue.BaseTask
	svc        SemanticAnalysisService
	getScope   ScopeFunc
	contractID uuid.UUID
	force      bool
	logger     *zap.Logger
}

// NewSemanticAnalysisTask creates an LLM task for one contract.
func NewSemanticAnalysisTask(
	svc SemanticAnalysisService,
	getScope ScopeFunc,
	contractID uuid.UUID,
	force bool,
	logger *zap.Logger,
) *SemanticAnalysisTask {
	return &SemanticAnalysisTask{
		BaseTask:   workqueue.NewBaseTask("Analyze contract with LLM", true),
		svc:        svc,
		getScope:   getScope,
		contractID: contractID,
		force:      force,
		logger:     logger,
	}
}

// Execute implements workqueue.Task. Running out of credits, losing the
// per-contract lock or a concurrent extraction ends the task without
// failing it.
func (t *SemanticAnalysisTask) Execute(ctx context.Context, enqueuer workqueue.TaskEnqueuer) error {
	ctx, cleanup, err := t.getScope(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	_, err = t.svc.Reanalyze(ctx, t.contractID, t.force)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrInsufficientCredits), errors.Is(err, apperrors.ErrAlreadyProcessing),
		errors.Is(err, apperrors.ErrConflict):
		t.logger.Info("Semantic analysis skipped",
			zap.String("contract_id", t.contractID.String()),
			zap.Error(err))
		return nil
	default:
		return err
	}
}
