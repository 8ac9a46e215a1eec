package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-renewals/pkg/consolidation"
	"github.com/ekaya-inc/ekaya-renewals/pkg/extraction"
	"github.com/ekaya-inc/ekaya-renewals/pkg/logging"
	"github.com/ekaya-inc/ekaya-renewals/pkg/metrics"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
	"github.com/ekaya-inc/ekaya-renewals/pkg/patterns"
	"github.com/ekaya-inc/ekaya-renewals/pkg/repositories"
	"github.com/ekaya-inc/ekaya-renewals/pkg/services/workqueue"
)

// IngestRequest describes a stored document that should become a contract.
type IngestRequest struct {
	UserID   uuid.UUID
	Title    string
	FilePath string
	MimeType string
}

// PipelineConfig holds the tunables of the extraction pipeline.
type PipelineConfig struct {
	Consolidation consolidation.Settings
	// AutoAI dispatches a non-forced semantic analysis after extraction
	// when the owner still has credits.
	AutoAI bool
	// StaleProcessingAfter is how long a run may hold a record before a
	// reprocess can take it over.
	StaleProcessingAfter time.Duration
}

// ContractPipelineService runs extraction, pattern analysis and
// consolidation for contracts. Methods expect a database scope in ctx;
// the queued tasks acquire their own.
type ContractPipelineService interface {
	// Ingest creates a pending contract and dispatches its extraction.
	Ingest(ctx context.Context, req IngestRequest) (*models.Contract, error)
	// Reprocess dispatches a new extraction run. It reports false when
	// another run already holds the record.
	Reprocess(ctx context.Context, contractID uuid.UUID) (bool, error)
	GetStatus(ctx context.Context, contractID uuid.UUID) (*models.ContractStatus, error)
}

type contractPipelineService struct {
	repo      repositories.ContractRepository
	extractor extraction.Extractor
	analyzer  patterns.Analyzer
	alerts    AlertSchedulerService
	credits   CreditLedgerService
	semantic  SemanticAnalysisService
	enqueuer  workqueue.TaskEnqueuer
	getScope  ScopeFunc
	cfg       PipelineConfig
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *zap.Logger
}

// NewContractPipelineService creates a ContractPipelineService. semantic
// may be nil, which disables automatic analysis.
func NewContractPipelineService(
	repo repositories.ContractRepository,
	extractor extraction.Extractor,
	analyzer patterns.Analyzer,
	alerts AlertSchedulerService,
	credits CreditLedgerService,
	semantic SemanticAnalysisService,
	enqueuer workqueue.TaskEnqueuer,
	getScope ScopeFunc,
	cfg PipelineConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) ContractPipelineService {
	return &contractPipelineService{
		repo:      repo,
		extractor: extractor,
		analyzer:  analyzer,
		alerts:    alerts,
		credits:   credits,
		semantic:  semantic,
		enqueuer:  enqueuer,
		getScope:  getScope,
		cfg:       cfg,
		metrics:   m,
		now:       time.Now,
		logger:    logger.Named("contract-pipeline"),
	}
}

var _ ContractPipelineService = (*contractPipelineService)(nil)

func (s *contractPipelineService) Ingest(ctx context.Context, req IngestRequest) (*models.Contract, error) {
	if req.UserID == uuid.Nil {
		return nil, fmt.Errorf("ingest requires an owner")
	}
	if strings.TrimSpace(req.FilePath) == "" {
		return nil, fmt.Errorf("ingest requires a file path")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		base := filepath.Base(req.FilePath)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	c := &models.Contract{
		UserID:   req.UserID,
		Title:    title,
		FilePath: req.FilePath,
		MimeType: req.MimeType,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}

	if _, err := s.dispatch(ctx, c.ID); err != nil {
		return nil, err
	}
	c.OCRStatus = models.ExtractionProcessing

	s.logger.Info("Contract ingested",
		zap.String("contract_id", c.ID.String()),
		zap.String("user_id", c.UserID.String()))
	return c, nil
}

func (s *contractPipelineService) Reprocess(ctx context.Context, contractID uuid.UUID) (bool, error) {
	started, err := s.dispatch(ctx, contractID)
	if err != nil {
		return false, err
	}
	if !started {
		s.logger.Info("Reprocess skipped, extraction already running",
			zap.String("contract_id", contractID.String()))
	}
	return started, nil
}

func (s *contractPipelineService) GetStatus(ctx context.Context, contractID uuid.UUID) (*models.ContractStatus, error) {
	c, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return models.StatusOf(c), nil
}

// dispatch claims the record for extraction and queues the run.
func (s *contractPipelineService) dispatch(ctx context.Context, contractID uuid.UUID) (bool, error) {
	now := s.now().UTC()
	started, err := s.repo.TryBeginExtraction(ctx, contractID, now, now.Add(-s.cfg.StaleProcessingAfter))
	if err != nil {
		return false, err
	}
	if !started {
		return false, nil
	}
	s.enqueuer.Enqueue(NewExtractionTask(s, contractID))
	return true, nil
}

// process runs one claimed extraction to completion.
func (s *contractPipelineService) process(ctx context.Context, contractID uuid.UUID, enqueuer workqueue.TaskEnqueuer) error {
	c, err := s.repo.GetByID(ctx, contractID)
	if err != nil {
		return fmt.Errorf("failed to load contract: %w", err)
	}

	result, err := s.extractor.Extract(ctx, extraction.Document{Path: c.FilePath, MimeType: c.MimeType})
	if err != nil {
		return s.failExtraction(ctx, c, err)
	}
	s.metrics.RecordExtraction(result.Method, result.Confidence, nil)

	c.OCRText = result.Text
	c.OCRMethod = result.Method
	c.OCRError = ""
	c.OCRStatus = models.ExtractionCompleted
	c.ProcessingStartedAt = nil
	c.ProcessingMode = models.ProcessingPatternOnly

	pattern, patternErr := s.analyzer.Analyze(result.Text)
	if patternErr != nil {
		s.logger.Warn("Pattern analysis failed, consolidating extraction confidence only",
			zap.String("contract_id", c.ID.String()),
			zap.Error(patternErr))
		pattern = nil
	}

	outcome := consolidation.Apply(c, consolidation.Input{
		OCRConfidence: result.Confidence,
		Pattern:       pattern,
		PatternErr:    patternErr,
	}, s.cfg.Consolidation)
	c = outcome.Contract

	// The analysis columns belong to the semantic stage. The repository
	// invalidates the cache and clears a failed status itself.
	if err := s.repo.SaveExtraction(ctx, c); err != nil {
		return fmt.Errorf("failed to store extraction result: %w", err)
	}

	s.logger.Info("Contract extracted",
		zap.String("contract_id", c.ID.String()),
		zap.String("method", result.Method),
		zap.Float64("ocr_confidence", result.Confidence),
		zap.Float64("final_confidence", outcome.FinalConfidence),
		zap.Strings("committed", outcome.Committed))
	s.logger.Debug("Extracted text preview",
		zap.String("contract_id", c.ID.String()),
		zap.String("text", logging.TextSnippet(result.Text, logging.MaxSnippetLength)))

	if _, err := s.alerts.Regenerate(ctx, c); err != nil {
		return fmt.Errorf("failed to regenerate alerts: %w", err)
	}

	s.maybeDispatchAnalysis(ctx, c, enqueuer)
	return nil
}

func (s *contractPipelineService) failExtraction(ctx context.Context, c *models.Contract, cause error) error {
	method := ""
	var exErr *extraction.Error
	if errors.As(cause, &exErr) {
		method = exErr.Method
	}
	s.metrics.RecordExtraction(method, 0, cause)

	s.logger.Warn("Contract extraction failed",
		zap.String("contract_id", c.ID.String()),
		zap.String("kind", string(extraction.KindOf(cause))),
		zap.Error(cause))

	if err := s.repo.FailExtraction(ctx, c.ID, cause.Error(), "text extraction failed"); err != nil {
		return fmt.Errorf("failed to record extraction failure: %w", err)
	}
	return fmt.Errorf("extraction failed: %w", cause)
}

func (s *contractPipelineService) maybeDispatchAnalysis(ctx context.Context, c *models.Contract, enqueuer workqueue.TaskEnqueuer) {
	if !s.cfg.AutoAI || s.semantic == nil || !s.semantic.Available() {
		return
	}
	balance, err := s.credits.Balance(ctx, c.UserID)
	if err != nil {
		s.logger.Warn("Skipping automatic analysis, credit balance unavailable",
			zap.String("contract_id", c.ID.String()),
			zap.Error(err))
		return
	}
	if balance.Remaining <= 0 {
		return
	}
	enqueuer.Enqueue(NewSemanticAnalysisTask(s.semantic, s.getScope, c.ID, false, s.logger))
}

// ExtractionTask extracts, analyzes and consolidates one contract.
type ExtractionTask struct {
	workqueue.BaseTask
	pipeline   *contractPipelineService
	contractID uuid.UUID
}

// NewExtractionTask creates the data task for one claimed contract.
func NewExtractionTask(pipeline *contractPipelineService, contractID uuid.UUID) *ExtractionTask {
	return &ExtractionTask{
		BaseTask:   workqueue.NewBaseTask("Extract contract", false),
		pipeline:   pipeline,
		contractID: contractID,
	}
}

// ContractID returns the contract the task works on.
func (t *ExtractionTask) ContractID() uuid.UUID {
	return t.contractID
}

// Execute implements workqueue.Task.
func (t *ExtractionTask) Execute(ctx context.Context, enqueuer workqueue.TaskEnqueuer) error {
	ctx, cleanup, err := t.pipeline.getScope(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire database scope: %w", err)
	}
	defer cleanup()

	return t.pipeline.process(ctx, t.contractID, enqueuer)
}
