package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-renewals/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-renewals/pkg/credits"
	"github.com/ekaya-inc/ekaya-renewals/pkg/extraction"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
	"github.com/ekaya-inc/ekaya-renewals/pkg/repositories"
	"github.com/ekaya-inc/ekaya-renewals/pkg/semantic"
	"github.com/ekaya-inc/ekaya-renewals/pkg/services/workqueue"
)

// fakeContractRepo is an in-memory ContractRepository.
type fakeContractRepo struct {
	mu        sync.Mutex
	contracts map[uuid.UUID]*models.Contract
	updates   int
	updateErr error
}

func newFakeContractRepo(contracts ...*models.Contract) *fakeContractRepo {
	r := &fakeContractRepo{contracts: make(map[uuid.UUID]*models.Contract)}
	for _, c := range contracts {
		r.contracts[c.ID] = c.Clone()
	}
	return r
}

func (r *fakeContractRepo) Create(ctx context.Context, c *models.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.OCRStatus == "" {
		c.OCRStatus = models.ExtractionPending
	}
	if c.AIStatus == "" {
		c.AIStatus = models.AIPending
	}
	if c.ProcessingMode == "" {
		c.ProcessingMode = models.ProcessingPatternOnly
	}
	r.contracts[c.ID] = c.Clone()
	return nil
}

func (r *fakeContractRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *fakeContractRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Contract
	for _, c := range r.contracts {
		if c.UserID == userID {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

func (r *fakeContractRepo) SaveExtraction(ctx context.Context, c *models.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	stored, ok := r.contracts[c.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	r.updates++

	next := c.Clone()
	next.AIStatus = stored.AIStatus
	next.AIError = stored.AIError
	next.AIAnalysis = stored.AIAnalysis
	next.AIAnalysisCached = stored.AIAnalysisCached && stored.OCRText == c.OCRText
	next.AIAnalysisCachedAt = nil
	if stored.OCRText == c.OCRText {
		next.AIAnalysisCachedAt = cloneTimePtr(stored.AIAnalysisCachedAt)
	}
	if stored.AIStatus == models.AIFailed {
		next.AIStatus = models.AIPending
		next.AIError = ""
	}
	next.ProcessingStartedAt = nil
	r.contracts[c.ID] = next
	return nil
}

func (r *fakeContractRepo) FailExtraction(ctx context.Context, id uuid.UUID, ocrError, aiError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	c, ok := r.contracts[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	r.updates++
	c.OCRStatus = models.ExtractionFailed
	c.OCRError = ocrError
	c.ProcessingStartedAt = nil
	if c.AIStatus != models.AIProcessing {
		c.AIStatus = models.AIFailed
		c.AIError = aiError
	}
	return nil
}

func (r *fakeContractRepo) CommitAnalysis(ctx context.Context, c *models.Contract, seenText string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return false, r.updateErr
	}
	stored, ok := r.contracts[c.ID]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if stored.OCRStatus != models.ExtractionCompleted || stored.OCRText != seenText {
		return false, nil
	}
	r.updates++

	next := stored.Clone()
	committed := c.Clone()
	next.Amount = committed.Amount
	next.Currency = committed.Currency
	next.StartDate = committed.StartDate
	next.EndDate = committed.EndDate
	next.NextRenewalDate = committed.NextRenewalDate
	next.NoticePeriodDays = committed.NoticePeriodDays
	next.IsTacitRenewal = committed.IsTacitRenewal
	next.AIStatus = committed.AIStatus
	next.AIAnalysis = committed.AIAnalysis
	next.AIAnalysisCached = committed.AIAnalysisCached
	next.AIAnalysisCachedAt = committed.AIAnalysisCachedAt
	next.AIError = committed.AIError
	next.ProcessingMode = committed.ProcessingMode
	r.contracts[c.ID] = next
	return true, nil
}

func (r *fakeContractRepo) TryBeginExtraction(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[id]
	if !ok {
		return false, apperrors.ErrNotFound
	}
	if c.OCRStatus == models.ExtractionProcessing && c.ProcessingStartedAt != nil && !c.ProcessingStartedAt.Before(staleBefore) {
		return false, nil
	}
	c.OCRStatus = models.ExtractionProcessing
	c.OCRError = ""
	c.ProcessingStartedAt = &now
	return true, nil
}

func (r *fakeContractRepo) SetAIStatus(ctx context.Context, id uuid.UUID, status models.AIStatus, aiError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	c.AIStatus = status
	c.AIError = aiError
	return nil
}

func (r *fakeContractRepo) get(id uuid.UUID) *models.Contract {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.contracts[id].Clone()
}

var _ repositories.ContractRepository = (*fakeContractRepo)(nil)

// fakeAlertRepo keeps the last plan per contract.
type fakeAlertRepo struct {
	mu       sync.Mutex
	events   map[uuid.UUID][]models.AlertEvent
	due      []models.AlertEvent
	sent     []uuid.UUID
	failed   map[uuid.UUID]string
	replaced int
	expired  int64
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{
		events: make(map[uuid.UUID][]models.AlertEvent),
		failed: make(map[uuid.UUID]string),
	}
}

func (r *fakeAlertRepo) ReplaceForContract(ctx context.Context, contractID uuid.UUID, plan []models.AlertEvent, renewalDate *time.Time, today time.Time) ([]models.AlertEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaced++
	stored := make([]models.AlertEvent, len(plan))
	for i, e := range plan {
		e.ID = uuid.New()
		stored[i] = e
	}
	r.events[contractID] = stored
	return stored, nil
}

func (r *fakeAlertRepo) ListByContract(ctx context.Context, contractID uuid.UUID) ([]models.AlertEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AlertEvent(nil), r.events[contractID]...), nil
}

func (r *fakeAlertRepo) ListDue(ctx context.Context, day time.Time, limit int) ([]models.AlertEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AlertEvent(nil), r.due...), nil
}

func (r *fakeAlertRepo) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, id)
	return nil
}

func (r *fakeAlertRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[id] = reason
	return nil
}

func (r *fakeAlertRepo) ExpireStale(ctx context.Context, today time.Time) (int64, error) {
	return r.expired, nil
}

func (r *fakeAlertRepo) plan(contractID uuid.UUID) []models.AlertEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[contractID]
}

var _ repositories.AlertEventRepository = (*fakeAlertRepo)(nil)

// fakeLedgerRepo applies mutations to in-memory ledgers under one lock.
type fakeLedgerRepo struct {
	mu      sync.Mutex
	ledgers map[uuid.UUID]models.CreditLedger
}

func newFakeLedgerRepo(ledgers ...models.CreditLedger) *fakeLedgerRepo {
	r := &fakeLedgerRepo{ledgers: make(map[uuid.UUID]models.CreditLedger)}
	for _, l := range ledgers {
		r.ledgers[l.UserID] = l
	}
	return r
}

func (r *fakeLedgerRepo) Get(ctx context.Context, userID uuid.UUID) (*models.CreditLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &l, nil
}

func (r *fakeLedgerRepo) Mutate(ctx context.Context, userID uuid.UUID, defaultLimit int, now time.Time, fn repositories.LedgerMutation) (models.CreditLedger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.ledgers[userID]
	if !ok {
		current = credits.New(userID, defaultLimit, now)
		r.ledgers[userID] = current
	}
	next, err := fn(current)
	if err != nil {
		return current, err
	}
	r.ledgers[userID] = next
	return next, nil
}

func (r *fakeLedgerRepo) ListDueForReset(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, l := range r.ledgers {
		if !now.Before(l.ResetDate) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeLedgerRepo) ledger(userID uuid.UUID) models.CreditLedger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledgers[userID]
}

var _ repositories.CreditLedgerRepository = (*fakeLedgerRepo)(nil)

// fakeExtractor returns a fixed result or error.
type fakeExtractor struct {
	result *extraction.Result
	err    error
	calls  int
}

func (e *fakeExtractor) Extract(ctx context.Context, doc extraction.Document) (*extraction.Result, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	r := *e.result
	return &r, nil
}

// fakeAnalyzer returns a fixed pattern result or error.
type fakeAnalyzer struct {
	result *models.PatternResult
	err    error
}

func (a *fakeAnalyzer) Analyze(text string) (*models.PatternResult, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

// fakeEngine returns a fixed analysis or error.
type fakeEngine struct {
	mu       sync.Mutex
	analysis *models.AIAnalysis
	err      error
	calls    int
	lastReq  semantic.Request
}

func (e *fakeEngine) Analyze(ctx context.Context, req semantic.Request) (*models.AIAnalysis, error) {
	e.mu.Lock()
	e.calls++
	e.lastReq = req
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	a := *e.analysis
	return &a, nil
}

func (e *fakeEngine) Model() string { return "fake-model" }

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var _ semantic.Engine = (*fakeEngine)(nil)

// recordingEnqueuer collects tasks instead of running them.
type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []workqueue.Task
}

func (e *recordingEnqueuer) Enqueue(task workqueue.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
}

func (e *recordingEnqueuer) taskList() []workqueue.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]workqueue.Task(nil), e.tasks...)
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func noopScope(ctx context.Context) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
