package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
	"github.com/ekaya-inc/ekaya-renewals/pkg/services"
)

// passthroughScope stands in for database.WithScopeContext in handler tests.
func passthroughScope(next http.HandlerFunc) http.HandlerFunc {
	return next
}

// mockPipelineService is a configurable mock for contract handler tests.
type mockPipelineService struct {
	contract  *models.Contract
	status    *models.ContractStatus
	started   bool
	err       error
	lastReq   services.IngestRequest
	reprocess []uuid.UUID
}

func (m *mockPipelineService) Ingest(_ context.Context, req services.IngestRequest) (*models.Contract, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.contract != nil {
		return m.contract, nil
	}
	return &models.Contract{
		ID:        uuid.New(),
		UserID:    req.UserID,
		Title:     req.Title,
		FilePath:  req.FilePath,
		OCRStatus: models.ExtractionProcessing,
		AIStatus:  models.AIPending,
	}, nil
}

func (m *mockPipelineService) Reprocess(_ context.Context, id uuid.UUID) (bool, error) {
	m.reprocess = append(m.reprocess, id)
	return m.started, m.err
}

func (m *mockPipelineService) GetStatus(_ context.Context, id uuid.UUID) (*models.ContractStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.status != nil {
		return m.status, nil
	}
	return &models.ContractStatus{ContractID: id, OCRStatus: models.ExtractionCompleted, AIStatus: models.AIPending}, nil
}

// mockSemanticService records the force flag of each call.
type mockSemanticService struct {
	result *services.ReanalyzeResult
	err    error
	forces []bool
}

func (m *mockSemanticService) Reanalyze(_ context.Context, id uuid.UUID, force bool) (*services.ReanalyzeResult, error) {
	m.forces = append(m.forces, force)
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &services.ReanalyzeResult{ContractID: id, AIStatus: models.AICompleted}, nil
}

func (m *mockSemanticService) Available() bool {
	return true
}

// mockAlertService serves a fixed event list.
type mockAlertService struct {
	services.AlertSchedulerService
	events []models.AlertEvent
	err    error
}

func (m *mockAlertService) ListForContract(_ context.Context, _ uuid.UUID) ([]models.AlertEvent, error) {
	return m.events, m.err
}

// mockCreditService is a configurable mock for credit handler tests.
type mockCreditService struct {
	services.CreditLedgerService
	balance   *models.CreditBalance
	err       error
	purchased []int
}

func (m *mockCreditService) Balance(_ context.Context, _ uuid.UUID) (*models.CreditBalance, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.balanceOrDefault(), nil
}

func (m *mockCreditService) Purchase(_ context.Context, _ uuid.UUID, amount int) (*models.CreditBalance, error) {
	m.purchased = append(m.purchased, amount)
	if m.err != nil {
		return nil, m.err
	}
	b := m.balanceOrDefault()
	b.Remaining += amount
	b.Purchased += amount
	return b, nil
}

func (m *mockCreditService) balanceOrDefault() *models.CreditBalance {
	if m.balance != nil {
		b := *m.balance
		return &b
	}
	return &models.CreditBalance{
		Remaining:    10,
		MonthlyLimit: 10,
		ResetDate:    time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
	}
}
