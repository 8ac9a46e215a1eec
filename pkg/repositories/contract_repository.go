package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/ekaya-renewals/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-renewals/pkg/database"
	"github.com/ekaya-inc/ekaya-renewals/pkg/models"
)

// ContractRepository provides data access for contract records.
type ContractRepository interface {
	Create(ctx context.Context, c *models.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Contract, error)
	// SaveExtraction stores a finished extraction run: the ocr and pattern
	// columns, the consolidated fields and the recommendations. It releases
	// the record and never overwrites the stored analysis; new text only
	// invalidates its cache.
	SaveExtraction(ctx context.Context, c *models.Contract) error
	// FailExtraction records a failed extraction run and releases the record.
	FailExtraction(ctx context.Context, id uuid.UUID, ocrError, aiError string) error
	// CommitAnalysis stores the analysis columns and consolidated fields of c
	// if the record still holds completed text equal to seenText. It reports
	// false without writing otherwise.
	CommitAnalysis(ctx context.Context, c *models.Contract, seenText string) (bool, error)
	// TryBeginExtraction moves the record to ocr_status=processing unless
	// another run holds it and started after staleBefore. It reports whether
	// the caller won.
	TryBeginExtraction(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error)
	SetAIStatus(ctx context.Context, id uuid.UUID, status models.AIStatus, aiError string) error
}

type contractRepository struct{}

// NewContractRepository creates a ContractRepository.
func NewContractRepository() ContractRepository {
	return &contractRepository{}
}

var _ ContractRepository = (*contractRepository)(nil)

const contractColumns = `
	id, user_id, title, file_path, mime_type, status,
	amount::text, currency, start_date, end_date, next_renewal_date,
	notice_period_days, is_tacit_renewal,
	ocr_status, ocr_text, ocr_confidence, ocr_method, ocr_error,
	pattern_result, pattern_confidence, final_confidence, recommendations,
	ai_status, ai_analysis, ai_analysis_cached, ai_analysis_cached_at, ai_error,
	processing_mode, processing_started_at, created_at, updated_at`

func (r *contractRepository) Create(ctx context.Context, c *models.Contract) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = models.ContractStatusActive
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

	payloads, err := encodePayloads(c)
	if err != nil {
		return err
	}

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO contracts (
			id, user_id, title, file_path, mime_type, status,
			amount, currency, start_date, end_date, next_renewal_date,
			notice_period_days, is_tacit_renewal,
			ocr_status, ocr_text, ocr_confidence, ocr_method, ocr_error,
			pattern_result, pattern_confidence, final_confidence, recommendations,
			ai_status, ai_analysis, ai_analysis_cached, ai_analysis_cached_at, ai_error,
			processing_mode, processing_started_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::numeric, $8, $9, $10, $11,
			$12, $13,
			$14, $15, $16, $17, $18,
			$19, $20, $21, $22,
			$23, $24, $25, $26, $27,
			$28, $29, $30, $31
		)`,
		c.ID, c.UserID, c.Title, c.FilePath, c.MimeType, c.Status,
		decimalText(c.Amount), c.Currency, c.StartDate, c.EndDate, c.NextRenewalDate,
		c.NoticePeriodDays, c.IsTacitRenewal,
		c.OCRStatus, c.OCRText, c.OCRConfidence, c.OCRMethod, c.OCRError,
		payloads.pattern, c.PatternConfidence, c.FinalConfidence, payloads.recommendations,
		c.AIStatus, payloads.analysis, c.AIAnalysisCached, c.AIAnalysisCachedAt, c.AIError,
		c.ProcessingMode, c.ProcessingStartedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	return nil
}

func (r *contractRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	row := scope.Conn.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id)
	c, err := scanContract(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return c, nil
}

func (r *contractRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Contract, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+contractColumns+`
		FROM contracts
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contracts: %w", err)
	}
	return contracts, nil
}

func (r *contractRepository) SaveExtraction(ctx context.Context, c *models.Contract) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	payloads, err := encodePayloads(c)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()

	// SET expressions read the row as it was before this statement, so the
	// ai resets compare against the previously stored text.
	result, err := scope.Conn.Exec(ctx, `
		UPDATE contracts SET
			amount = $2::numeric, currency = $3, start_date = $4, end_date = $5, next_renewal_date = $6,
			notice_period_days = $7, is_tacit_renewal = $8,
			ocr_status = $9, ocr_text = $10, ocr_confidence = $11, ocr_method = $12, ocr_error = $13,
			pattern_result = $14, pattern_confidence = $15, final_confidence = $16, recommendations = $17,
			ai_analysis_cached = ai_analysis_cached AND ocr_text = $10,
			ai_analysis_cached_at = CASE WHEN ocr_text = $10 THEN ai_analysis_cached_at END,
			ai_error = CASE WHEN ai_status = 'failed' THEN '' ELSE ai_error END,
			ai_status = CASE WHEN ai_status = 'failed' THEN 'pending' ELSE ai_status END,
			processing_mode = $18, processing_started_at = NULL, updated_at = $19
		WHERE id = $1`,
		c.ID,
		decimalText(c.Amount), c.Currency, c.StartDate, c.EndDate, c.NextRenewalDate,
		c.NoticePeriodDays, c.IsTacitRenewal,
		c.OCRStatus, c.OCRText, c.OCRConfidence, c.OCRMethod, c.OCRError,
		payloads.pattern, c.PatternConfidence, c.FinalConfidence, payloads.recommendations,
		c.ProcessingMode, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save extraction: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *contractRepository) FailExtraction(ctx context.Context, id uuid.UUID, ocrError, aiError string) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	// A running analysis keeps its status; its commit loses on ocr_status.
	result, err := scope.Conn.Exec(ctx, `
		UPDATE contracts SET
			ocr_status = 'failed', ocr_error = $2, processing_started_at = NULL,
			ai_error = CASE WHEN ai_status = 'processing' THEN ai_error ELSE $3 END,
			ai_status = CASE WHEN ai_status = 'processing' THEN ai_status ELSE 'failed' END,
			updated_at = NOW()
		WHERE id = $1`, id, ocrError, aiError)
	if err != nil {
		return fmt.Errorf("failed to record extraction failure: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *contractRepository) CommitAnalysis(ctx context.Context, c *models.Contract, seenText string) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	payloads, err := encodePayloads(c)
	if err != nil {
		return false, err
	}
	c.UpdatedAt = time.Now().UTC()

	result, err := scope.Conn.Exec(ctx, `
		UPDATE contracts SET
			amount = $2::numeric, currency = $3, start_date = $4, end_date = $5, next_renewal_date = $6,
			notice_period_days = $7, is_tacit_renewal = $8,
			ai_status = $9, ai_analysis = $10, ai_analysis_cached = $11, ai_analysis_cached_at = $12, ai_error = $13,
			processing_mode = $14, updated_at = $15
		WHERE id = $1 AND ocr_status = 'completed' AND ocr_text = $16`,
		c.ID,
		decimalText(c.Amount), c.Currency, c.StartDate, c.EndDate, c.NextRenewalDate,
		c.NoticePeriodDays, c.IsTacitRenewal,
		c.AIStatus, payloads.analysis, c.AIAnalysisCached, c.AIAnalysisCachedAt, c.AIError,
		c.ProcessingMode, c.UpdatedAt, seenText,
	)
	if err != nil {
		return false, fmt.Errorf("failed to commit analysis: %w", err)
	}
	if result.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := scope.Conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contracts WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check contract: %w", err)
	}
	if !exists {
		return false, apperrors.ErrNotFound
	}
	return false, nil
}

func (r *contractRepository) TryBeginExtraction(ctx context.Context, id uuid.UUID, now, staleBefore time.Time) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE contracts
		SET ocr_status = 'processing', ocr_error = '', processing_started_at = $2, updated_at = $2
		WHERE id = $1
		  AND (ocr_status <> 'processing'
		       OR processing_started_at IS NULL
		       OR processing_started_at < $3)`,
		id, now, staleBefore)
	if err != nil {
		return false, fmt.Errorf("failed to begin extraction: %w", err)
	}
	if result.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := scope.Conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contracts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check contract: %w", err)
	}
	if !exists {
		return false, apperrors.ErrNotFound
	}
	return false, nil
}

func (r *contractRepository) SetAIStatus(ctx context.Context, id uuid.UUID, status models.AIStatus, aiError string) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	result, err := scope.Conn.Exec(ctx, `
		UPDATE contracts SET ai_status = $2, ai_error = $3, updated_at = NOW()
		WHERE id = $1`, id, status, aiError)
	if err != nil {
		return fmt.Errorf("failed to set ai status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

type contractPayloads struct {
	pattern         []byte
	recommendations []byte
	analysis        []byte
}

func encodePayloads(c *models.Contract) (contractPayloads, error) {
	var p contractPayloads
	var err error

	if c.PatternResult != nil {
		if p.pattern, err = json.Marshal(c.PatternResult); err != nil {
			return p, fmt.Errorf("failed to marshal pattern result: %w", err)
		}
	}
	recs := c.Recommendations
	if recs == nil {
		recs = []models.Recommendation{}
	}
	if p.recommendations, err = json.Marshal(recs); err != nil {
		return p, fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	if c.AIAnalysis != nil {
		if p.analysis, err = json.Marshal(c.AIAnalysis); err != nil {
			return p, fmt.Errorf("failed to marshal ai analysis: %w", err)
		}
	}
	return p, nil
}

func scanContract(row pgx.Row) (*models.Contract, error) {
	var c models.Contract
	var amount *string
	var patternRaw, recsRaw, analysisRaw []byte

	err := row.Scan(
		&c.ID, &c.UserID, &c.Title, &c.FilePath, &c.MimeType, &c.Status,
		&amount, &c.Currency, &c.StartDate, &c.EndDate, &c.NextRenewalDate,
		&c.NoticePeriodDays, &c.IsTacitRenewal,
		&c.OCRStatus, &c.OCRText, &c.OCRConfidence, &c.OCRMethod, &c.OCRError,
		&patternRaw, &c.PatternConfidence, &c.FinalConfidence, &recsRaw,
		&c.AIStatus, &analysisRaw, &c.AIAnalysisCached, &c.AIAnalysisCachedAt, &c.AIError,
		&c.ProcessingMode, &c.ProcessingStartedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("invalid stored amount %q: %w", *amount, err)
		}
		c.Amount = &d
	}
	if c.PatternResult, err = models.DecodePatternResult(patternRaw); err != nil {
		return nil, err
	}
	if c.AIAnalysis, err = models.DecodeAIAnalysis(analysisRaw); err != nil {
		return nil, err
	}
	if len(recsRaw) > 0 {
		if err := json.Unmarshal(recsRaw, &c.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to decode recommendations: %w", err)
		}
	}
	return &c, nil
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(2)
	return &s
}
