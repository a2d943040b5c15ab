package services

import (
	"context"
	"fmt"
	"time"

	"boleto-import-backend/db/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DocumentIssuer emits one boleto per call
type DocumentIssuer interface {
	Issue(ctx context.Context, req IssueRequest) (*DocumentResult, error)
}

type RowStore interface {
	UpdateRowStatus(ctx context.Context, rowID uuid.UUID, status models.RowStatus, fields map[string]interface{}) error
}

type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
}

// maxBackoffShift caps 2^attempt so a large retry budget cannot overflow the delay
const maxBackoffShift = 30

type RowProcessorConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
}

// RowProcessor drives one row from pending to success or error, retrying
// retryable issuer failures with exponential backoff.
type RowProcessor struct {
	issuer       DocumentIssuer
	rows         RowStore
	transactions TransactionStore
	maxRetries   int
	backoffBase  time.Duration
	logger       *zap.Logger

	// sleep is swapped in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRowProcessor(issuer DocumentIssuer, rows RowStore, transactions TransactionStore, cfg RowProcessorConfig, logger *zap.Logger) *RowProcessor {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &RowProcessor{
		issuer:       issuer,
		rows:         rows,
		transactions: transactions,
		maxRetries:   cfg.MaxRetries,
		backoffBase:  cfg.BackoffBase,
		logger:       logger,
		sleep:        sleepWithContext,
	}
}

// Process runs the retry loop for a single row. Issuer failures end in an
// error row and a nil return; only store failures and cancellation are returned.
func (p *RowProcessor) Process(ctx context.Context, row models.ImportRow) error {
	req := IssueRequest{
		Amount:   row.Amount,
		Name:     row.Name,
		Document: row.Document,
		Phone:    row.Phone,
		Email:    row.Email,
	}

	for attempt := 1; ; attempt++ {
		retryCount := attempt - 1
		if err := p.rows.UpdateRowStatus(ctx, row.ID, models.RowStatusProcessing, map[string]interface{}{
			"retry_count": retryCount,
		}); err != nil {
			return fmt.Errorf("mark row %d processing: %w", row.RowNumber, err)
		}

		doc, err := p.issuer.Issue(ctx, req)
		if err == nil {
			return p.recordSuccess(ctx, row, doc, retryCount)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if !IsRetryable(err) || attempt > p.maxRetries {
			p.logger.Warn("Row failed permanently",
				zap.String("import_id", row.ImportID.String()),
				zap.Int("row_number", row.RowNumber),
				zap.Int("retry_count", retryCount),
				zap.String("error_code", ErrorCode(err)),
				zap.Error(err),
				zap.String("type", "row_processing_permanent_failure"),
			)
			return p.recordFailure(ctx, row, err, retryCount)
		}

		delay := p.backoff(attempt)
		p.logger.Info("Retrying row after issuer error",
			zap.String("import_id", row.ImportID.String()),
			zap.Int("row_number", row.RowNumber),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
			zap.String("type", "row_processing_error"),
		)
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (p *RowProcessor) backoff(attempt int) time.Duration {
	shift := attempt
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return time.Duration(int64(1)<<uint(shift)) * p.backoffBase
}

func (p *RowProcessor) recordSuccess(ctx context.Context, row models.ImportRow, doc *DocumentResult, retryCount int) error {
	tx := &models.Transaction{
		ImportRowID:   row.ID,
		IDTransaction: doc.IDTransaction,
		BoletoURL:     doc.BoletoURL,
		BoletoCode:    doc.BoletoCode,
		PDF:           doc.PDF,
		DueDate:       doc.DueDate,
	}
	if err := p.transactions.CreateTransaction(ctx, tx); err != nil {
		return fmt.Errorf("save transaction for row %d: %w", row.RowNumber, err)
	}

	if err := p.rows.UpdateRowStatus(ctx, row.ID, models.RowStatusSuccess, map[string]interface{}{
		"retry_count": retryCount,
	}); err != nil {
		return fmt.Errorf("mark row %d success: %w", row.RowNumber, err)
	}
	return nil
}

func (p *RowProcessor) recordFailure(ctx context.Context, row models.ImportRow, cause error, retryCount int) error {
	code := ErrorCode(cause)
	message := cause.Error()
	if err := p.rows.UpdateRowStatus(ctx, row.ID, models.RowStatusError, map[string]interface{}{
		"retry_count":   retryCount,
		"error_code":    code,
		"error_message": message,
	}); err != nil {
		return fmt.Errorf("mark row %d error: %w", row.RowNumber, err)
	}
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
