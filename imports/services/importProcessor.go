package services

import (
	"context"
	"fmt"
	"time"

	"boleto-import-backend/db/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ImportStore interface {
	GetImport(ctx context.Context, id uuid.UUID) (*models.Import, error)
	UpdateImport(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	FindPendingRows(ctx context.Context, importID uuid.UUID) ([]models.ImportRow, error)
	CountRowsByStatus(ctx context.Context, importID uuid.UUID, status models.RowStatus) (int, error)
}

// ProgressEvent is published after every batch and on terminal transitions
type ProgressEvent struct {
	ImportID string              `json:"importId"`
	Status   models.ImportStatus `json:"status"`
	Progress ProgressCounts      `json:"progress"`
}

type ProgressCounts struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Error     int `json:"error"`
}

// NewProgressEvent snapshots the counters of an import
func NewProgressEvent(imp *models.Import) ProgressEvent {
	return ProgressEvent{
		ImportID: imp.ID.String(),
		Status:   imp.Status,
		Progress: ProgressCounts{
			Total:     imp.TotalRows,
			Processed: imp.ProcessedRows,
			Success:   imp.SuccessRows,
			Error:     imp.ErrorRows,
		},
	}
}

type ProgressPublisher interface {
	Publish(ctx context.Context, event ProgressEvent) error
}

// CompletionNotifier is told once an import reaches completed. Failures are logged, never returned to the job.
type CompletionNotifier interface {
	NotifyCompletion(ctx context.Context, imp *models.Import) error
}

// RowHandler processes a single row to a terminal status
type RowHandler interface {
	Process(ctx context.Context, row models.ImportRow) error
}

// failureWriteTimeout bounds the status write made after the job context is gone
const failureWriteTimeout = 10 * time.Second

// ImportProcessor runs one import job: pending rows in batches of maxConcurrency,
// counters persisted after each batch, completed or failed exactly once.
type ImportProcessor struct {
	store          ImportStore
	rows           RowHandler
	publisher      ProgressPublisher
	notifiers      []CompletionNotifier
	maxConcurrency int
	logger         *zap.Logger
	now            func() time.Time
}

func NewImportProcessor(store ImportStore, rows RowHandler, publisher ProgressPublisher, maxConcurrency int, logger *zap.Logger, notifiers ...CompletionNotifier) *ImportProcessor {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &ImportProcessor{
		store:          store,
		rows:           rows,
		publisher:      publisher,
		notifiers:      notifiers,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		now:            time.Now,
	}
}

// ProcessImport is the queue entry point for one import id
func (p *ImportProcessor) ProcessImport(ctx context.Context, importID uuid.UUID) error {
	imp, err := p.store.GetImport(ctx, importID)
	if err != nil {
		return fmt.Errorf("load import %s: %w", importID, err)
	}
	if imp.Status.IsTerminal() {
		p.logger.Warn("Import already finished, skipping",
			zap.String("import_id", importID.String()),
			zap.String("status", string(imp.Status)),
		)
		return nil
	}

	start := time.Now()
	p.logger.Info("Import processing started",
		zap.String("import_id", importID.String()),
		zap.Int("total_rows", imp.TotalRows),
		zap.String("type", "import_processing_start"),
	)

	if err := p.run(ctx, imp); err != nil {
		p.fail(ctx, imp, err)
		return err
	}

	p.logger.Info("Import processing completed",
		zap.String("import_id", importID.String()),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (p *ImportProcessor) run(ctx context.Context, imp *models.Import) error {
	startedAt := p.now()
	if err := p.store.UpdateImport(ctx, imp.ID, map[string]interface{}{
		"status":     models.ImportStatusProcessing,
		"started_at": startedAt,
	}); err != nil {
		return fmt.Errorf("mark import processing: %w", err)
	}
	imp.Status = models.ImportStatusProcessing
	imp.StartedAt = &startedAt
	p.publish(ctx, imp)

	pending, err := p.store.FindPendingRows(ctx, imp.ID)
	if err != nil {
		return fmt.Errorf("load pending rows: %w", err)
	}

	batches := partitionRows(pending, p.maxConcurrency)
	for i, batch := range batches {
		if err := p.processBatch(ctx, batch); err != nil {
			return fmt.Errorf("batch %d: %w", i+1, err)
		}
		if err := p.refreshCounters(ctx, imp); err != nil {
			return err
		}

		p.logger.Info("Batch processed",
			zap.String("import_id", imp.ID.String()),
			zap.Int("batch", i+1),
			zap.Int("batches", len(batches)),
			zap.Int("processed", imp.ProcessedRows),
			zap.Int("success", imp.SuccessRows),
			zap.Int("error", imp.ErrorRows),
			zap.String("type", "batch_processing_complete"),
		)
		p.publish(ctx, imp)
	}

	if err := p.refreshCounters(ctx, imp); err != nil {
		return err
	}

	finishedAt := p.now()
	if err := p.store.UpdateImport(ctx, imp.ID, map[string]interface{}{
		"status":      models.ImportStatusCompleted,
		"finished_at": finishedAt,
	}); err != nil {
		return fmt.Errorf("mark import completed: %w", err)
	}

	// completed is terminal from here on; nothing below may route into fail
	imp.Status = models.ImportStatusCompleted
	imp.FinishedAt = &finishedAt

	p.publish(ctx, imp)
	p.notify(ctx, imp)
	return nil
}

// processBatch waits for every row of the batch, including its retries
func (p *ImportProcessor) processBatch(ctx context.Context, batch []models.ImportRow) error {
	var g errgroup.Group
	for _, row := range batch {
		g.Go(func() error {
			return p.rows.Process(ctx, row)
		})
	}
	return g.Wait()
}

// refreshCounters recounts over all rows of the import, not only the last batch
func (p *ImportProcessor) refreshCounters(ctx context.Context, imp *models.Import) error {
	success, err := p.store.CountRowsByStatus(ctx, imp.ID, models.RowStatusSuccess)
	if err != nil {
		return fmt.Errorf("count success rows: %w", err)
	}
	failed, err := p.store.CountRowsByStatus(ctx, imp.ID, models.RowStatusError)
	if err != nil {
		return fmt.Errorf("count error rows: %w", err)
	}

	processed := success + failed
	if err := p.store.UpdateImport(ctx, imp.ID, map[string]interface{}{
		"processed_rows": processed,
		"success_rows":   success,
		"error_rows":     failed,
	}); err != nil {
		return fmt.Errorf("update import counters: %w", err)
	}

	imp.ProcessedRows = processed
	imp.SuccessRows = success
	imp.ErrorRows = failed
	return nil
}

func (p *ImportProcessor) fail(ctx context.Context, imp *models.Import, cause error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	finishedAt := p.now()
	if err := p.store.UpdateImport(writeCtx, imp.ID, map[string]interface{}{
		"status":      models.ImportStatusFailed,
		"finished_at": finishedAt,
	}); err != nil {
		p.logger.Error("Failed to mark import as failed",
			zap.String("import_id", imp.ID.String()),
			zap.Error(err),
		)
	}
	imp.Status = models.ImportStatusFailed
	imp.FinishedAt = &finishedAt

	p.logger.Error("Import processing failed",
		zap.String("import_id", imp.ID.String()),
		zap.Error(cause),
		zap.String("type", "job_failed"),
	)
	p.publish(writeCtx, imp)
}

func (p *ImportProcessor) publish(ctx context.Context, imp *models.Import) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, NewProgressEvent(imp)); err != nil {
		p.logger.Warn("Failed to publish import progress",
			zap.String("import_id", imp.ID.String()),
			zap.Error(err),
		)
	}
}

func (p *ImportProcessor) notify(ctx context.Context, imp *models.Import) {
	for _, notifier := range p.notifiers {
		if err := notifier.NotifyCompletion(ctx, imp); err != nil {
			p.logger.Warn("Completion notification failed",
				zap.String("import_id", imp.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func partitionRows(rows []models.ImportRow, size int) [][]models.ImportRow {
	if len(rows) == 0 {
		return nil
	}
	batches := make([][]models.ImportRow, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, rows[start:end])
	}
	return batches
}
