package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"boleto-import-backend/db/models"
	"boleto-import-backend/imports/repositories"
	"boleto-import-backend/utils"
	"boleto-import-backend/utils/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrTooManyRows         = errors.New("file contains too many rows")
	ErrInvalidWebhookURL   = errors.New("webhookUrl must be an absolute http(s) URL")
	ErrInvalidNotifyEmail  = errors.New("notifyEmail is not a valid e-mail address")
	ErrMissingUploadedFile = errors.New("file is required")
	ErrInvalidListFilter   = errors.New("invalid list filter")
)

var (
	resultsCSVHeader = []string{"row_number", "name", "document", "amount", "boleto_url", "boleto_code", "transaction_id"}
	errorsCSVHeader  = []string{"row_number", "name", "document", "amount", "error_code", "error_message"}
)

// ImportValidationError rejects a whole upload and carries every invalid row
type ImportValidationError struct {
	Rows []*RowValidationError
}

func (e *ImportValidationError) Error() string {
	return fmt.Sprintf("file has %d invalid rows", len(e.Rows))
}

// Messages lists one "Row N: ..." line per invalid row
func (e *ImportValidationError) Messages() []string {
	messages := make([]string, len(e.Rows))
	for i, row := range e.Rows {
		messages[i] = row.Error()
	}
	return messages
}

// ImportDataStore is the persistence the intake and reporting paths need
type ImportDataStore interface {
	CreateImport(ctx context.Context, imp *models.Import, rows []models.ImportRow) error
	UpsertCompanies(ctx context.Context, companies []models.Company) error
	GetImport(ctx context.Context, id uuid.UUID) (*models.Import, error)
	ListImports(ctx context.Context, filter repositories.ImportListFilter, limit, offset int) ([]models.Import, int64, error)
	UpdateImport(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	FindRowsByStatus(ctx context.Context, importID uuid.UUID, status models.RowStatus, withTransaction bool) ([]models.ImportRow, error)
}

type ImportServiceConfig struct {
	MaxRows     int
	APIBaseURL  string
	ReportsDir  string
	TaskRetries int
	TaskTimeout time.Duration
}

type CreateImportInput struct {
	Filename    string
	Content     io.Reader
	WebhookURL  string
	NotifyEmail string
}

type CreateImportResult struct {
	ImportID uuid.UUID           `json:"importId"`
	Status   models.ImportStatus `json:"status"`
}

type ImportStats struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Success   int `json:"success"`
	Error     int `json:"error"`
}

type ImportLinks struct {
	Results string `json:"results"`
	Errors  string `json:"errors"`
}

type ImportStatusView struct {
	ID         uuid.UUID           `json:"id"`
	Status     models.ImportStatus `json:"status"`
	Filename   string              `json:"filename"`
	CreatedAt  time.Time           `json:"createdAt"`
	StartedAt  *time.Time          `json:"startedAt"`
	FinishedAt *time.Time          `json:"finishedAt"`
	Stats      ImportStats         `json:"stats"`
	Links      ImportLinks         `json:"links"`
}

type ImportService struct {
	store    ImportDataStore
	storage  utils.FileStorage
	enqueuer TaskEnqueuer
	cfg      ImportServiceConfig
	logger   *zap.Logger
}

func NewImportService(store ImportDataStore, storage utils.FileStorage, enqueuer TaskEnqueuer, cfg ImportServiceConfig, logger *zap.Logger) *ImportService {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 2000
	}
	return &ImportService{
		store:    store,
		storage:  storage,
		enqueuer: enqueuer,
		cfg:      cfg,
		logger:   logger,
	}
}

// CreateImport stores the upload, validates every row, persists the import with
// its pending rows and queues it for processing.
func (s *ImportService) CreateImport(ctx context.Context, input CreateImportInput) (*CreateImportResult, error) {
	if input.Content == nil || input.Filename == "" {
		return nil, ErrMissingUploadedFile
	}
	webhookURL, err := normalizeWebhookURL(input.WebhookURL)
	if err != nil {
		return nil, err
	}
	notifyEmail, err := normalizeNotifyEmail(input.NotifyEmail)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(input.Filename))
	if ext != ".csv" && ext != ".xlsx" {
		return nil, ErrUnsupportedFileFormat
	}

	storedName := uuid.NewString() + "_" + utils.CleanStringForFilename(strings.TrimSuffix(filepath.Base(input.Filename), filepath.Ext(input.Filename))) + ext
	stored, err := s.storage.UploadFileFromReader(input.Content, storedName)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	records, err := ParseFile(stored.Path)
	if err != nil {
		s.discardUpload(storedName)
		return nil, err
	}
	if len(records) == 0 {
		s.discardUpload(storedName)
		return nil, ErrEmptyFile
	}
	if len(records) > s.cfg.MaxRows {
		s.discardUpload(storedName)
		return nil, fmt.Errorf("%w: %d rows, maximum is %d", ErrTooManyRows, len(records), s.cfg.MaxRows)
	}

	normalized, err := validateRecords(records)
	if err != nil {
		s.discardUpload(storedName)
		return nil, err
	}

	imp := &models.Import{
		OwnerID:          "default",
		OriginalFilename: input.Filename,
		FileHash:         stored.Hash,
		Status:           models.ImportStatusQueued,
		TotalRows:        len(normalized),
		WebhookURL:       webhookURL,
		NotifyEmail:      notifyEmail,
	}
	rows := make([]models.ImportRow, len(normalized))
	companies := make([]models.Company, len(normalized))
	for i, n := range normalized {
		rows[i] = models.ImportRow{
			RowNumber: n.RowNumber,
			Amount:    n.Amount,
			Name:      n.Name,
			Document:  n.CNPJ,
			Phone:     n.Phone,
			Email:     n.Email,
			DueDate:   n.DueDate,
			Status:    models.RowStatusPending,
		}
		companies[i] = n.Company()
	}

	if err := s.store.CreateImport(ctx, imp, rows); err != nil {
		return nil, fmt.Errorf("persist import: %w", err)
	}
	if err := s.store.UpsertCompanies(ctx, companies); err != nil {
		// the payer registry is informational, the import itself is already stored
		s.logger.Warn("Failed to upsert companies",
			zap.String("import_id", imp.ID.String()),
			zap.Error(err),
		)
	}

	if err := s.enqueue(ctx, imp.ID); err != nil {
		s.markEnqueueFailure(imp.ID, err)
		return nil, err
	}

	s.logger.Info("Import queued",
		zap.String("import_id", imp.ID.String()),
		zap.String("filename", input.Filename),
		zap.Int("total_rows", imp.TotalRows),
		zap.String("file_hash", stored.Hash),
	)
	return &CreateImportResult{ImportID: imp.ID, Status: imp.Status}, nil
}

func (s *ImportService) enqueue(ctx context.Context, importID uuid.UUID) error {
	task, err := NewProcessImportTask(importID, s.cfg.TaskRetries, s.cfg.TaskTimeout)
	if err != nil {
		return err
	}
	info, err := s.enqueuer.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue import %s: %w", importID, err)
	}
	s.logger.Debug("Import task enqueued",
		zap.String("import_id", importID.String()),
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
	)
	return nil
}

func (s *ImportService) markEnqueueFailure(importID uuid.UUID, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), failureWriteTimeout)
	defer cancel()

	if err := s.store.UpdateImport(ctx, importID, map[string]interface{}{
		"status":      models.ImportStatusFailed,
		"finished_at": time.Now(),
	}); err != nil {
		s.logger.Error("Failed to mark unqueued import as failed",
			zap.String("import_id", importID.String()),
			zap.Error(err),
		)
	}
	s.logger.Error("Import could not be queued",
		zap.String("import_id", importID.String()),
		zap.Error(cause),
	)
}

func (s *ImportService) discardUpload(name string) {
	if err := s.storage.DeleteFile(name); err != nil {
		s.logger.Warn("Failed to delete rejected upload", zap.String("file", name), zap.Error(err))
	}
}

func (s *ImportService) GetImport(ctx context.Context, id uuid.UUID) (*models.Import, error) {
	return s.store.GetImport(ctx, id)
}

// GetImportStatus returns the status document with counters and report links
func (s *ImportService) GetImportStatus(ctx context.Context, id uuid.UUID) (*ImportStatusView, error) {
	imp, err := s.store.GetImport(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.statusView(imp), nil
}

// ListImports pages through imports newest first. Supported filters are
// status, start_date and end_date (YYYY-MM-DD, inclusive, on creation date).
func (s *ImportService) ListImports(ctx context.Context, params pagination.PaginationParams) ([]ImportStatusView, int64, error) {
	filter, err := parseListFilter(params.Filters)
	if err != nil {
		return nil, 0, err
	}

	imports, total, err := s.store.ListImports(ctx, filter, params.PageSize, params.Offset())
	if err != nil {
		return nil, 0, err
	}

	views := make([]ImportStatusView, len(imports))
	for i := range imports {
		views[i] = *s.statusView(&imports[i])
	}
	return views, total, nil
}

func parseListFilter(filters map[string]string) (repositories.ImportListFilter, error) {
	var filter repositories.ImportListFilter

	if status := filters["status"]; status != "" {
		switch models.ImportStatus(status) {
		case models.ImportStatusQueued, models.ImportStatusProcessing, models.ImportStatusCompleted, models.ImportStatusFailed:
			filter.Status = models.ImportStatus(status)
		default:
			return filter, fmt.Errorf("%w: unknown status %q", ErrInvalidListFilter, status)
		}
	}
	if start := filters["start_date"]; start != "" {
		from, err := time.Parse("2006-01-02", start)
		if err != nil {
			return filter, fmt.Errorf("%w: start_date must be YYYY-MM-DD", ErrInvalidListFilter)
		}
		filter.CreatedFrom = from
	}
	if end := filters["end_date"]; end != "" {
		to, err := time.Parse("2006-01-02", end)
		if err != nil {
			return filter, fmt.Errorf("%w: end_date must be YYYY-MM-DD", ErrInvalidListFilter)
		}
		filter.CreatedBefore = to.AddDate(0, 0, 1)
	}
	return filter, nil
}

func (s *ImportService) statusView(imp *models.Import) *ImportStatusView {
	base := fmt.Sprintf("%s/v1/imports/%s", s.cfg.APIBaseURL, imp.ID)
	return &ImportStatusView{
		ID:         imp.ID,
		Status:     imp.Status,
		Filename:   imp.OriginalFilename,
		CreatedAt:  imp.CreatedAt,
		StartedAt:  imp.StartedAt,
		FinishedAt: imp.FinishedAt,
		Stats: ImportStats{
			Total:     imp.TotalRows,
			Processed: imp.ProcessedRows,
			Success:   imp.SuccessRows,
			Error:     imp.ErrorRows,
		},
		Links: ImportLinks{
			Results: base + "/results.csv",
			Errors:  base + "/errors.csv",
		},
	}
}

// GetProgress snapshots the counters in the same shape the processor publishes
func (s *ImportService) GetProgress(ctx context.Context, id uuid.UUID) (ProgressEvent, error) {
	imp, err := s.store.GetImport(ctx, id)
	if err != nil {
		return ProgressEvent{}, err
	}
	return NewProgressEvent(imp), nil
}

// ResultsCSV lists the issued boletos of an import
func (s *ImportService) ResultsCSV(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if _, err := s.store.GetImport(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.store.FindRowsByStatus(ctx, id, models.RowStatusSuccess, true)
	if err != nil {
		return nil, fmt.Errorf("load success rows: %w", err)
	}

	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		var boletoURL, boletoCode, transactionID string
		if row.Transaction != nil {
			boletoURL = row.Transaction.BoletoURL
			boletoCode = row.Transaction.BoletoCode
			transactionID = row.Transaction.IDTransaction
		}
		records = append(records, []string{
			strconv.Itoa(row.RowNumber),
			row.Name,
			row.Document,
			MajorUnits(row.Amount),
			boletoURL,
			boletoCode,
			transactionID,
		})
	}
	return writeCSV(resultsCSVHeader, records)
}

// ErrorsCSV lists the rows that ended in error. The header is written even when there are none.
func (s *ImportService) ErrorsCSV(ctx context.Context, id uuid.UUID) ([]byte, error) {
	rows, err := s.errorRows(ctx, id)
	if err != nil {
		return nil, err
	}

	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{
			strconv.Itoa(row.RowNumber),
			row.Name,
			row.Document,
			MajorUnits(row.Amount),
			derefString(row.ErrorCode),
			derefString(row.ErrorMessage),
		})
	}
	return writeCSV(errorsCSVHeader, records)
}

// ErrorsXLSX writes the error rows to a workbook in the reports directory and returns its path
func (s *ImportService) ErrorsXLSX(ctx context.Context, id uuid.UUID) (string, error) {
	rows, err := s.errorRows(ctx, id)
	if err != nil {
		return "", err
	}

	values := make([][]interface{}, 0, len(rows))
	for _, row := range rows {
		amount, _ := decimal.New(row.Amount, -2).Float64()
		values = append(values, []interface{}{
			row.RowNumber,
			row.Name,
			row.Document,
			amount,
			derefString(row.ErrorCode),
			derefString(row.ErrorMessage),
		})
	}

	path, err := utils.GenerateExcel(s.cfg.ReportsDir, "import_"+id.String()+"_errors", errorsCSVHeader, values)
	if err != nil {
		return "", fmt.Errorf("generate errors report: %w", err)
	}
	return path, nil
}

func (s *ImportService) errorRows(ctx context.Context, id uuid.UUID) ([]models.ImportRow, error) {
	if _, err := s.store.GetImport(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.store.FindRowsByStatus(ctx, id, models.RowStatusError, false)
	if err != nil {
		return nil, fmt.Errorf("load error rows: %w", err)
	}
	return rows, nil
}

// validateRecords numbers records from 1 and collects every invalid row
func validateRecords(records []RawRecord) ([]NormalizedRow, error) {
	normalized := make([]NormalizedRow, 0, len(records))
	var invalid []*RowValidationError
	for i, record := range records {
		row, err := ValidateRow(record, i+1)
		if err != nil {
			var rowErr *RowValidationError
			if errors.As(err, &rowErr) {
				invalid = append(invalid, rowErr)
				continue
			}
			return nil, err
		}
		normalized = append(normalized, row)
	}
	if len(invalid) > 0 {
		return nil, &ImportValidationError{Rows: invalid}
	}
	return normalized, nil
}

func normalizeWebhookURL(raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidWebhookURL
	}
	return &raw, nil
}

func normalizeNotifyEmail(raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return nil, ErrInvalidNotifyEmail
	}
	return &addr.Address, nil
}

// MajorUnits renders cents as a plain decimal without trailing zeros, 1550 -> "15.5"
func MajorUnits(cents int64) string {
	return decimal.New(cents, -2).String()
}

func writeCSV(header []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
