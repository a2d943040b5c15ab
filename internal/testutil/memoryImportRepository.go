// memoryImportRepository.go - in-memory ImportRepository for tests
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"boleto-import-backend/db/models"
	"boleto-import-backend/imports/repositories"

	"github.com/google/uuid"
)

// MemoryImportRepository implements repositories.ImportRepository over maps
type MemoryImportRepository struct {
	mu           sync.Mutex
	imports      map[uuid.UUID]*models.Import
	rows         map[uuid.UUID]*models.ImportRow
	transactions map[uuid.UUID]*models.Transaction // keyed by row id
	companies    map[string]models.Company

	// FailUpdateRow makes UpdateRowStatus fail for the given status
	FailUpdateRow map[models.RowStatus]error
	// ImportUpdates records every UpdateImport field set, in call order
	ImportUpdates []map[string]interface{}
}

var _ repositories.ImportRepository = (*MemoryImportRepository)(nil)

func NewMemoryImportRepository() *MemoryImportRepository {
	return &MemoryImportRepository{
		imports:       make(map[uuid.UUID]*models.Import),
		rows:          make(map[uuid.UUID]*models.ImportRow),
		transactions:  make(map[uuid.UUID]*models.Transaction),
		companies:     make(map[string]models.Company),
		FailUpdateRow: make(map[models.RowStatus]error),
	}
}

// SeedImport stores an import with pending rows built from the given amounts
func (m *MemoryImportRepository) SeedImport(webhookURL *string, amounts ...int64) *models.Import {
	imp := &models.Import{
		OriginalFilename: "seed.csv",
		Status:           models.ImportStatusQueued,
		TotalRows:        len(amounts),
		WebhookURL:       webhookURL,
	}
	rows := make([]models.ImportRow, len(amounts))
	for i, amount := range amounts {
		rows[i] = models.ImportRow{
			RowNumber: i + 1,
			Amount:    amount,
			Name:      fmt.Sprintf("Empresa %d", i+1),
			Document:  "11222333000181",
			DueDate:   "2024-12-31",
		}
	}
	_ = m.CreateImport(context.Background(), imp, rows)
	return imp
}

func (m *MemoryImportRepository) CreateImport(ctx context.Context, imp *models.Import, rows []models.ImportRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if imp.ID == uuid.Nil {
		imp.ID = uuid.New()
	}
	if imp.Status == "" {
		imp.Status = models.ImportStatusQueued
	}
	now := time.Now()
	imp.CreatedAt, imp.UpdatedAt = now, now

	stored := *imp
	stored.Rows = nil
	m.imports[imp.ID] = &stored

	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
		rows[i].ImportID = imp.ID
		if rows[i].Status == "" {
			rows[i].Status = models.RowStatusPending
		}
		row := rows[i]
		m.rows[row.ID] = &row
	}
	return nil
}

func (m *MemoryImportRepository) UpsertCompanies(ctx context.Context, companies []models.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range companies {
		m.companies[c.CNPJ] = c
	}
	return nil
}

func (m *MemoryImportRepository) Companies() map[string]models.Company {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Company, len(m.companies))
	for k, v := range m.companies {
		out[k] = v
	}
	return out
}

func (m *MemoryImportRepository) GetImport(ctx context.Context, id uuid.UUID) (*models.Import, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	imp, ok := m.imports[id]
	if !ok {
		return nil, repositories.ErrImportNotFound
	}
	copied := *imp
	return &copied, nil
}

func (m *MemoryImportRepository) ListImports(ctx context.Context, filter repositories.ImportListFilter, limit, offset int) ([]models.Import, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []models.Import
	for _, imp := range m.imports {
		if filter.Status != "" && imp.Status != filter.Status {
			continue
		}
		if !filter.CreatedFrom.IsZero() && imp.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedBefore.IsZero() && !imp.CreatedAt.Before(filter.CreatedBefore) {
			continue
		}
		matched = append(matched, *imp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	if offset >= len(matched) {
		return []models.Import{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (m *MemoryImportRepository) UpdateImport(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	imp, ok := m.imports[id]
	if !ok {
		return repositories.ErrImportNotFound
	}

	recorded := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		recorded[key] = value
		switch key {
		case "status":
			imp.Status = models.ImportStatus(fmt.Sprint(value))
		case "processed_rows":
			imp.ProcessedRows = value.(int)
		case "success_rows":
			imp.SuccessRows = value.(int)
		case "error_rows":
			imp.ErrorRows = value.(int)
		case "started_at":
			t := value.(time.Time)
			imp.StartedAt = &t
		case "finished_at":
			t := value.(time.Time)
			imp.FinishedAt = &t
		default:
			return fmt.Errorf("unsupported import field %q", key)
		}
	}
	imp.UpdatedAt = time.Now()
	m.ImportUpdates = append(m.ImportUpdates, recorded)
	return nil
}

func (m *MemoryImportRepository) FindPendingRows(ctx context.Context, importID uuid.UUID) ([]models.ImportRow, error) {
	return m.FindRowsByStatus(ctx, importID, models.RowStatusPending, false)
}

func (m *MemoryImportRepository) FindRowsByStatus(ctx context.Context, importID uuid.UUID, status models.RowStatus, withTransaction bool) ([]models.ImportRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []models.ImportRow
	for _, row := range m.rows {
		if row.ImportID != importID || row.Status != status {
			continue
		}
		copied := *row
		copied.Transaction = nil
		if withTransaction {
			if tx, ok := m.transactions[row.ID]; ok {
				txCopy := *tx
				copied.Transaction = &txCopy
			}
		}
		rows = append(rows, copied)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].RowNumber < rows[j].RowNumber })
	return rows, nil
}

func (m *MemoryImportRepository) UpdateRowStatus(ctx context.Context, rowID uuid.UUID, status models.RowStatus, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.FailUpdateRow[status]; err != nil {
		return err
	}
	row, ok := m.rows[rowID]
	if !ok {
		return fmt.Errorf("import row %s not found", rowID)
	}

	row.Status = status
	for key, value := range fields {
		switch key {
		case "retry_count":
			row.RetryCount = value.(int)
		case "error_code":
			code := value.(string)
			row.ErrorCode = &code
		case "error_message":
			message := value.(string)
			row.ErrorMessage = &message
		default:
			return fmt.Errorf("unsupported row field %q", key)
		}
	}
	row.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryImportRepository) CountRowsByStatus(ctx context.Context, importID uuid.UUID, status models.RowStatus) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, row := range m.rows {
		if row.ImportID == importID && row.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *MemoryImportRepository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transactions[tx.ImportRowID]; exists {
		return fmt.Errorf("transaction for row %s already exists", tx.ImportRowID)
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	tx.CreatedAt = time.Now()
	copied := *tx
	m.transactions[tx.ImportRowID] = &copied
	return nil
}

// Row returns a copy of a stored row
func (m *MemoryImportRepository) Row(id uuid.UUID) models.ImportRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

// Rows returns every row of an import ordered by row number
func (m *MemoryImportRepository) Rows(importID uuid.UUID) []models.ImportRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.ImportRow
	for _, row := range m.rows {
		if row.ImportID == importID {
			rows = append(rows, *row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].RowNumber < rows[j].RowNumber })
	return rows
}

// SetCreatedAt backdates an import so listing order is deterministic
func (m *MemoryImportRepository) SetCreatedAt(id uuid.UUID, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imports[id].CreatedAt = createdAt
}

func (m *MemoryImportRepository) TransactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}
