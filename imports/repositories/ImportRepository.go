package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boleto-import-backend/db/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrImportNotFound = errors.New("import not found")

// ImportListFilter narrows ListImports. Zero values match everything.
type ImportListFilter struct {
	Status        models.ImportStatus
	CreatedFrom   time.Time
	CreatedBefore time.Time
}

// rowInsertBatchSize keeps multi-row INSERTs under the Postgres parameter limit
const rowInsertBatchSize = 500

type ImportRepository interface {
	CreateImport(ctx context.Context, imp *models.Import, rows []models.ImportRow) error
	UpsertCompanies(ctx context.Context, companies []models.Company) error
	GetImport(ctx context.Context, id uuid.UUID) (*models.Import, error)
	ListImports(ctx context.Context, filter ImportListFilter, limit, offset int) ([]models.Import, int64, error)
	UpdateImport(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	FindPendingRows(ctx context.Context, importID uuid.UUID) ([]models.ImportRow, error)
	FindRowsByStatus(ctx context.Context, importID uuid.UUID, status models.RowStatus, withTransaction bool) ([]models.ImportRow, error)
	UpdateRowStatus(ctx context.Context, rowID uuid.UUID, status models.RowStatus, fields map[string]interface{}) error
	CountRowsByStatus(ctx context.Context, importID uuid.UUID, status models.RowStatus) (int, error)
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
}

type importRepository struct {
	db *gorm.DB
}

func NewImportRepository(db *gorm.DB) ImportRepository {
	return &importRepository{
		db: db,
	}
}

// CreateImport stores the import and all of its rows in one database transaction
func (r *importRepository) CreateImport(ctx context.Context, imp *models.Import, rows []models.ImportRow) error {
	if imp.ID == uuid.Nil {
		imp.ID = uuid.New()
	}
	for i := range rows {
		if rows[i].ID == uuid.Nil {
			rows[i].ID = uuid.New()
		}
		rows[i].ImportID = imp.ID
		if rows[i].Status == "" {
			rows[i].Status = models.RowStatusPending
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(imp).Error; err != nil {
			return fmt.Errorf("create import: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Omit(clause.Associations).CreateInBatches(rows, rowInsertBatchSize).Error; err != nil {
			return fmt.Errorf("create import rows: %w", err)
		}
		return nil
	})
}

// UpsertCompanies inserts new payers and refreshes the ones already known by CNPJ
func (r *importRepository) UpsertCompanies(ctx context.Context, companies []models.Company) error {
	unique := dedupeCompanies(companies)
	if len(unique) == 0 {
		return nil
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cnpj"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "address", "number", "district", "state", "postal_code", "updated_at"}),
	}).Create(&unique).Error
	if err != nil {
		return fmt.Errorf("upsert companies: %w", err)
	}
	return nil
}

func (r *importRepository) GetImport(ctx context.Context, id uuid.UUID) (*models.Import, error) {
	var imp models.Import
	err := r.db.WithContext(ctx).First(&imp, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrImportNotFound
		}
		return nil, err
	}
	return &imp, nil
}

// ListImports returns one page of imports, newest first, with the total matching count
func (r *importRepository) ListImports(ctx context.Context, filter ImportListFilter, limit, offset int) ([]models.Import, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Import{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if !filter.CreatedFrom.IsZero() {
		query = query.Where("created_at >= ?", filter.CreatedFrom)
	}
	if !filter.CreatedBefore.IsZero() {
		query = query.Where("created_at < ?", filter.CreatedBefore)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count imports: %w", err)
	}

	var imports []models.Import
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&imports).Error; err != nil {
		return nil, 0, fmt.Errorf("list imports: %w", err)
	}
	return imports, total, nil
}

func (r *importRepository) UpdateImport(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Import{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrImportNotFound
	}
	return nil
}

func (r *importRepository) FindPendingRows(ctx context.Context, importID uuid.UUID) ([]models.ImportRow, error) {
	return r.FindRowsByStatus(ctx, importID, models.RowStatusPending, false)
}

func (r *importRepository) FindRowsByStatus(ctx context.Context, importID uuid.UUID, status models.RowStatus, withTransaction bool) ([]models.ImportRow, error) {
	query := r.db.WithContext(ctx).
		Where("import_id = ? AND status = ?", importID, status).
		Order("row_number ASC")
	if withTransaction {
		query = query.Preload("Transaction")
	}

	var rows []models.ImportRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *importRepository) UpdateRowStatus(ctx context.Context, rowID uuid.UUID, status models.RowStatus, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = status

	result := r.db.WithContext(ctx).Model(&models.ImportRow{}).Where("id = ?", rowID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("import row %s not found", rowID)
	}
	return nil
}

func (r *importRepository) CountRowsByStatus(ctx context.Context, importID uuid.UUID, status models.RowStatus) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ImportRow{}).
		Where("import_id = ? AND status = ?", importID, status).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *importRepository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(tx).Error
}

// dedupeCompanies keeps the last entry per CNPJ, in first-seen order.
// Postgres rejects an ON CONFLICT batch that touches the same key twice.
func dedupeCompanies(companies []models.Company) []models.Company {
	index := make(map[string]int, len(companies))
	unique := make([]models.Company, 0, len(companies))
	for _, c := range companies {
		if i, ok := index[c.CNPJ]; ok {
			unique[i] = c
			continue
		}
		index[c.CNPJ] = len(unique)
		unique = append(unique, c)
	}
	return unique
}
