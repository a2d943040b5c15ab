package models

import (
	"time"

	"github.com/google/uuid"
)

type RowStatus string

const (
	RowStatusPending    RowStatus = "pending"
	RowStatusProcessing RowStatus = "processing"
	RowStatusSuccess    RowStatus = "success"
	RowStatusError      RowStatus = "error"
)

// ImportRow is one spreadsheet line of an Import. Amount is in cents.
type ImportRow struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	ImportID     uuid.UUID `gorm:"type:uuid;index:idx_import_rows_import_status,priority:1;not null" json:"import_id"`
	RowNumber    int       `gorm:"not null" json:"row_number"`
	Amount       int64     `gorm:"not null" json:"amount"`
	Name         string    `gorm:"size:255" json:"name"`
	Document     string    `gorm:"size:14" json:"document"`
	Phone        string    `gorm:"size:32" json:"phone"`
	Email        string    `gorm:"size:255" json:"email"`
	DueDate      string    `gorm:"size:10" json:"due_date"`
	Status       RowStatus `gorm:"type:varchar(20);default:'pending';index:idx_import_rows_import_status,priority:2" json:"status"`
	ErrorCode    *string   `gorm:"size:32" json:"error_code,omitempty"`
	ErrorMessage *string   `gorm:"type:text" json:"error_message,omitempty"`
	RetryCount   int       `gorm:"default:0" json:"retry_count"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Transaction *Transaction `gorm:"foreignKey:ImportRowID;constraint:OnDelete:CASCADE" json:"transaction,omitempty"`
}
