package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is the issued boleto for exactly one ImportRow. It is never updated.
type Transaction struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key;" json:"id"`
	ImportRowID   uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"import_row_id"`
	IDTransaction string    `gorm:"size:255" json:"id_transaction"`
	BoletoURL     string    `gorm:"type:text" json:"boleto_url"`
	BoletoCode    string    `gorm:"size:255" json:"boleto_code"`
	PDF           string    `gorm:"type:text" json:"pdf"`
	DueDate       string    `gorm:"size:32" json:"due_date"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
