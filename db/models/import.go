package models

import (
	"time"

	"github.com/google/uuid"
)

type ImportStatus string

const (
	ImportStatusQueued     ImportStatus = "queued"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

// IsTerminal reports whether no further transitions can happen
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed
}

// Import is one uploaded spreadsheet. Counters satisfy processed = success + error <= total.
type Import struct {
	ID               uuid.UUID    `gorm:"type:uuid;primary_key;" json:"id"`
	OwnerID          string       `gorm:"size:255;default:'default'" json:"owner_id"`
	OriginalFilename string       `gorm:"size:255" json:"original_filename"`
	FileHash         string       `gorm:"size:64" json:"file_hash"`
	Status           ImportStatus `gorm:"type:varchar(20);default:'queued';index" json:"status"`
	TotalRows        int          `gorm:"default:0" json:"total_rows"`
	ProcessedRows    int          `gorm:"default:0" json:"processed_rows"`
	SuccessRows      int          `gorm:"default:0" json:"success_rows"`
	ErrorRows        int          `gorm:"default:0" json:"error_rows"`
	WebhookURL       *string      `gorm:"type:text" json:"webhook_url,omitempty"`
	NotifyEmail      *string      `gorm:"size:255" json:"notify_email,omitempty"`
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
	StartedAt        *time.Time   `json:"started_at,omitempty"`
	FinishedAt       *time.Time   `json:"finished_at,omitempty"`

	Rows []ImportRow `gorm:"foreignKey:ImportID;constraint:OnDelete:CASCADE" json:"-"`
}
