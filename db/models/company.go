package models

import "time"

// Company is the payer registry keyed by CNPJ, refreshed on every import that mentions it.
type Company struct {
	CNPJ       string    `gorm:"primaryKey;size:14" json:"cnpj"`
	Name       string    `gorm:"size:255" json:"name"`
	Address    string    `gorm:"size:255" json:"address"`
	Number     string    `gorm:"size:10" json:"number"`
	District   string    `gorm:"size:100" json:"district"`
	State      string    `gorm:"size:2" json:"state"`
	PostalCode string    `gorm:"size:8" json:"postal_code"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
