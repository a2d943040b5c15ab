package repositories

import (
	"testing"

	"boleto-import-backend/db/models"

	"github.com/stretchr/testify/assert"
)

func TestDedupeCompanies(t *testing.T) {
	unique := dedupeCompanies([]models.Company{
		{CNPJ: "11222333000181", Name: "A"},
		{CNPJ: "11444777000161", Name: "B"},
		{CNPJ: "11222333000181", Name: "A2"},
	})

	assert.Equal(t, []models.Company{
		{CNPJ: "11222333000181", Name: "A2"},
		{CNPJ: "11444777000161", Name: "B"},
	}, unique)
	assert.Empty(t, dedupeCompanies(nil))
}
