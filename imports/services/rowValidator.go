package services

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"boleto-import-backend/db/models"

	"github.com/shopspring/decimal"
)

// RawRecord is one spreadsheet line keyed by lower-cased column name. Values are
// strings for CSV cells and may be float64 for numeric XLSX cells.
type RawRecord map[string]interface{}

// NormalizedRow is a validated spreadsheet line ready to become an ImportRow
type NormalizedRow struct {
	RowNumber  int
	Name       string
	CNPJ       string
	Address    string
	Number     string
	District   string
	State      string
	PostalCode string
	Amount     int64 // cents
	DueDate    string
	Phone      string
	Email      string
}

// RowValidationError lists every problem found on a single row
type RowValidationError struct {
	RowNumber int
	Problems  []string
}

func (e *RowValidationError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.RowNumber, strings.Join(e.Problems, ", "))
}

var (
	stateRegex      = regexp.MustCompile(`^[A-Z]{2}$`)
	nonDigitRegex   = regexp.MustCompile(`\D`)
	amountJunkRegex = regexp.MustCompile(`[^\d.,]`)
	amountNumRegex  = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)`)
	isoDateRegex    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	brDateRegex     = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)

	cnpjWeights1 = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}

	majorUnitCeiling = decimal.NewFromInt(100)
	half             = decimal.New(5, -1)
)

// ValidateRow validates a raw spreadsheet record and normalizes it.
// Malformed input yields a *RowValidationError, never a panic.
func ValidateRow(record RawRecord, rowNumber int) (NormalizedRow, error) {
	var problems []string

	name := textValue(record.get("nome"))
	if name == "" {
		problems = append(problems, "name is required")
	}

	cnpj, ok := NormalizeCNPJ(record.get("cnpj"))
	if !ok {
		problems = append(problems, "invalid CNPJ")
	}

	address := textValue(record.get("endereco"))
	if address == "" {
		problems = append(problems, "address is required")
	}

	number := textValue(record.get("numero"))
	if number == "" {
		problems = append(problems, "number is required")
	}

	district := textValue(record.get("bairro"))
	if district == "" {
		problems = append(problems, "district is required")
	}

	state := strings.ToUpper(textValue(record.get("estado")))
	if !stateRegex.MatchString(state) {
		problems = append(problems, "state must have 2 letters (UF)")
	}

	postalCode, ok := NormalizePostalCode(record.get("cep"))
	if !ok {
		problems = append(problems, "invalid CEP")
	}

	amount, ok := ParseAmount(record.get("valor"))
	if !ok {
		problems = append(problems, "invalid amount")
	}

	dueDate, ok := ParseDueDate(record.get("vencimento"))
	if !ok {
		problems = append(problems, "invalid due date")
	}

	if len(problems) > 0 {
		return NormalizedRow{}, &RowValidationError{RowNumber: rowNumber, Problems: problems}
	}

	return NormalizedRow{
		RowNumber:  rowNumber,
		Name:       name,
		CNPJ:       cnpj,
		Address:    address,
		Number:     number,
		District:   district,
		State:      state,
		PostalCode: postalCode,
		Amount:     amount,
		DueDate:    dueDate,
		Phone:      textValue(record.get("telefone")),
		Email:      textValue(record.get("email")),
	}, nil
}

// Company returns the payer registry entry described by the row
func (r NormalizedRow) Company() models.Company {
	return models.Company{
		CNPJ:       r.CNPJ,
		Name:       r.Name,
		Address:    r.Address,
		Number:     r.Number,
		District:   r.District,
		State:      r.State,
		PostalCode: r.PostalCode,
	}
}

// NormalizeCNPJ strips formatting and checks length and check digits
func NormalizeCNPJ(value interface{}) (string, bool) {
	digits := nonDigitRegex.ReplaceAllString(textValue(value), "")
	if !IsValidCNPJ(digits) {
		return "", false
	}
	return digits, true
}

// IsValidCNPJ runs the mod-11 check over a 14 digit string. Repeated-digit
// strings are rejected even though some of them pass the arithmetic.
func IsValidCNPJ(cnpj string) bool {
	if len(cnpj) != 14 {
		return false
	}
	for i := 0; i < len(cnpj); i++ {
		if cnpj[i] < '0' || cnpj[i] > '9' {
			return false
		}
	}
	if strings.Count(cnpj, cnpj[:1]) == len(cnpj) {
		return false
	}

	if cnpjCheckDigit(cnpj[:12], cnpjWeights1) != int(cnpj[12]-'0') {
		return false
	}
	return cnpjCheckDigit(cnpj[:13], cnpjWeights2) == int(cnpj[13]-'0')
}

func cnpjCheckDigit(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	remainder := sum % 11
	if remainder < 2 {
		return 0
	}
	return 11 - remainder
}

// NormalizePostalCode keeps the digits of a CEP and requires exactly 8 of them
func NormalizePostalCode(value interface{}) (string, bool) {
	digits := nonDigitRegex.ReplaceAllString(textValue(value), "")
	if len(digits) != 8 {
		return "", false
	}
	return digits, true
}

// ParseAmount converts a spreadsheet amount into cents. Values below 100 are
// whole currency units; 100 and above are taken as cents already.
func ParseAmount(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return amountToCents(decimal.NewFromFloat(v)), true
	case float32:
		return ParseAmount(float64(v))
	case int:
		return amountToCents(decimal.NewFromInt(int64(v))), true
	case int64:
		return amountToCents(decimal.NewFromInt(v)), true
	case decimal.Decimal:
		return amountToCents(v), true
	case string:
		cleaned := amountJunkRegex.ReplaceAllString(v, "")
		normalized := strings.Replace(cleaned, ",", ".", 1)
		match := amountNumRegex.FindString(normalized)
		if match == "" {
			return 0, false
		}
		if strings.HasPrefix(match, ".") {
			match = "0" + match
		}
		parsed, err := decimal.NewFromString(strings.TrimSuffix(match, "."))
		if err != nil {
			return 0, false
		}
		return amountToCents(parsed), true
	default:
		return 0, false
	}
}

func amountToCents(v decimal.Decimal) int64 {
	if v.LessThan(majorUnitCeiling) {
		v = v.Mul(majorUnitCeiling)
	}
	// half rounds up, toward positive infinity
	return v.Add(half).Floor().IntPart()
}

// ParseDueDate accepts YYYY-MM-DD as is, or D/M/YYYY converted to ISO
func ParseDueDate(value interface{}) (string, bool) {
	s := textValue(value)
	if s == "" {
		return "", false
	}

	if isoDateRegex.MatchString(s) {
		return s, true
	}

	if brDateRegex.MatchString(s) {
		parts := strings.Split(s, "/")
		return parts[2] + "-" + padTwo(parts[1]) + "-" + padTwo(parts[0]), true
	}

	return "", false
}

func padTwo(s string) string {
	if len(s) < 2 {
		return "0" + s
	}
	return s
}

func (r RawRecord) get(key string) interface{} {
	if v, ok := r[key]; ok {
		return v
	}
	for k, v := range r {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return v
		}
	}
	return nil
}

func textValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
