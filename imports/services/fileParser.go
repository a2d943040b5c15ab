package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrUnsupportedFileFormat = errors.New("unsupported file format, use .csv or .xlsx")
	ErrEmptyFile             = errors.New("file has no data rows")
	ErrMalformedFile         = errors.New("file could not be read")
)

// amountColumn keeps its numeric XLSX value instead of the formatted text
const amountColumn = "valor"

// ParseFile reads a CSV or XLSX upload into raw records, one per data row
func ParseFile(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ParseCSV(f)
	case ".xlsx":
		return ParseXLSX(f)
	default:
		return nil, ErrUnsupportedFileFormat
	}
}

// ParseCSV reads a comma separated file whose first line is the header
func ParseCSV(r io.Reader) ([]RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	lines, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read csv: %w", ErrMalformedFile, err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyFile
	}

	header := normalizeHeader(lines[0])
	records := make([]RawRecord, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if isBlankLine(line) {
			continue
		}
		record := make(RawRecord, len(header))
		for i, key := range header {
			if key == "" || i >= len(line) {
				continue
			}
			record[key] = strings.TrimSpace(line[i])
		}
		records = append(records, record)
	}

	return records, nil
}

// ParseXLSX reads the first sheet of a workbook whose first row is the header
func ParseXLSX(r io.Reader) ([]RawRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open xlsx: %w", ErrMalformedFile, err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("%w: read rows from sheet %q: %w", ErrMalformedFile, sheetName, err)
	}
	rawRows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read raw rows from sheet %q: %w", ErrMalformedFile, sheetName, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	header := normalizeHeader(rows[0])
	records := make([]RawRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isBlankLine(row) {
			continue
		}
		var raw []string
		if i+1 < len(rawRows) {
			raw = rawRows[i+1]
		}

		record := make(RawRecord, len(header))
		for col, key := range header {
			if key == "" || col >= len(row) {
				continue
			}
			record[key] = strings.TrimSpace(row[col])
			if key == amountColumn && col < len(raw) {
				if n, err := strconv.ParseFloat(strings.TrimSpace(raw[col]), 64); err == nil {
					record[key] = n
				}
			}
		}
		records = append(records, record)
	}

	return records, nil
}

func normalizeHeader(cells []string) []string {
	header := make([]string, len(cells))
	for i, cell := range cells {
		cell = strings.TrimPrefix(cell, "\ufeff")
		header[i] = strings.ToLower(strings.TrimSpace(cell))
	}
	return header
}

func isBlankLine(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
