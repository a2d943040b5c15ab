package controllers

import (
	"fmt"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ExportResultsCSV downloads the issued boletos of an import
func (ic *ImportController) ExportResultsCSV(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidImportID(c, err)
	}

	data, err := ic.ImportService.ResultsCSV(c.Context(), id)
	if err != nil {
		return ic.respondImportError(c, err, "Failed to generate results")
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="import-%s-results.csv"`, id))
	return c.Status(fiber.StatusOK).Send(data)
}

// ExportErrorsCSV downloads the rows that failed, header only when there are none
func (ic *ImportController) ExportErrorsCSV(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidImportID(c, err)
	}

	data, err := ic.ImportService.ErrorsCSV(c.Context(), id)
	if err != nil {
		return ic.respondImportError(c, err, "Failed to generate errors")
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="import-%s-errors.csv"`, id))
	return c.Status(fiber.StatusOK).Send(data)
}

// ExportErrorsXLSX downloads the failed rows as an Excel report
func (ic *ImportController) ExportErrorsXLSX(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidImportID(c, err)
	}

	path, err := ic.ImportService.ErrorsXLSX(c.Context(), id)
	if err != nil {
		return ic.respondImportError(c, err, "Failed to generate errors report")
	}

	return c.Download(path, fmt.Sprintf("import-%s-errors%s", id, filepath.Ext(path)))
}
