package controllers

import (
	"boleto-import-backend/utils/pagination"

	"github.com/gofiber/fiber/v2"
)

// ListImports returns a page of imports, optionally filtered by status and creation date
func (ic *ImportController) ListImports(c *fiber.Ctx) error {
	params := pagination.ParsePaginationParams(c)
	if err := pagination.ValidatePaginationParams(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid pagination parameters",
			"data":    nil,
			"error":   err.Error(),
		})
	}

	imports, total, err := ic.ImportService.ListImports(c.Context(), params)
	if err != nil {
		return ic.respondImportError(c, err, "Failed to list imports")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Imports retrieved successfully",
		"data":    pagination.NewPaginatedResponse(c, imports, total, params),
		"error":   nil,
	})
}
