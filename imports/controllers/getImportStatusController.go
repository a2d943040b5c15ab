package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func (ic *ImportController) GetImportStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidImportID(c, err)
	}

	status, err := ic.ImportService.GetImportStatus(c.Context(), id)
	if err != nil {
		return ic.respondImportError(c, err, "Failed to load import")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Import retrieved successfully",
		"data":    status,
		"error":   nil,
	})
}
