package controllers

import (
	"boleto-import-backend/imports/services"

	"github.com/gofiber/fiber/v2"
)

// CreateImport accepts a multipart upload (field "file") with optional
// webhookUrl and notifyEmail fields and queues it for processing.
func (ic *ImportController) CreateImport(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Failed to get file",
			"data":    nil,
			"error":   services.ErrMissingUploadedFile.Error(),
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return ic.respondImportError(c, err, "Failed to open uploaded file")
	}
	defer file.Close()

	result, err := ic.ImportService.CreateImport(c.Context(), services.CreateImportInput{
		Filename:    fileHeader.Filename,
		Content:     file,
		WebhookURL:  c.FormValue("webhookUrl"),
		NotifyEmail: c.FormValue("notifyEmail"),
	})
	if err != nil {
		return ic.respondImportError(c, err, "Failed to create import")
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Import queued",
		"data":    result,
		"error":   nil,
	})
}
