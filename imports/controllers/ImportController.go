package controllers

import (
	"errors"

	"boleto-import-backend/imports/repositories"
	"boleto-import-backend/imports/services"
	"boleto-import-backend/websocket"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type ImportController struct {
	ImportService *services.ImportService
	Hub           *websocket.Hub
	Logger        *zap.Logger
}

func invalidImportID(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid import id",
		"data":    nil,
		"error":   err.Error(),
	})
}

// respondImportError maps service errors to the response envelope
func (ic *ImportController) respondImportError(c *fiber.Ctx, err error, message string) error {
	var validationErr *services.ImportValidationError
	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": "File contains invalid rows",
			"data":    nil,
			"error":   validationErr.Error(),
			"errors":  validationErr.Messages(),
		})

	case errors.Is(err, repositories.ErrImportNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Import not found",
			"data":    nil,
			"error":   err.Error(),
		})

	case errors.Is(err, services.ErrTooManyRows),
		errors.Is(err, services.ErrUnsupportedFileFormat),
		errors.Is(err, services.ErrEmptyFile),
		errors.Is(err, services.ErrMalformedFile),
		errors.Is(err, services.ErrInvalidWebhookURL),
		errors.Is(err, services.ErrInvalidNotifyEmail),
		errors.Is(err, services.ErrMissingUploadedFile),
		errors.Is(err, services.ErrInvalidListFilter):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": message,
			"data":    nil,
			"error":   err.Error(),
		})
	}

	ic.Logger.Error(message, zap.Error(err), zap.String("path", c.Path()))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"message": message,
		"data":    nil,
		"error":   err.Error(),
	})
}
