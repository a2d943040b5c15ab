package routes

import (
	"boleto-import-backend/imports/controllers"
	"boleto-import-backend/imports/services"
	"boleto-import-backend/websocket"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func ImportRouterInit(
	app *fiber.App,
	importService *services.ImportService,
	hub *websocket.Hub,
	logger *zap.Logger,
) {
	importController := &controllers.ImportController{
		ImportService: importService,
		Hub:           hub,
		Logger:        logger,
	}

	importRoutes := app.Group("/v1/imports")
	importRoutes.Post("/", importController.CreateImport)
	importRoutes.Get("/", importController.ListImports)
	importRoutes.Get("/:id", importController.GetImportStatus)
	importRoutes.Get("/:id/events", importController.ImportEvents)
	importRoutes.Get("/:id/results.csv", importController.ExportResultsCSV)
	importRoutes.Get("/:id/errors.csv", importController.ExportErrorsCSV)
	importRoutes.Get("/:id/errors.xlsx", importController.ExportErrorsXLSX)

	wsHandler := websocket.NewWsHandler(hub, importService, logger)
	app.Get("/ws/imports/:id", wsHandler.HandleImportProgress)
}
