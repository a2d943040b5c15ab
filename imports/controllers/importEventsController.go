package controllers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"boleto-import-backend/imports/services"
	"boleto-import-backend/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// eventsPollInterval matches the one second refresh clients of the events stream expect
const eventsPollInterval = time.Second

// ImportEvents streams progress as Server-Sent Events until the import finishes
func (ic *ImportController) ImportEvents(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidImportID(c, err)
	}

	// fail fast with a JSON 404 before switching to the event stream
	if _, err := ic.ImportService.GetProgress(c.Context(), id); err != nil {
		return ic.respondImportError(c, err, "Failed to load import")
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	service := ic.ImportService
	hub := ic.Hub
	logger := ic.Logger

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		snapshot := func(ctx context.Context) (services.ProgressEvent, error) {
			return service.GetProgress(ctx, id)
		}
		emit := func(event services.ProgressEvent) error {
			data, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return err
			}
			return w.Flush()
		}

		if err := websocket.StreamProgress(ctx, hub, id.String(), snapshot, emit, eventsPollInterval); err != nil {
			logger.Debug("Import event stream ended", zap.String("import_id", id.String()), zap.Error(err))
		}
	})

	return nil
}
