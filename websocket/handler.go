// websocket/handler.go
package websocket

import (
	"context"
	"errors"
	"time"

	"boleto-import-backend/imports/repositories"
	"boleto-import-backend/imports/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	pollInterval = 2 * time.Second
)

// ProgressReader loads the current progress of an import
type ProgressReader interface {
	GetProgress(ctx context.Context, id uuid.UUID) (services.ProgressEvent, error)
}

// WsHandler streams import progress over WebSocket connections
type WsHandler struct {
	hub    *Hub
	reader ProgressReader
	logger *zap.Logger
}

func NewWsHandler(hub *Hub, reader ProgressReader, logger *zap.Logger) *WsHandler {
	return &WsHandler{
		hub:    hub,
		reader: reader,
		logger: logger,
	}
}

// HandleImportProgress upgrades GET /ws/imports/:id and streams its progress events
func (h *WsHandler) HandleImportProgress(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	importID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid import id",
			"error":   err.Error(),
		})
	}

	if _, err := h.reader.GetProgress(c.Context(), importID); err != nil {
		if errors.Is(err, repositories.ErrImportNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "Import not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to load import",
			"error":   err.Error(),
		})
	}

	return websocket.New(func(conn *websocket.Conn) {
		h.serve(conn, importID)
	})(c)
}

func (h *WsHandler) serve(conn *websocket.Conn, importID uuid.UUID) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer conn.Close()

	h.logger.Info("WebSocket progress client connected", zap.String("import_id", importID.String()))

	// the read side only exists to notice the client going away
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug("WebSocket unexpected close", zap.Error(err))
				}
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	snapshot := func(ctx context.Context) (services.ProgressEvent, error) {
		return h.reader.GetProgress(ctx, importID)
	}
	emit := func(event services.ProgressEvent) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(event)
	}

	if err := StreamProgress(ctx, h.hub, importID.String(), snapshot, emit, pollInterval); err != nil {
		h.logger.Debug("WebSocket progress stream ended", zap.String("import_id", importID.String()), zap.Error(err))
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
