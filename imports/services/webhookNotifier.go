package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"boleto-import-backend/db/models"

	"go.uber.org/zap"
)

// WebhookPayload is the completion summary POSTed to an import's webhook URL
type WebhookPayload struct {
	ImportID    string              `json:"importId"`
	Status      models.ImportStatus `json:"status"`
	TotalRows   int                 `json:"totalRows"`
	SuccessRows int                 `json:"successRows"`
	ErrorRows   int                 `json:"errorRows"`
	StartedAt   *time.Time          `json:"startedAt"`
	FinishedAt  *time.Time          `json:"finishedAt"`
}

// WebhookNotifier makes a single best-effort POST per completed import
type WebhookNotifier struct {
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWebhookNotifier(timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (n *WebhookNotifier) NotifyCompletion(ctx context.Context, imp *models.Import) error {
	if imp.WebhookURL == nil || *imp.WebhookURL == "" {
		return nil
	}

	payload := WebhookPayload{
		ImportID:    imp.ID.String(),
		Status:      imp.Status,
		TotalRows:   imp.TotalRows,
		SuccessRows: imp.SuccessRows,
		ErrorRows:   imp.ErrorRows,
		StartedAt:   imp.StartedAt,
		FinishedAt:  imp.FinishedAt,
	}

	err := n.post(ctx, *imp.WebhookURL, payload)
	if err != nil {
		n.logger.Error("Webhook delivery failed",
			zap.String("import_id", imp.ID.String()),
			zap.String("url", *imp.WebhookURL),
			zap.Error(err),
			zap.String("type", "webhook_failure"),
		)
		return err
	}

	n.logger.Info("Webhook delivered",
		zap.String("import_id", imp.ID.String()),
		zap.String("url", *imp.WebhookURL),
		zap.String("type", "webhook_success"),
	)
	return nil
}

func (n *WebhookNotifier) post(ctx context.Context, url string, payload WebhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
