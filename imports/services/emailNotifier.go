package services

import (
	"context"
	"fmt"

	"boleto-import-backend/db/models"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier mails the import summary to notify_email when SMTP is configured
type EmailNotifier struct {
	sender     mailSender
	from       string
	apiBaseURL string
	logger     *zap.Logger
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// NewEmailNotifier returns nil when no SMTP host is configured
func NewEmailNotifier(cfg SMTPConfig, apiBaseURL string, logger *zap.Logger) *EmailNotifier {
	if cfg.Host == "" {
		return nil
	}
	return &EmailNotifier{
		sender:     gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		from:       cfg.From,
		apiBaseURL: apiBaseURL,
		logger:     logger,
	}
}

func (n *EmailNotifier) NotifyCompletion(ctx context.Context, imp *models.Import) error {
	if imp.NotifyEmail == nil || *imp.NotifyEmail == "" {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", *imp.NotifyEmail)
	m.SetHeader("Subject", fmt.Sprintf("Import %s %s", imp.OriginalFilename, imp.Status))
	m.SetBody("text/html", n.summaryBody(imp))

	if err := n.sender.DialAndSend(m); err != nil {
		n.logger.Error("Completion email failed",
			zap.String("import_id", imp.ID.String()),
			zap.String("to_email", *imp.NotifyEmail),
			zap.Error(err),
		)
		return fmt.Errorf("send completion email: %w", err)
	}

	n.logger.Info("Completion email sent",
		zap.String("import_id", imp.ID.String()),
		zap.String("to_email", *imp.NotifyEmail),
	)
	return nil
}

func (n *EmailNotifier) summaryBody(imp *models.Import) string {
	id := imp.ID.String()
	return fmt.Sprintf(`<p>Import <strong>%s</strong> finished with status <strong>%s</strong>.</p>
<ul>
<li>Total rows: %d</li>
<li>Issued: %d</li>
<li>Errors: %d</li>
</ul>
<p><a href="%s/v1/imports/%s/results.csv">Results</a> | <a href="%s/v1/imports/%s/errors.csv">Errors</a></p>`,
		imp.OriginalFilename, imp.Status,
		imp.TotalRows, imp.SuccessRows, imp.ErrorRows,
		n.apiBaseURL, id, n.apiBaseURL, id,
	)
}
