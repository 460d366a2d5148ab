package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeOverdueScan is the task type for the overdue demand sweep.
	TaskTypeOverdueScan = "revenue:overdue_scan"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// Mailer delivers a single email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewSendEmailHandler processes TaskTypeSendEmail tasks through the
// configured mailer. A nil mailer logs and drops the message.
func NewSendEmailHandler(logger *slog.Logger, mailer Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if mailer == nil {
			logger.Info("mail delivery skipped, no mailer configured",
				"to", payload.To, "subject", payload.Subject)
			return nil
		}
		if err := mailer.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
			logger.Error("mail delivery failed", "to", payload.To, "error", err)
			return err
		}
		return nil
	}
}

// NewOverdueScanTask constructs the periodic overdue-demand sweep task.
func NewOverdueScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeOverdueScan, nil)
}

// OverdueScanner is implemented by the revenue service.
type OverdueScanner interface {
	NotifyOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// NewOverdueScanHandler processes TaskTypeOverdueScan tasks.
func NewOverdueScanHandler(logger *slog.Logger, scanner OverdueScanner) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		sent, err := scanner.NotifyOverdue(ctx, time.Now())
		if err != nil {
			logger.Error("overdue demand scan failed", "error", err)
			return err
		}
		logger.Info("overdue demand scan completed", "notices", sent)
		return nil
	}
}
