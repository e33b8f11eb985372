package notifications

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/inquiry"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/metrics"
	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/model"
)

// WebhookSender posts an inquiry payload to one webhook URL.
type WebhookSender interface {
	Post(ctx context.Context, webhookURL string, payload model.InquiryPayload) error
}

// DispatchReport summarizes one fan-out.
type DispatchReport struct {
	EmailsAttempted   int
	EmailsFailed      int
	WebhooksAttempted int
	WebhooksFailed    int
	Failures          []error
}

// Err joins every delivery failure, or returns nil when all deliveries succeeded.
func (report DispatchReport) Err() error {
	return errors.Join(report.Failures...)
}

// Dispatcher fans an inquiry out to every configured email address and webhook.
type Dispatcher struct {
	logger        *zap.Logger
	emailSender   EmailSender
	webhookSender WebhookSender
}

// NewDispatcher constructs a dispatcher. A nil email sender skips email delivery with a log entry.
func NewDispatcher(logger *zap.Logger, emailSender EmailSender, webhookSender WebhookSender) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if webhookSender == nil {
		webhookSender = NewWebhookPoster(nil, DefaultWebhookTimeout)
	}
	return &Dispatcher{
		logger:        logger,
		emailSender:   resolveEmailSender(emailSender, logger),
		webhookSender: webhookSender,
	}
}

// Notify dispatches the inquiry and discards the report.
func (dispatcher *Dispatcher) Notify(ctx context.Context, settings model.Settings, record model.Inquiry) {
	dispatcher.Dispatch(ctx, settings, record)
}

// Dispatch sends one email per configured address and one POST per configured webhook, in list
// order. A failed delivery is logged and counted and never stops the remaining deliveries.
func (dispatcher *Dispatcher) Dispatch(ctx context.Context, settings model.Settings, record model.Inquiry) DispatchReport {
	report := DispatchReport{}

	subject := BuildEmailSubject(record)
	body := BuildEmailBody(record)
	for _, recipient := range settings.Emails {
		report.EmailsAttempted++
		sendErr := dispatcher.emailSender.SendEmail(ctx, recipient, subject, body)
		metrics.RecordNotification(metrics.NotificationChannelEmail, sendErr == nil)
		if sendErr == nil {
			continue
		}
		report.EmailsFailed++
		failure := &inquiry.NotificationError{Channel: metrics.NotificationChannelEmail, Target: recipient, Cause: sendErr}
		report.Failures = append(report.Failures, failure)
		dispatcher.logger.Warn("inquiry_email_failed", zap.Error(failure), zap.String("inquiry_id", record.ID), zap.String("recipient", recipient))
	}

	payload := record.Payload()
	for _, webhookURL := range settings.Webhooks {
		report.WebhooksAttempted++
		postErr := dispatcher.webhookSender.Post(ctx, webhookURL, payload)
		metrics.RecordNotification(metrics.NotificationChannelWebhook, postErr == nil)
		if postErr == nil {
			continue
		}
		report.WebhooksFailed++
		failure := &inquiry.NotificationError{Channel: metrics.NotificationChannelWebhook, Target: webhookURL, Cause: postErr}
		report.Failures = append(report.Failures, failure)
		dispatcher.logger.Warn("inquiry_webhook_failed", zap.Error(failure), zap.String("inquiry_id", record.ID), zap.String("webhook", webhookURL))
	}

	dispatcher.logger.Info(
		"inquiry_dispatched",
		zap.String("inquiry_id", record.ID),
		zap.Int("emails_attempted", report.EmailsAttempted),
		zap.Int("emails_failed", report.EmailsFailed),
		zap.Int("webhooks_attempted", report.WebhooksAttempted),
		zap.Int("webhooks_failed", report.WebhooksFailed),
	)
	return report
}
