package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	EmailProviderSMTP = "smtp"
	EmailProviderSES  = "ses"
	EmailProviderNone = "none"
)

// ErrUnsupportedEmailProvider indicates the configured email provider is unknown.
var ErrUnsupportedEmailProvider = errors.New("notifications: unsupported email provider")

// EmailSender sends an email message to a recipient.
type EmailSender interface {
	SendEmail(ctx context.Context, recipient string, subject string, message string) error
}

// EmailConfig selects and configures the email transport.
type EmailConfig struct {
	Provider  string
	SMTP      SMTPConfig
	SESRegion string
	SESFrom   string
}

type noopEmailSender struct {
	logger *zap.Logger
}

func (sender noopEmailSender) SendEmail(ctx context.Context, recipient string, subject string, message string) error {
	sender.logger.Info("inquiry_email_skipped", zap.String("recipient", recipient), zap.String("subject", subject))
	return nil
}

// NewEmailSender builds the transport named by the configuration.
func NewEmailSender(ctx context.Context, logger *zap.Logger, configuration EmailConfig) (EmailSender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := strings.ToLower(strings.TrimSpace(configuration.Provider))
	switch provider {
	case "", EmailProviderNone:
		return noopEmailSender{logger: logger}, nil
	case EmailProviderSMTP:
		return NewSMTPEmailSender(configuration.SMTP)
	case EmailProviderSES:
		return NewSESEmailSender(ctx, configuration.SESRegion, configuration.SESFrom)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEmailProvider, provider)
	}
}

func resolveEmailSender(sender EmailSender, logger *zap.Logger) EmailSender {
	if sender == nil {
		return noopEmailSender{logger: logger}
	}
	return sender
}
