package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

const sesCharset = "UTF-8"

var (
	// ErrMissingSESRegion indicates the SES region configuration was omitted.
	ErrMissingSESRegion = errors.New("notifications: missing ses region")
	// ErrMissingSESFrom indicates the SES sender address configuration was omitted.
	ErrMissingSESFrom = errors.New("notifications: missing ses from address")
)

// SESAPI is the subset of the SES client used to send mail.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESEmailSender delivers plain-text messages through Amazon SES.
type SESEmailSender struct {
	client SESAPI
	from   string
}

// NewSESEmailSender loads the default AWS configuration for the region and builds an SES sender.
func NewSESEmailSender(ctx context.Context, region string, from string) (*SESEmailSender, error) {
	trimmedRegion := strings.TrimSpace(region)
	if trimmedRegion == "" {
		return nil, ErrMissingSESRegion
	}
	awsConfig, loadErr := config.LoadDefaultConfig(ctx, config.WithRegion(trimmedRegion))
	if loadErr != nil {
		return nil, fmt.Errorf("notifications: load aws config: %w", loadErr)
	}
	return NewSESEmailSenderWithClient(ses.NewFromConfig(awsConfig), from)
}

// NewSESEmailSenderWithClient builds an SES sender around an existing client.
func NewSESEmailSenderWithClient(client SESAPI, from string) (*SESEmailSender, error) {
	trimmedFrom := strings.TrimSpace(from)
	if trimmedFrom == "" {
		return nil, ErrMissingSESFrom
	}
	return &SESEmailSender{client: client, from: trimmedFrom}, nil
}

// SendEmail delivers one message to one recipient.
func (sender *SESEmailSender) SendEmail(ctx context.Context, recipient string, subject string, message string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(sender.from),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String(sesCharset)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(message), Charset: aws.String(sesCharset)},
			},
		},
	}
	if _, sendErr := sender.client.SendEmail(ctx, input); sendErr != nil {
		return fmt.Errorf("ses send email: %w", sendErr)
	}
	return nil
}
