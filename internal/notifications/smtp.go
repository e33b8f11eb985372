package notifications

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultSMTPPort    = 587
	defaultSMTPTimeout = 10 * time.Second

	smtpExtensionStartTLS = "STARTTLS"
)

var (
	// ErrMissingSMTPHost indicates the SMTP host configuration was omitted.
	ErrMissingSMTPHost = errors.New("notifications: missing smtp host")
	// ErrMissingSMTPFrom indicates neither a sender address nor a username was configured.
	ErrMissingSMTPFrom = errors.New("notifications: missing smtp from address")
)

// SMTPConfig describes an SMTP relay. UseTLS selects implicit TLS (typically port 465); otherwise
// STARTTLS is negotiated when the server offers it.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

// SMTPEmailSender delivers plain-text messages through an SMTP relay.
type SMTPEmailSender struct {
	configuration SMTPConfig
	now           func() time.Time
}

// NewSMTPEmailSender validates the relay configuration.
func NewSMTPEmailSender(configuration SMTPConfig) (*SMTPEmailSender, error) {
	configuration.Host = strings.TrimSpace(configuration.Host)
	if configuration.Host == "" {
		return nil, ErrMissingSMTPHost
	}
	if configuration.Port <= 0 {
		configuration.Port = defaultSMTPPort
	}
	if configuration.Timeout <= 0 {
		configuration.Timeout = defaultSMTPTimeout
	}
	configuration.From = strings.TrimSpace(configuration.From)
	if configuration.From == "" {
		configuration.From = strings.TrimSpace(configuration.Username)
	}
	if configuration.From == "" {
		return nil, ErrMissingSMTPFrom
	}
	return &SMTPEmailSender{configuration: configuration, now: time.Now}, nil
}

// SendEmail delivers one message to one recipient.
func (sender *SMTPEmailSender) SendEmail(ctx context.Context, recipient string, subject string, message string) error {
	address := net.JoinHostPort(sender.configuration.Host, strconv.Itoa(sender.configuration.Port))
	deadline := time.Now().Add(sender.configuration.Timeout)
	if contextDeadline, hasDeadline := ctx.Deadline(); hasDeadline && contextDeadline.Before(deadline) {
		deadline = contextDeadline
	}

	connection, dialErr := sender.dial(ctx, address, deadline)
	if dialErr != nil {
		return fmt.Errorf("smtp dial %s: %w", address, dialErr)
	}
	defer connection.Close()
	if deadlineErr := connection.SetDeadline(deadline); deadlineErr != nil {
		return fmt.Errorf("smtp deadline: %w", deadlineErr)
	}

	client, clientErr := smtp.NewClient(connection, sender.configuration.Host)
	if clientErr != nil {
		return fmt.Errorf("smtp client: %w", clientErr)
	}
	defer client.Close()

	if !sender.configuration.UseTLS {
		if supported, _ := client.Extension(smtpExtensionStartTLS); supported {
			if startErr := client.StartTLS(&tls.Config{ServerName: sender.configuration.Host}); startErr != nil {
				return fmt.Errorf("smtp starttls: %w", startErr)
			}
		}
	}

	if sender.configuration.Username != "" && sender.configuration.Password != "" {
		auth := smtp.PlainAuth("", sender.configuration.Username, sender.configuration.Password, sender.configuration.Host)
		if authErr := client.Auth(auth); authErr != nil {
			return fmt.Errorf("smtp auth: %w", authErr)
		}
	}

	if mailErr := client.Mail(sender.configuration.From); mailErr != nil {
		return fmt.Errorf("smtp mail from: %w", mailErr)
	}
	if rcptErr := client.Rcpt(recipient); rcptErr != nil {
		return fmt.Errorf("smtp rcpt to: %w", rcptErr)
	}
	writer, dataErr := client.Data()
	if dataErr != nil {
		return fmt.Errorf("smtp data: %w", dataErr)
	}
	if _, writeErr := writer.Write([]byte(buildSMTPMessage(sender.configuration.From, recipient, subject, message, sender.now()))); writeErr != nil {
		_ = writer.Close()
		return fmt.Errorf("smtp write: %w", writeErr)
	}
	if closeErr := writer.Close(); closeErr != nil {
		return fmt.Errorf("smtp data close: %w", closeErr)
	}
	return client.Quit()
}

func (sender *SMTPEmailSender) dial(ctx context.Context, address string, deadline time.Time) (net.Conn, error) {
	dialer := &net.Dialer{Deadline: deadline}
	if sender.configuration.UseTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: sender.configuration.Host}}
		return tlsDialer.DialContext(ctx, "tcp", address)
	}
	return dialer.DialContext(ctx, "tcp", address)
}

func buildSMTPMessage(from string, recipient string, subject string, body string, sentAt time.Time) string {
	headers := [][2]string{
		{"From", from},
		{"To", recipient},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"Date", sentAt.UTC().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/plain; charset=UTF-8"},
		{"Content-Transfer-Encoding", "quoted-printable"},
	}

	var builder strings.Builder
	for _, header := range headers {
		builder.WriteString(header[0])
		builder.WriteString(": ")
		builder.WriteString(header[1])
		builder.WriteString("\r\n")
	}
	builder.WriteString("\r\n")
	// Text mode turns bare \n into CRLF and soft-wraps lines at 76 characters.
	bodyWriter := quotedprintable.NewWriter(&builder)
	_, _ = bodyWriter.Write([]byte(body))
	_ = bodyWriter.Close()
	builder.WriteString("\r\n")
	return builder.String()
}
