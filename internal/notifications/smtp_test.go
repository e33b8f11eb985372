package notifications

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime/quotedprintable"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSMTPMessage struct {
	from       string
	recipients []string
	data       string
}

func startFakeSMTPServer(testingT *testing.T) (string, int, <-chan fakeSMTPMessage) {
	testingT.Helper()
	listener, listenErr := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(testingT, listenErr)
	testingT.Cleanup(func() { _ = listener.Close() })

	messages := make(chan fakeSMTPMessage, 1)
	go func() {
		connection, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		defer connection.Close()
		reader := bufio.NewReader(connection)
		reply := func(line string) { _, _ = fmt.Fprintf(connection, "%s\r\n", line) }

		message := fakeSMTPMessage{}
		reply("220 localhost ESMTP")
		for {
			line, readErr := reader.ReadString('\n')
			if readErr != nil {
				return
			}
			command := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(command, "EHLO"):
				reply("250-localhost")
				reply("250 8BITMIME")
			case strings.HasPrefix(command, "HELO"):
				reply("250 localhost")
			case strings.HasPrefix(command, "MAIL FROM:"):
				message.from = strings.TrimSpace(line)
				reply("250 OK")
			case strings.HasPrefix(command, "RCPT TO:"):
				message.recipients = append(message.recipients, strings.TrimSpace(line))
				reply("250 OK")
			case command == "DATA":
				reply("354 End data with <CR><LF>.<CR><LF>")
				var builder strings.Builder
				for {
					dataLine, dataErr := reader.ReadString('\n')
					if dataErr != nil {
						return
					}
					if dataLine == ".\r\n" {
						break
					}
					builder.WriteString(dataLine)
				}
				message.data = builder.String()
				reply("250 OK")
			case command == "QUIT":
				reply("221 Bye")
				messages <- message
				return
			default:
				reply("250 OK")
			}
		}
	}()

	address := listener.Addr().(*net.TCPAddr)
	return address.IP.String(), address.Port, messages
}

func TestSMTPEmailSenderDeliversMessage(testingT *testing.T) {
	host, port, messages := startFakeSMTPServer(testingT)
	sender, err := NewSMTPEmailSender(SMTPConfig{
		Host:    host,
		Port:    port,
		From:    "inquiries@example.com",
		Timeout: 5 * time.Second,
	})
	require.NoError(testingT, err)

	require.NoError(testingT, sender.SendEmail(context.Background(), "sales@example.com", "New inquiry for Widget", "Page Title: Widget\nEmail: buyer@example.com"))

	select {
	case message := <-messages:
		require.Contains(testingT, message.from, "<inquiries@example.com>")
		require.Len(testingT, message.recipients, 1)
		require.Contains(testingT, message.recipients[0], "<sales@example.com>")
		require.Contains(testingT, message.data, "Subject: New inquiry for Widget\r\n")
		require.Contains(testingT, message.data, "To: sales@example.com\r\n")
		require.Contains(testingT, message.data, "Page Title: Widget\r\nEmail: buyer@example.com\r\n")
	case <-time.After(5 * time.Second):
		testingT.Fatal("smtp server did not receive a message")
	}
}

func TestSMTPEmailSenderReportsUnreachableServer(testingT *testing.T) {
	listener, listenErr := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(testingT, listenErr)
	address := listener.Addr().(*net.TCPAddr)
	require.NoError(testingT, listener.Close())

	sender, err := NewSMTPEmailSender(SMTPConfig{Host: "127.0.0.1", Port: address.Port, From: "inquiries@example.com", Timeout: time.Second})
	require.NoError(testingT, err)
	require.Error(testingT, sender.SendEmail(context.Background(), "sales@example.com", "subject", "body"))
}

func TestNewSMTPEmailSenderValidatesConfiguration(testingT *testing.T) {
	_, err := NewSMTPEmailSender(SMTPConfig{From: "inquiries@example.com"})
	require.ErrorIs(testingT, err, ErrMissingSMTPHost)

	_, err = NewSMTPEmailSender(SMTPConfig{Host: "smtp.example.com"})
	require.ErrorIs(testingT, err, ErrMissingSMTPFrom)

	sender, err := NewSMTPEmailSender(SMTPConfig{Host: "smtp.example.com", Username: "relay@example.com"})
	require.NoError(testingT, err)
	require.Equal(testingT, "relay@example.com", sender.configuration.From)
	require.Equal(testingT, defaultSMTPPort, sender.configuration.Port)
	require.Equal(testingT, defaultSMTPTimeout, sender.configuration.Timeout)
}

func TestBuildSMTPMessageEncodesHeadersAndLineEndings(testingT *testing.T) {
	sentAt := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	message := buildSMTPMessage("from@example.com", "to@example.com", "New inquiry for Café", "line one\nline two", sentAt)

	require.True(testingT, strings.HasPrefix(message, "From: from@example.com\r\nTo: to@example.com\r\n"))
	require.Contains(testingT, message, "Subject: =?utf-8?q?New_inquiry_for_Caf=C3=A9?=\r\n")
	require.Contains(testingT, message, "Content-Type: text/plain; charset=UTF-8\r\n")
	require.Contains(testingT, message, "Content-Transfer-Encoding: quoted-printable\r\n")
	require.Contains(testingT, message, "\r\n\r\nline one\r\nline two\r\n")
}

func TestBuildSMTPMessageWrapsLongBodyLines(testingT *testing.T) {
	body := "Message: " + strings.Repeat("très long ", 1000) + "\nPage: https://example.com/widget"
	message := buildSMTPMessage("from@example.com", "to@example.com", "New inquiry", body, time.Now())

	headerEnd := strings.Index(message, "\r\n\r\n")
	require.Positive(testingT, headerEnd)
	encodedBody := message[headerEnd+4:]
	for _, line := range strings.Split(encodedBody, "\r\n") {
		require.LessOrEqual(testingT, len(line), 76)
	}

	decoded, decodeErr := io.ReadAll(quotedprintable.NewReader(strings.NewReader(encodedBody)))
	require.NoError(testingT, decodeErr)
	require.Equal(testingT, strings.ReplaceAll(body, "\n", "\r\n")+"\r\n", string(decoded))
}
