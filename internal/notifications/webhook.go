package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/inquiry_svc/internal/model"
)

const (
	// DefaultWebhookTimeout bounds each webhook request.
	DefaultWebhookTimeout = 10 * time.Second

	webhookContentType       = "application/json"
	webhookUserAgent         = "inquiry-svc/1"
	webhookResponseDrainSize = 64 * 1024
)

// HTTPClient executes outbound HTTP requests.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// WebhookStatusError reports a webhook that answered with a non-2xx status.
type WebhookStatusError struct {
	StatusCode int
}

func (statusError *WebhookStatusError) Error() string {
	return fmt.Sprintf("webhook responded with status %d", statusError.StatusCode)
}

// WebhookPoster delivers inquiry payloads as JSON POST requests.
type WebhookPoster struct {
	client  HTTPClient
	timeout time.Duration
}

// NewWebhookPoster constructs a poster. A nil client uses a dedicated http.Client.
func NewWebhookPoster(client HTTPClient, timeout time.Duration) *WebhookPoster {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &WebhookPoster{client: client, timeout: timeout}
}

// Post sends the payload to the webhook URL and treats any non-2xx response as a failure.
func (poster *WebhookPoster) Post(ctx context.Context, webhookURL string, payload model.InquiryPayload) error {
	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return fmt.Errorf("encode webhook payload: %w", marshalErr)
	}

	requestContext, cancel := context.WithTimeout(ctx, poster.timeout)
	defer cancel()

	request, requestErr := http.NewRequestWithContext(requestContext, http.MethodPost, webhookURL, bytes.NewReader(body))
	if requestErr != nil {
		return fmt.Errorf("build webhook request: %w", requestErr)
	}
	request.Header.Set("Content-Type", webhookContentType)
	request.Header.Set("User-Agent", webhookUserAgent)

	response, doErr := poster.client.Do(request)
	if doErr != nil {
		return fmt.Errorf("post webhook: %w", doErr)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, webhookResponseDrainSize))

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return &WebhookStatusError{StatusCode: response.StatusCode}
	}
	return nil
}
