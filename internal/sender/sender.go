package sender

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultDeliveryTimeout = 5 * time.Second
	userAgent              = "QuintasERP-Webhook/1.0"

	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
)

// Response captures the subscriber's reply for audit persistence.
type Response struct {
	StatusCode int
	Body       string
}

// Success reports whether the subscriber acknowledged the delivery.
func (r *Response) Success() bool {
	return r != nil && r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Sender is the outbound webhook delivery port. A non-nil error means the
// request never produced an HTTP response (timeout, DNS, refused connection);
// a non-2xx response is returned as a Response, not an error, because both
// are the same kind of delivery failure and differ only in what gets
// recorded.
type Sender interface {
	Deliver(ctx context.Context, url string, eventType string, payload []byte, signatureHeader string) (*Response, error)
}

// HTTPSender posts signed payloads to subscriber endpoints.
type HTTPSender struct {
	client *resty.Client
}

func NewHTTPSender(timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)
	client.SetHeader("User-Agent", userAgent)

	return &HTTPSender{client: client}
}

func NewHTTPSenderWithClient(client *resty.Client) (*HTTPSender, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultDeliveryTimeout)
	}
	client.SetRetryCount(0)
	client.SetHeader("User-Agent", userAgent)

	return &HTTPSender{client: client}, nil
}

// Deliver posts the payload bytes untouched so the transmitted body matches
// the signed bytes exactly.
func (s *HTTPSender) Deliver(ctx context.Context, url string, eventType string, payload []byte, signatureHeader string) (*Response, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("sender is not initialized")
	}

	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(HeaderSignature, signatureHeader).
		SetHeader(HeaderEvent, eventType).
		SetBody(payload).
		Post(url)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	if response == nil {
		return nil, fmt.Errorf("webhook returned empty response")
	}

	return &Response{
		StatusCode: response.StatusCode(),
		Body:       strings.TrimSpace(response.String()),
	}, nil
}
