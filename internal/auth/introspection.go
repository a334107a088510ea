package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/quintaserp/webhook-service/internal/domain"
)

const defaultIntrospectionTimeout = 5 * time.Second

type introspectionResponse struct {
	Active   bool   `json:"active"`
	ClientID string `json:"client_id"`
	Subject  string `json:"sub"`
}

// IntrospectionVerifier validates bearer tokens against an OAuth2 token
// introspection endpoint (RFC 7662 response shape).
type IntrospectionVerifier struct {
	client   *resty.Client
	endpoint string
	apiToken string
}

func NewIntrospectionVerifier(endpoint string, apiToken string) (*IntrospectionVerifier, error) {
	client := resty.New()
	client.SetTimeout(defaultIntrospectionTimeout)
	client.SetRetryCount(0)

	return NewIntrospectionVerifierWithClient(endpoint, apiToken, client)
}

func NewIntrospectionVerifierWithClient(endpoint string, apiToken string, client *resty.Client) (*IntrospectionVerifier, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("introspection endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid introspection endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultIntrospectionTimeout)
	}
	client.SetRetryCount(0)

	return &IntrospectionVerifier{
		client:   client,
		endpoint: trimmedEndpoint,
		apiToken: strings.TrimSpace(apiToken),
	}, nil
}

func (v *IntrospectionVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if v == nil || v.client == nil {
		return nil, fmt.Errorf("verifier is not initialized")
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%w: empty token", domain.ErrUnauthorized)
	}

	var result introspectionResponse
	request := v.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"token": token}).
		SetResult(&result)
	if v.apiToken != "" {
		request.SetAuthToken(v.apiToken)
	}

	response, err := request.Post(v.endpoint)
	if err != nil {
		return nil, fmt.Errorf("introspection request failed: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("introspection endpoint returned status %d", response.StatusCode())
	}
	if !result.Active {
		return nil, fmt.Errorf("%w: token is not active", domain.ErrUnauthorized)
	}

	return &Identity{
		ClientID: strings.TrimSpace(result.ClientID),
		UserID:   strings.TrimSpace(result.Subject),
	}, nil
}
