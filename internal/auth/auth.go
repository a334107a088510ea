package auth

import "context"

// Identity is the verified caller of a subscription-management request.
// ClientID scopes every registry operation; UserID is recorded on created
// subscriptions for audit.
type Identity struct {
	ClientID string
	UserID   string
}

// Verifier resolves a bearer token to the calling identity. Implementations
// return domain.ErrUnauthorized for tokens that are invalid or inactive.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}
