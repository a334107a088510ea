package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/quintaserp/webhook-service/internal/domain"
)

const identityLocalKey = "authIdentity"

// Middleware rejects requests without a valid bearer token before any
// handler or storage access runs.
func Middleware(verifier Verifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		const prefix = "Bearer "
		if header == "" || !strings.HasPrefix(header, prefix) {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		identity, err := verifier.Verify(c.UserContext(), token)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
			}
			return fmt.Errorf("token verification failed: %w", err)
		}

		c.Locals(identityLocalKey, identity)
		return c.Next()
	}
}

// IdentityFromContext returns the identity stored by Middleware, or nil.
func IdentityFromContext(c *fiber.Ctx) *Identity {
	identity, _ := c.Locals(identityLocalKey).(*Identity)
	return identity
}
