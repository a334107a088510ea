package transport

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/quintaserp/webhook-service/internal/observability"
)

// RequestContext copies the request id into the user context so logs written
// by services and repositories can be correlated with the HTTP request.
// Must be registered after the requestid middleware.
func RequestContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID, _ := c.Locals("requestid").(string)
		if requestID = strings.TrimSpace(requestID); requestID != "" {
			c.SetUserContext(observability.WithCorrelationID(c.UserContext(), requestID))
		}
		return c.Next()
	}
}
