package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/quintaserp/webhook-service/internal/auth"
	"github.com/quintaserp/webhook-service/internal/domain"
)

// EventPublisher is the fan-out entry point exercised by business services.
// Publish never reports failure, so ingestion always acknowledges with 202
// once the request itself is well formed.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any)
}

type EventHandler struct {
	publisher EventPublisher
}

func NewEventHandler(publisher EventPublisher) (*EventHandler, error) {
	if publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	return &EventHandler{publisher: publisher}, nil
}

func RegisterEventRoutes(router fiber.Router, publisher EventPublisher, verifier auth.Verifier) error {
	h, err := NewEventHandler(publisher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1", auth.Middleware(verifier))
	v1.Post("/events", h.PublishEvent)

	return nil
}

type publishEventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type publishEventResponse struct {
	EventType string `json:"event_type"`
	Status    string `json:"status"`
}

func (h *EventHandler) PublishEvent(c *fiber.Ctx) error {
	var req publishEventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	eventType := strings.TrimSpace(req.EventType)
	if eventType == "" {
		return toHTTPError(fmt.Errorf("%w: event_type is required", domain.ErrValidation))
	}
	if len(req.Payload) == 0 || !json.Valid(req.Payload) {
		return toHTTPError(fmt.Errorf("%w: payload must be a JSON document", domain.ErrValidation))
	}

	h.publisher.Publish(c.UserContext(), eventType, req.Payload)

	return c.Status(fiber.StatusAccepted).JSON(publishEventResponse{
		EventType: eventType,
		Status:    "accepted",
	})
}
