package handler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/quintaserp/webhook-service/internal/auth"
	"github.com/quintaserp/webhook-service/internal/transport"
	"go.uber.org/zap"
)

type fakePublisher struct {
	publishFn func(ctx context.Context, eventType string, payload any)
}

func (f *fakePublisher) Publish(ctx context.Context, eventType string, payload any) {
	if f.publishFn != nil {
		f.publishFn(ctx, eventType, payload)
	}
}

func newEventTestApp(t *testing.T, publisher EventPublisher, verifier auth.Verifier) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	if err := RegisterEventRoutes(app, publisher, verifier); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return app
}

func TestPublishEvent(t *testing.T) {
	t.Parallel()

	var gotEventType string
	var gotPayload any
	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, eventType string, payload any) {
			gotEventType = eventType
			gotPayload = payload
		},
	}

	app := newEventTestApp(t, publisher, &fakeVerifier{})

	resp := doJSON(t, app, fiber.MethodPost, "/v1/events", fiber.Map{
		"event_type": "payment.completed",
		"payload":    fiber.Map{"payment_id": "pay-1", "amount": 42.50},
	})

	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "accepted" {
		t.Errorf("unexpected body: %v", body)
	}
	if body["event_type"] != "payment.completed" {
		t.Errorf("unexpected event_type: %v", body["event_type"])
	}

	if gotEventType != "payment.completed" {
		t.Errorf("unexpected published event type: %s", gotEventType)
	}
	raw, ok := gotPayload.(json.RawMessage)
	if !ok {
		t.Fatalf("expected raw JSON payload, got %T", gotPayload)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if payload["payment_id"] != "pay-1" {
		t.Errorf("unexpected payload: %s", raw)
	}
}

func TestPublishEventValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body fiber.Map
	}{
		{name: "missing event type", body: fiber.Map{"payload": fiber.Map{"x": "y"}}},
		{name: "blank event type", body: fiber.Map{"event_type": "  ", "payload": fiber.Map{"x": "y"}}},
		{name: "missing payload", body: fiber.Map{"event_type": "sale.created"}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			published := false
			publisher := &fakePublisher{
				publishFn: func(ctx context.Context, eventType string, payload any) {
					published = true
				},
			}

			app := newEventTestApp(t, publisher, &fakeVerifier{})

			resp := doJSON(t, app, fiber.MethodPost, "/v1/events", tc.body)
			if resp.StatusCode != fiber.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			if published {
				t.Error("expected no publish for an invalid request")
			}
		})
	}
}

func TestPublishEventRequiresAuth(t *testing.T) {
	t.Parallel()

	publisher := &fakePublisher{
		publishFn: func(ctx context.Context, eventType string, payload any) {
			t.Error("publisher must not be reached without credentials")
		},
	}

	app := fiber.New(fiber.Config{ErrorHandler: transport.ErrorHandler(zap.NewNop())})
	if err := RegisterEventRoutes(app, publisher, &fakeVerifier{
		verifyFn: func(ctx context.Context, token string) (*auth.Identity, error) {
			return nil, fiber.ErrUnauthorized
		},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp := doJSON(t, app, fiber.MethodPost, "/v1/events", fiber.Map{
		"event_type": "sale.created",
		"payload":    fiber.Map{"x": "y"},
	})
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}
