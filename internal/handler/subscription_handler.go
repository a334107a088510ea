package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/quintaserp/webhook-service/internal/auth"
	"github.com/quintaserp/webhook-service/internal/domain"
	"github.com/quintaserp/webhook-service/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type SubscriptionService interface {
	Create(ctx context.Context, identity *auth.Identity, eventType string, callbackURL string, secret string) (*domain.Subscription, error)
	List(ctx context.Context, identity *auth.Identity, eventType *string, isActive *bool) ([]domain.Subscription, error)
	Deactivate(ctx context.Context, identity *auth.Identity, id string) error
	ListDeliveries(ctx context.Context, identity *auth.Identity, subscriptionID string, params repository.DeliveryListParams) ([]domain.DeliveryRecord, int64, error)
}

type SubscriptionHandler struct {
	service SubscriptionService
}

func NewSubscriptionHandler(service SubscriptionService) (*SubscriptionHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("subscription service is required")
	}
	return &SubscriptionHandler{service: service}, nil
}

func RegisterSubscriptionRoutes(router fiber.Router, service SubscriptionService, verifier auth.Verifier) error {
	h, err := NewSubscriptionHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1", auth.Middleware(verifier))
	v1.Post("/subscriptions", h.CreateSubscription)
	v1.Get("/subscriptions", h.ListSubscriptions)
	v1.Delete("/subscriptions/:id", h.DeactivateSubscription)
	v1.Get("/subscriptions/:id/deliveries", h.ListDeliveries)

	return nil
}

type createSubscriptionRequest struct {
	EventType string `json:"event_type"`
	URL       string `json:"url"`
	Secret    string `json:"secret"`
}

type subscriptionResponse struct {
	ID            string     `json:"id"`
	EventType     string     `json:"event_type"`
	URL           string     `json:"url"`
	Secret        string     `json:"secret,omitempty"`
	IsActive      bool       `json:"is_active"`
	FailureCount  int        `json:"failure_count"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type listSubscriptionsResponse struct {
	Data []subscriptionResponse `json:"data"`
}

type deliveryResponse struct {
	ID             string          `json:"id"`
	SubscriptionID string          `json:"subscription_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	Attempts       int             `json:"attempts"`
	ResponseStatus *int            `json:"response_status,omitempty"`
	ResponseBody   *string         `json:"response_body,omitempty"`
	NextAttemptAt  *time.Time      `json:"next_attempt_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type listDeliveriesResponse struct {
	Data []deliveryResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// CreateSubscription returns the signing secret in this response only;
// no read path includes it again.
func (h *SubscriptionHandler) CreateSubscription(c *fiber.Ctx) error {
	var req createSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	subscription, err := h.service.Create(c.UserContext(), auth.IdentityFromContext(c), req.EventType, req.URL, req.Secret)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toSubscriptionResponse(subscription, true))
}

func (h *SubscriptionHandler) ListSubscriptions(c *fiber.Ctx) error {
	var eventType *string
	if raw := strings.TrimSpace(c.Query("event_type")); raw != "" {
		eventType = &raw
	}

	var isActive *bool
	if raw := strings.TrimSpace(c.Query("is_active")); raw != "" {
		switch strings.ToLower(raw) {
		case "true":
			value := true
			isActive = &value
		case "false":
			value := false
			isActive = &value
		default:
			return toHTTPError(fmt.Errorf("%w: is_active must be true or false", domain.ErrValidation))
		}
	}

	subscriptions, err := h.service.List(c.UserContext(), auth.IdentityFromContext(c), eventType, isActive)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]subscriptionResponse, 0, len(subscriptions))
	for i := range subscriptions {
		data = append(data, toSubscriptionResponse(&subscriptions[i], false))
	}

	return c.Status(fiber.StatusOK).JSON(listSubscriptionsResponse{Data: data})
}

func (h *SubscriptionHandler) DeactivateSubscription(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Deactivate(c.UserContext(), auth.IdentityFromContext(c), id); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *SubscriptionHandler) ListDeliveries(c *fiber.Ctx) error {
	params, err := parseDeliveryListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	id := strings.TrimSpace(c.Params("id"))
	records, total, err := h.service.ListDeliveries(c.UserContext(), auth.IdentityFromContext(c), id, params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deliveryResponse, 0, len(records))
	for i := range records {
		data = append(data, toDeliveryResponse(&records[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{
		Data: data,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseDeliveryListParams(c *fiber.Ctx) (repository.DeliveryListParams, error) {
	params := repository.DeliveryListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("page_size", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.DeliveryListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.DeliveryListParams{}, fmt.Errorf("%w: page_size must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	return params, nil
}

func toSubscriptionResponse(s *domain.Subscription, includeSecret bool) subscriptionResponse {
	if s == nil {
		return subscriptionResponse{}
	}

	resp := subscriptionResponse{
		ID:            s.ID,
		EventType:     s.EventType,
		URL:           s.URL,
		IsActive:      s.IsActive,
		FailureCount:  s.FailureCount,
		LastSuccessAt: s.LastSuccessAt,
		LastFailureAt: s.LastFailureAt,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	if includeSecret {
		resp.Secret = s.Secret
	}
	return resp
}

func toDeliveryResponse(r *domain.DeliveryRecord) deliveryResponse {
	if r == nil {
		return deliveryResponse{}
	}

	return deliveryResponse{
		ID:             r.ID,
		SubscriptionID: r.SubscriptionID,
		EventType:      r.EventType,
		Payload:        r.Payload,
		Status:         r.Status.String(),
		Attempts:       r.Attempts,
		ResponseStatus: r.ResponseStatus,
		ResponseBody:   r.ResponseBody,
		NextAttemptAt:  r.NextAttemptAt,
		DeliveredAt:    r.DeliveredAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
