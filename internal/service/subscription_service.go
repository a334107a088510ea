package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quintaserp/webhook-service/internal/auth"
	"github.com/quintaserp/webhook-service/internal/domain"
	"github.com/quintaserp/webhook-service/internal/repository"
	"go.uber.org/zap"
)

const secretByteLen = 32

// SubscriptionService owns the registry side of the webhook subsystem:
// creating, listing, and deactivating subscriptions for the authenticated
// client, plus per-subscription delivery history.
type SubscriptionService struct {
	subscriptions repository.SubscriptionRepository
	deliveries    repository.DeliveryRepository
	logger        *zap.Logger
	now           func() time.Time
}

func NewSubscriptionService(
	subscriptions repository.SubscriptionRepository,
	deliveries repository.DeliveryRepository,
	logger *zap.Logger,
) (*SubscriptionService, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription repository is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SubscriptionService{
		subscriptions: subscriptions,
		deliveries:    deliveries,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Create registers a subscription. The secret is generated when absent and
// is present on the returned subscription only; reads never include it.
func (s *SubscriptionService) Create(ctx context.Context, identity *auth.Identity, eventType string, callbackURL string, secret string) (*domain.Subscription, error) {
	if err := requireClient(identity); err != nil {
		return nil, err
	}

	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, fmt.Errorf("%w: event_type is required", domain.ErrValidation)
	}
	if err := domain.ValidateCallbackURL(callbackURL); err != nil {
		return nil, err
	}

	secret = strings.TrimSpace(secret)
	if secret == "" {
		generated, err := generateSecret()
		if err != nil {
			return nil, err
		}
		secret = generated
	}

	now := s.now().UTC()
	subscription := &domain.Subscription{
		ID:        uuid.NewString(),
		ClientID:  identity.ClientID,
		EventType: eventType,
		URL:       strings.TrimSpace(callbackURL),
		Secret:    secret,
		IsActive:  true,
		CreatedBy: identity.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := subscription.Validate(); err != nil {
		return nil, err
	}

	if err := s.subscriptions.Create(ctx, subscription); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	s.logger.Info("subscription created",
		zap.String("subscriptionId", subscription.ID),
		zap.String("clientId", subscription.ClientID),
		zap.String("eventType", subscription.EventType),
	)

	return subscription, nil
}

// List returns the caller's subscriptions with the secret cleared.
func (s *SubscriptionService) List(ctx context.Context, identity *auth.Identity, eventType *string, isActive *bool) ([]domain.Subscription, error) {
	if err := requireClient(identity); err != nil {
		return nil, err
	}

	subscriptions, err := s.subscriptions.List(ctx, repository.SubscriptionListParams{
		ClientID:  identity.ClientID,
		EventType: eventType,
		IsActive:  isActive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	for i := range subscriptions {
		subscriptions[i].Secret = ""
	}

	return subscriptions, nil
}

// Deactivate soft-deletes a subscription owned by the caller. The delivery
// history stays intact; pending deliveries are finalized by the dispatcher.
func (s *SubscriptionService) Deactivate(ctx context.Context, identity *auth.Identity, id string) error {
	if err := requireClient(identity); err != nil {
		return err
	}

	subscription, err := s.resolveOwned(ctx, identity, id)
	if err != nil {
		return err
	}

	if _, err := s.subscriptions.Deactivate(ctx, subscription.ID); err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}

	s.logger.Info("subscription deactivated",
		zap.String("subscriptionId", subscription.ID),
		zap.String("clientId", identity.ClientID),
	)

	return nil
}

// ListDeliveries returns the paged delivery history of an owned subscription.
func (s *SubscriptionService) ListDeliveries(ctx context.Context, identity *auth.Identity, subscriptionID string, params repository.DeliveryListParams) ([]domain.DeliveryRecord, int64, error) {
	if err := requireClient(identity); err != nil {
		return nil, 0, err
	}

	if _, err := s.resolveOwned(ctx, identity, subscriptionID); err != nil {
		return nil, 0, err
	}

	records, total, err := s.deliveries.ListBySubscription(ctx, subscriptionID, params)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list deliveries: %w", err)
	}

	return records, total, nil
}

func (s *SubscriptionService) resolveOwned(ctx context.Context, identity *auth.Identity, id string) (*domain.Subscription, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: subscription id is required", domain.ErrValidation)
	}

	subscription, err := s.subscriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if subscription.ClientID != identity.ClientID {
		return nil, fmt.Errorf("%w: subscription belongs to another client", domain.ErrForbidden)
	}

	return subscription, nil
}

func requireClient(identity *auth.Identity) error {
	if identity == nil || strings.TrimSpace(identity.ClientID) == "" {
		return fmt.Errorf("%w: client context required", domain.ErrValidation)
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, secretByteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
