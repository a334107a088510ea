package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quintaserp/webhook-service/internal/domain"
	"github.com/quintaserp/webhook-service/internal/observability"
	"github.com/quintaserp/webhook-service/internal/repository"
	"go.uber.org/zap"
)

// EventPublisher fans a domain event out into one pending delivery per
// active subscription matching the event type. It is called synchronously
// from business flows (sale created, sale state change, payment completed),
// so it never surfaces an error: a webhook fan-out failure must not roll
// back a sale or payment.
type EventPublisher struct {
	subscriptions repository.SubscriptionRepository
	deliveries    repository.DeliveryRepository
	logger        *zap.Logger
	now           func() time.Time
}

func NewEventPublisher(
	subscriptions repository.SubscriptionRepository,
	deliveries repository.DeliveryRepository,
	logger *zap.Logger,
) (*EventPublisher, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription repository is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventPublisher{
		subscriptions: subscriptions,
		deliveries:    deliveries,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Publish snapshots the payload to JSON at call time and queues one pending
// delivery per matching active subscription. Zero matches is a no-op.
//
// There is no publish-side idempotency: a business flow that retries and
// calls Publish twice for the same logical event enqueues two independent
// deliveries.
func (p *EventPublisher) Publish(ctx context.Context, eventType string, payload any) {
	logger := observability.WithContextLogger(p.logger, ctx)

	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		logger.Warn("skipping publish: empty event type")
		return
	}

	snapshot, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to snapshot event payload",
			zap.String("eventType", eventType),
			zap.Error(err),
		)
		return
	}

	subscriptions, err := p.subscriptions.ListActiveByEventType(ctx, eventType)
	if err != nil {
		logger.Error("failed to load subscriptions during fan-out",
			zap.String("eventType", eventType),
			zap.Error(err),
		)
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	now := p.now().UTC()
	records := make([]*domain.DeliveryRecord, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		nextAttemptAt := now
		records = append(records, &domain.DeliveryRecord{
			ID:             uuid.NewString(),
			SubscriptionID: subscription.ID,
			EventType:      eventType,
			Payload:        snapshot,
			Status:         domain.DeliveryStatusPending,
			Attempts:       0,
			NextAttemptAt:  &nextAttemptAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	if err := p.deliveries.CreateBatch(ctx, records); err != nil {
		logger.Error("failed to enqueue webhook deliveries",
			zap.String("eventType", eventType),
			zap.Int("subscribers", len(records)),
			zap.Error(err),
		)
		return
	}

	logger.Info("event fanned out",
		zap.String("eventType", eventType),
		zap.Int("deliveries", len(records)),
	)
}
