package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quintaserp/webhook-service/internal/domain"
	"github.com/quintaserp/webhook-service/internal/observability"
	"github.com/quintaserp/webhook-service/internal/repository"
	"github.com/quintaserp/webhook-service/internal/sender"
	"github.com/quintaserp/webhook-service/internal/signature"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDispatchInterval = 30 * time.Second
	defaultBatchSize        = 50
	defaultMaxAttempts      = 3
	defaultFailureThreshold = 10
	defaultConcurrency      = 8

	// backoffBase yields 5s, 25s, 125s for attempts 1, 2, 3.
	backoffBase = 5

	subscriptionInactiveReason = "Subscription inactive or deleted"
)

// ReleaseFunc releases a held tick lock.
type ReleaseFunc func(ctx context.Context) error

// TickLock serializes dispatcher ticks across service instances.
type TickLock interface {
	TryAcquire(ctx context.Context) (ReleaseFunc, bool, error)
}

type DispatcherOptions struct {
	Interval         time.Duration
	BatchSize        int
	MaxAttempts      int
	FailureThreshold int
	Concurrency      int
}

// Dispatcher is the periodic delivery worker. Every tick it pulls a bounded
// batch of due deliveries (oldest due first), posts each signed payload to
// its subscriber, and advances delivery and subscription state. Deliveries
// for different subscriptions run concurrently; deliveries for the same
// subscription run serially within a tick.
type Dispatcher struct {
	deliveries    repository.DeliveryRepository
	subscriptions repository.SubscriptionRepository
	sender        sender.Sender
	lock          TickLock
	logger        *zap.Logger
	metrics       *observability.Metrics
	opts          DispatcherOptions
	now           func() time.Time
}

func NewDispatcher(
	deliveries repository.DeliveryRepository,
	subscriptions repository.SubscriptionRepository,
	webhookSender sender.Sender,
	lock TickLock,
	opts DispatcherOptions,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if subscriptions == nil {
		return nil, fmt.Errorf("subscription repository is required")
	}
	if webhookSender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultDispatchInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		deliveries:    deliveries,
		subscriptions: subscriptions,
		sender:        webhookSender,
		lock:          lock,
		logger:        logger,
		opts:          opts,
		now:           time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Start runs ticks until context cancellation. A failed tick is logged and
// the next tick naturally retries the same due records, because state is
// only advanced per processed record.
func (d *Dispatcher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial tick so already-due deliveries do not wait for the
	// first ticker edge.
	if err := d.Tick(ctx); err != nil && ctx.Err() == nil {
		d.logger.Error("dispatcher initial tick failed", zap.Error(err))
	}

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				d.logger.Error("dispatcher tick failed", zap.Error(err))
			}
		}
	}
}

// Tick processes one batch of due deliveries. Each tick carries its own
// correlation id so a batch's log entries can be read as one unit.
func (d *Dispatcher) Tick(ctx context.Context) error {
	ctx = observability.WithCorrelationID(ctx, uuid.NewString())
	logger := observability.WithContextLogger(d.logger, ctx)

	if d.lock != nil {
		release, acquired, err := d.lock.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("failed to acquire dispatch lock: %w", err)
		}
		if !acquired {
			logger.Debug("skipping tick: another dispatcher holds the lock")
			return nil
		}
		defer func() {
			if err := release(ctx); err != nil {
				logger.Warn("failed to release dispatch lock", zap.Error(err))
			}
		}()
	}

	due, err := d.deliveries.GetDue(ctx, d.now().UTC(), d.opts.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch due deliveries: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	logger.Info("processing due deliveries", zap.Int("count", len(due)))

	// Group by subscription: groups run concurrently, records within a
	// group serially, so per-subscription failure accounting stays ordered.
	groups := groupBySubscription(due)

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Concurrency)
	for _, group := range groups {
		group := group
		g.Go(func() error {
			for i := range group {
				if err := d.processDelivery(groupCtx, &group[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// processDelivery drives one record through a single attempt. It returns an
// error only for storage failures; delivery failures are recorded state, not
// errors.
func (d *Dispatcher) processDelivery(ctx context.Context, record *domain.DeliveryRecord) error {
	if d.metrics != nil {
		d.metrics.IncDispatcherInFlight()
		defer d.metrics.DecDispatcherInFlight()
	}

	subscription, err := d.subscriptions.GetByID(ctx, record.SubscriptionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to resolve subscription: %w", err)
	}

	if subscription == nil || !subscription.IsActive {
		// Terminal and immediate: no attempt is made, attempts untouched.
		if err := d.deliveries.MarkTerminallyFailed(ctx, record.ID, subscriptionInactiveReason); err != nil {
			return fmt.Errorf("failed to finalize orphaned delivery: %w", err)
		}
		if d.metrics != nil {
			d.metrics.IncDeliveryFailed(record.EventType, "subscription_inactive")
		}
		return nil
	}

	signatureHeader := signature.Header(record.Payload, subscription.Secret)

	attemptStart := d.now()
	response, sendErr := d.sender.Deliver(ctx, subscription.URL, record.EventType, record.Payload, signatureHeader)
	if d.metrics != nil {
		d.metrics.ObserveDeliveryAttemptDuration(record.EventType, d.now().Sub(attemptStart))
	}

	if sendErr == nil && response.Success() {
		now := d.now().UTC()
		if err := d.deliveries.MarkDelivered(ctx, record.ID, now, response.StatusCode, domain.TruncateResponseBody(response.Body)); err != nil {
			return fmt.Errorf("failed to mark delivery delivered: %w", err)
		}
		if err := d.subscriptions.RecordSuccess(ctx, subscription.ID, now); err != nil {
			return fmt.Errorf("failed to record subscription success: %w", err)
		}
		if d.metrics != nil {
			d.metrics.IncDelivered(record.EventType)
		}
		return nil
	}

	// Transport errors and non-2xx responses drive retries identically;
	// only the recorded status/body differs.
	responseStatus := 0
	responseBody := ""
	if sendErr != nil {
		responseBody = sendErr.Error()
	} else {
		responseStatus = response.StatusCode
		responseBody = response.Body
	}

	return d.recordFailure(ctx, record, subscription, responseStatus, domain.TruncateResponseBody(responseBody))
}

func (d *Dispatcher) recordFailure(ctx context.Context, record *domain.DeliveryRecord, subscription *domain.Subscription, responseStatus int, responseBody string) error {
	now := d.now().UTC()
	attempts := record.Attempts + 1

	status := domain.DeliveryStatusRetrying
	var nextAttemptAt *time.Time
	if attempts >= d.opts.MaxAttempts {
		status = domain.DeliveryStatusFailed
	} else {
		next := now.Add(backoffDelay(attempts))
		nextAttemptAt = &next
	}

	if err := d.deliveries.MarkAttemptFailed(ctx, record.ID, status, nextAttemptAt, responseStatus, responseBody); err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	if d.metrics != nil {
		if status == domain.DeliveryStatusFailed {
			d.metrics.IncDeliveryFailed(record.EventType, "attempts_exhausted")
		} else {
			d.metrics.IncRetryScheduled(record.EventType)
		}
	}

	failureCount, err := d.subscriptions.IncrementFailureCount(ctx, subscription.ID, now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to increment subscription failure count: %w", err)
	}

	if failureCount >= d.opts.FailureThreshold {
		tripped, err := d.subscriptions.Deactivate(ctx, subscription.ID)
		if err != nil {
			return fmt.Errorf("failed to deactivate subscription: %w", err)
		}
		if tripped {
			observability.WithContextLogger(d.logger, ctx).Warn("subscription deactivated after repeated failures",
				zap.String("subscriptionId", subscription.ID),
				zap.Int("failureCount", failureCount),
			)
			if d.metrics != nil {
				d.metrics.IncBreakerTripped()
			}
		}
	}

	return nil
}

// backoffDelay returns 5^attempts seconds.
func backoffDelay(attempts int) time.Duration {
	delay := time.Second
	for i := 0; i < attempts; i++ {
		delay *= backoffBase
	}
	return delay
}

func groupBySubscription(records []domain.DeliveryRecord) [][]domain.DeliveryRecord {
	index := make(map[string]int, len(records))
	groups := make([][]domain.DeliveryRecord, 0, len(records))
	for _, record := range records {
		i, ok := index[record.SubscriptionID]
		if !ok {
			i = len(groups)
			index[record.SubscriptionID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], record)
	}
	return groups
}
