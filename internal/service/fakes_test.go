package service

import (
	"context"
	"sync"
	"time"

	"github.com/quintaserp/webhook-service/internal/domain"
	"github.com/quintaserp/webhook-service/internal/repository"
	"github.com/quintaserp/webhook-service/internal/sender"
)

type fakeSubscriptionRepo struct {
	createFn                func(ctx context.Context, s *domain.Subscription) error
	getByIDFn               func(ctx context.Context, id string) (*domain.Subscription, error)
	listFn                  func(ctx context.Context, params repository.SubscriptionListParams) ([]domain.Subscription, error)
	listActiveByEventTypeFn func(ctx context.Context, eventType string) ([]domain.Subscription, error)
	deactivateFn            func(ctx context.Context, id string) (bool, error)
	recordSuccessFn         func(ctx context.Context, id string, at time.Time) error
	incrementFailureCountFn func(ctx context.Context, id string, at time.Time) (int, error)
}

func (f *fakeSubscriptionRepo) Create(ctx context.Context, s *domain.Subscription) error {
	if f.createFn != nil {
		return f.createFn(ctx, s)
	}
	return nil
}

func (f *fakeSubscriptionRepo) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSubscriptionRepo) List(ctx context.Context, params repository.SubscriptionListParams) ([]domain.Subscription, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, nil
}

func (f *fakeSubscriptionRepo) ListActiveByEventType(ctx context.Context, eventType string) ([]domain.Subscription, error) {
	if f.listActiveByEventTypeFn != nil {
		return f.listActiveByEventTypeFn(ctx, eventType)
	}
	return nil, nil
}

func (f *fakeSubscriptionRepo) Deactivate(ctx context.Context, id string) (bool, error) {
	if f.deactivateFn != nil {
		return f.deactivateFn(ctx, id)
	}
	return false, nil
}

func (f *fakeSubscriptionRepo) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	if f.recordSuccessFn != nil {
		return f.recordSuccessFn(ctx, id, at)
	}
	return nil
}

func (f *fakeSubscriptionRepo) IncrementFailureCount(ctx context.Context, id string, at time.Time) (int, error) {
	if f.incrementFailureCountFn != nil {
		return f.incrementFailureCountFn(ctx, id, at)
	}
	return 1, nil
}

type fakeDeliveryRepo struct {
	createBatchFn          func(ctx context.Context, records []*domain.DeliveryRecord) error
	getByIDFn              func(ctx context.Context, id string) (*domain.DeliveryRecord, error)
	getDueFn               func(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error)
	markDeliveredFn        func(ctx context.Context, id string, at time.Time, responseStatus int, responseBody string) error
	markAttemptFailedFn    func(ctx context.Context, id string, status domain.DeliveryStatus, nextAttemptAt *time.Time, responseStatus int, responseBody string) error
	markTerminallyFailedFn func(ctx context.Context, id string, responseBody string) error
	listBySubscriptionFn   func(ctx context.Context, subscriptionID string, params repository.DeliveryListParams) ([]domain.DeliveryRecord, int64, error)
}

func (f *fakeDeliveryRepo) CreateBatch(ctx context.Context, records []*domain.DeliveryRecord) error {
	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, records)
	}
	return nil
}

func (f *fakeDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeliveryRepo) GetDue(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error) {
	if f.getDueFn != nil {
		return f.getDueFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) MarkDelivered(ctx context.Context, id string, at time.Time, responseStatus int, responseBody string) error {
	if f.markDeliveredFn != nil {
		return f.markDeliveredFn(ctx, id, at, responseStatus, responseBody)
	}
	return nil
}

func (f *fakeDeliveryRepo) MarkAttemptFailed(ctx context.Context, id string, status domain.DeliveryStatus, nextAttemptAt *time.Time, responseStatus int, responseBody string) error {
	if f.markAttemptFailedFn != nil {
		return f.markAttemptFailedFn(ctx, id, status, nextAttemptAt, responseStatus, responseBody)
	}
	return nil
}

func (f *fakeDeliveryRepo) MarkTerminallyFailed(ctx context.Context, id string, responseBody string) error {
	if f.markTerminallyFailedFn != nil {
		return f.markTerminallyFailedFn(ctx, id, responseBody)
	}
	return nil
}

func (f *fakeDeliveryRepo) ListBySubscription(ctx context.Context, subscriptionID string, params repository.DeliveryListParams) ([]domain.DeliveryRecord, int64, error) {
	if f.listBySubscriptionFn != nil {
		return f.listBySubscriptionFn(ctx, subscriptionID, params)
	}
	return nil, 0, nil
}

type fakeSender struct {
	deliverFn func(ctx context.Context, url string, eventType string, payload []byte, signatureHeader string) (*sender.Response, error)
}

func (f *fakeSender) Deliver(ctx context.Context, url string, eventType string, payload []byte, signatureHeader string) (*sender.Response, error) {
	if f.deliverFn != nil {
		return f.deliverFn(ctx, url, eventType, payload, signatureHeader)
	}
	return &sender.Response{StatusCode: 200}, nil
}

type fakeTickLock struct {
	tryAcquireFn func(ctx context.Context) (ReleaseFunc, bool, error)
}

func (f *fakeTickLock) TryAcquire(ctx context.Context) (ReleaseFunc, bool, error) {
	if f.tryAcquireFn != nil {
		return f.tryAcquireFn(ctx)
	}
	return func(context.Context) error { return nil }, true, nil
}

// memStore is a stateful in-memory store used by multi-tick dispatcher
// scenarios.
type memStore struct {
	mu            sync.Mutex
	subscriptions map[string]*domain.Subscription
	deliveries    map[string]*domain.DeliveryRecord
}

func newMemStore() *memStore {
	return &memStore{
		subscriptions: make(map[string]*domain.Subscription),
		deliveries:    make(map[string]*domain.DeliveryRecord),
	}
}

func (m *memStore) addSubscription(s domain.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := s
	m.subscriptions[s.ID] = &copied
}

func (m *memStore) addDelivery(r domain.DeliveryRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := r
	m.deliveries[r.ID] = &copied
}

func (m *memStore) subscription(id string) domain.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.subscriptions[id]
}

func (m *memStore) delivery(id string) domain.DeliveryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.deliveries[id]
}

func (m *memStore) subscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Subscription, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			s, ok := m.subscriptions[id]
			if !ok {
				return nil, domain.ErrNotFound
			}
			copied := *s
			return &copied, nil
		},
		recordSuccessFn: func(ctx context.Context, id string, at time.Time) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			s, ok := m.subscriptions[id]
			if !ok {
				return domain.ErrNotFound
			}
			s.FailureCount = 0
			successAt := at
			s.LastSuccessAt = &successAt
			return nil
		},
		incrementFailureCountFn: func(ctx context.Context, id string, at time.Time) (int, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			s, ok := m.subscriptions[id]
			if !ok {
				return 0, domain.ErrNotFound
			}
			s.FailureCount++
			failureAt := at
			s.LastFailureAt = &failureAt
			return s.FailureCount, nil
		},
		deactivateFn: func(ctx context.Context, id string) (bool, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			s, ok := m.subscriptions[id]
			if !ok || !s.IsActive {
				return false, nil
			}
			s.IsActive = false
			return true, nil
		},
	}
}

func (m *memStore) deliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{
		getDueFn: func(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			due := make([]domain.DeliveryRecord, 0)
			for _, r := range m.deliveries {
				if r.Status.IsTerminal() || r.NextAttemptAt == nil || r.NextAttemptAt.After(now) {
					continue
				}
				due = append(due, *r)
				if len(due) == limit {
					break
				}
			}
			return due, nil
		},
		markDeliveredFn: func(ctx context.Context, id string, at time.Time, responseStatus int, responseBody string) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			r := m.deliveries[id]
			r.Status = domain.DeliveryStatusDelivered
			deliveredAt := at
			r.DeliveredAt = &deliveredAt
			r.NextAttemptAt = nil
			r.ResponseStatus = &responseStatus
			r.ResponseBody = &responseBody
			return nil
		},
		markAttemptFailedFn: func(ctx context.Context, id string, status domain.DeliveryStatus, nextAttemptAt *time.Time, responseStatus int, responseBody string) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			r := m.deliveries[id]
			r.Status = status
			r.Attempts++
			r.NextAttemptAt = nextAttemptAt
			r.ResponseStatus = &responseStatus
			r.ResponseBody = &responseBody
			return nil
		},
		markTerminallyFailedFn: func(ctx context.Context, id string, responseBody string) error {
			m.mu.Lock()
			defer m.mu.Unlock()
			r := m.deliveries[id]
			r.Status = domain.DeliveryStatusFailed
			r.NextAttemptAt = nil
			r.ResponseBody = &responseBody
			return nil
		},
	}
}
