package repository

import (
	"context"
	"errors"
	"time"

	"github.com/quintaserp/webhook-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionListParams struct {
	ClientID  string
	EventType *string
	IsActive  *bool
}

type SubscriptionRepository interface {
	Create(ctx context.Context, s *domain.Subscription) error
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	List(ctx context.Context, params SubscriptionListParams) ([]domain.Subscription, error)
	ListActiveByEventType(ctx context.Context, eventType string) ([]domain.Subscription, error)
	Deactivate(ctx context.Context, id string) (bool, error)
	RecordSuccess(ctx context.Context, id string, at time.Time) error
	IncrementFailureCount(ctx context.Context, id string, at time.Time) (int, error)
}

type GormSubscriptionRepo struct {
	db *gorm.DB
}

func NewGormSubscriptionRepo(db *gorm.DB) *GormSubscriptionRepo {
	return &GormSubscriptionRepo{db: db}
}

func (r *GormSubscriptionRepo) Create(ctx context.Context, s *domain.Subscription) error {
	model := subscriptionModelFromDomain(s)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if s != nil {
		*s = *subscriptionModelToDomain(model)
	}
	return nil
}

func (r *GormSubscriptionRepo) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	var model SubscriptionModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return subscriptionModelToDomain(&model), nil
}

func (r *GormSubscriptionRepo) List(ctx context.Context, params SubscriptionListParams) ([]domain.Subscription, error) {
	query := r.db.WithContext(ctx).
		Model(&SubscriptionModel{}).
		Where("client_id = ?", params.ClientID)

	if params.EventType != nil {
		query = query.Where("event_type = ?", *params.EventType)
	}
	if params.IsActive != nil {
		query = query.Where("is_active = ?", *params.IsActive)
	}

	var models []SubscriptionModel
	if err := query.Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	subscriptions := make([]domain.Subscription, 0, len(models))
	for i := range models {
		subscriptions = append(subscriptions, *subscriptionModelToDomain(&models[i]))
	}

	return subscriptions, nil
}

func (r *GormSubscriptionRepo) ListActiveByEventType(ctx context.Context, eventType string) ([]domain.Subscription, error) {
	var models []SubscriptionModel
	err := r.db.WithContext(ctx).
		Where("event_type = ? AND is_active = ?", eventType, true).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	subscriptions := make([]domain.Subscription, 0, len(models))
	for i := range models {
		subscriptions = append(subscriptions, *subscriptionModelToDomain(&models[i]))
	}

	return subscriptions, nil
}

// Deactivate flips is_active false and reports whether this call performed
// the flip. The conditional update makes the circuit-breaker transition
// happen exactly once even under concurrent dispatchers.
func (r *GormSubscriptionRepo) Deactivate(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&SubscriptionModel{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormSubscriptionRepo) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&SubscriptionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failure_count":   0,
			"last_success_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// IncrementFailureCount bumps the counter in a single UPDATE and returns the
// post-increment value, so the breaker decision never reads a stale count.
func (r *GormSubscriptionRepo) IncrementFailureCount(ctx context.Context, id string, at time.Time) (int, error) {
	var model SubscriptionModel
	result := r.db.WithContext(ctx).
		Model(&model).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "failure_count"}}}).
		Where("id = ?", id).
		Updates(map[string]any{
			"failure_count":   gorm.Expr("failure_count + 1"),
			"last_failure_at": at,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, domain.ErrNotFound
	}
	return model.FailureCount, nil
}
