package repository

import (
	"context"
	"errors"
	"time"

	"github.com/quintaserp/webhook-service/internal/domain"
	"gorm.io/gorm"
)

type DeliveryListParams struct {
	Page     int
	PageSize int
}

type DeliveryRepository interface {
	CreateBatch(ctx context.Context, records []*domain.DeliveryRecord) error
	GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error)
	GetDue(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error)
	MarkDelivered(ctx context.Context, id string, at time.Time, responseStatus int, responseBody string) error
	MarkAttemptFailed(ctx context.Context, id string, status domain.DeliveryStatus, nextAttemptAt *time.Time, responseStatus int, responseBody string) error
	MarkTerminallyFailed(ctx context.Context, id string, responseBody string) error
	ListBySubscription(ctx context.Context, subscriptionID string, params DeliveryListParams) ([]domain.DeliveryRecord, int64, error)
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) CreateBatch(ctx context.Context, records []*domain.DeliveryRecord) error {
	models := make([]DeliveryModel, 0, len(records))
	modelIndexes := make([]int, 0, len(records))
	for i, record := range records {
		model := deliveryModelFromDomain(record)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(records) && records[idx] != nil {
			*records[idx] = *deliveryModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	var model DeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) GetDue(ctx context.Context, now time.Time, limit int) ([]domain.DeliveryRecord, error) {
	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND next_attempt_at <= ?",
			[]domain.DeliveryStatus{domain.DeliveryStatusPending, domain.DeliveryStatusRetrying}, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *deliveryModelToDomain(&models[i]))
	}

	return records, nil
}

func (r *GormDeliveryRepo) MarkDelivered(ctx context.Context, id string, at time.Time, responseStatus int, responseBody string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          domain.DeliveryStatusDelivered,
			"delivered_at":    at,
			"next_attempt_at": nil,
			"response_status": responseStatus,
			"response_body":   responseBody,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkAttemptFailed records one failed HTTP attempt: attempts is bumped in
// the same UPDATE as the status change so a crash mid-batch can never
// double-count an attempt on restart.
func (r *GormDeliveryRepo) MarkAttemptFailed(ctx context.Context, id string, status domain.DeliveryStatus, nextAttemptAt *time.Time, responseStatus int, responseBody string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          status,
			"attempts":        gorm.Expr("attempts + 1"),
			"next_attempt_at": nextAttemptAt,
			"response_status": responseStatus,
			"response_body":   responseBody,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkTerminallyFailed finalizes a record without touching attempts, used
// when the subscription is gone or inactive.
func (r *GormDeliveryRepo) MarkTerminallyFailed(ctx context.Context, id string, responseBody string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          domain.DeliveryStatusFailed,
			"next_attempt_at": nil,
			"response_body":   responseBody,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDeliveryRepo) ListBySubscription(ctx context.Context, subscriptionID string, params DeliveryListParams) ([]domain.DeliveryRecord, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("subscription_id = ?", subscriptionID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []DeliveryModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *deliveryModelToDomain(&models[i]))
	}

	return records, total, nil
}
