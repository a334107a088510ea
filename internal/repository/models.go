package repository

import (
	"encoding/json"
	"time"

	"github.com/quintaserp/webhook-service/internal/domain"
)

// SubscriptionModel is the persistence model for webhook_subscriptions.
type SubscriptionModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	ClientID      string `gorm:"type:varchar(64);not null"`
	EventType     string `gorm:"type:varchar(100);not null"`
	URL           string `gorm:"type:text;not null"`
	Secret        string `gorm:"type:varchar(255);not null"`
	IsActive      bool   `gorm:"not null;default:true"`
	CreatedBy     string `gorm:"type:varchar(64)"`
	LastSuccessAt *time.Time
	LastFailureAt *time.Time
	FailureCount  int `gorm:"not null;default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (SubscriptionModel) TableName() string {
	return "webhook_subscriptions"
}

// DeliveryModel is the persistence model for webhook_deliveries.
type DeliveryModel struct {
	ID             string                `gorm:"type:uuid;primaryKey"`
	SubscriptionID string                `gorm:"type:uuid;not null"`
	EventType      string                `gorm:"type:varchar(100);not null"`
	Payload        json.RawMessage       `gorm:"type:jsonb;not null"`
	Status         domain.DeliveryStatus `gorm:"type:varchar(20);not null"`
	Attempts       int                   `gorm:"not null;default:0"`
	NextAttemptAt  *time.Time
	DeliveredAt    *time.Time
	ResponseStatus *int    `gorm:"type:int"`
	ResponseBody   *string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (DeliveryModel) TableName() string {
	return "webhook_deliveries"
}

func subscriptionModelFromDomain(s *domain.Subscription) *SubscriptionModel {
	if s == nil {
		return nil
	}

	return &SubscriptionModel{
		ID:            s.ID,
		ClientID:      s.ClientID,
		EventType:     s.EventType,
		URL:           s.URL,
		Secret:        s.Secret,
		IsActive:      s.IsActive,
		CreatedBy:     s.CreatedBy,
		LastSuccessAt: s.LastSuccessAt,
		LastFailureAt: s.LastFailureAt,
		FailureCount:  s.FailureCount,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func subscriptionModelToDomain(m *SubscriptionModel) *domain.Subscription {
	if m == nil {
		return nil
	}

	return &domain.Subscription{
		ID:            m.ID,
		ClientID:      m.ClientID,
		EventType:     m.EventType,
		URL:           m.URL,
		Secret:        m.Secret,
		IsActive:      m.IsActive,
		CreatedBy:     m.CreatedBy,
		LastSuccessAt: m.LastSuccessAt,
		LastFailureAt: m.LastFailureAt,
		FailureCount:  m.FailureCount,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func deliveryModelFromDomain(r *domain.DeliveryRecord) *DeliveryModel {
	if r == nil {
		return nil
	}

	return &DeliveryModel{
		ID:             r.ID,
		SubscriptionID: r.SubscriptionID,
		EventType:      r.EventType,
		Payload:        r.Payload,
		Status:         r.Status,
		Attempts:       r.Attempts,
		NextAttemptAt:  r.NextAttemptAt,
		DeliveredAt:    r.DeliveredAt,
		ResponseStatus: r.ResponseStatus,
		ResponseBody:   r.ResponseBody,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryModel) *domain.DeliveryRecord {
	if m == nil {
		return nil
	}

	return &domain.DeliveryRecord{
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		EventType:      m.EventType,
		Payload:        m.Payload,
		Status:         m.Status,
		Attempts:       m.Attempts,
		NextAttemptAt:  m.NextAttemptAt,
		DeliveredAt:    m.DeliveredAt,
		ResponseStatus: m.ResponseStatus,
		ResponseBody:   m.ResponseBody,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}
