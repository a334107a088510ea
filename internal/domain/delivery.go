package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DeliveryStatus represents the lifecycle state of a webhook delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusRetrying  DeliveryStatus = "RETRYING"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusFailed    DeliveryStatus = "FAILED"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusRetrying, DeliveryStatusDelivered, DeliveryStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further attempts may touch the record.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// MaxResponseBodyChars bounds the subscriber response stored per attempt.
const MaxResponseBodyChars = 2000

func TruncateResponseBody(body string) string {
	runes := []rune(body)
	if len(runes) <= MaxResponseBodyChars {
		return body
	}
	return string(runes[:MaxResponseBodyChars])
}

// DeliveryRecord is one attempt-tracked delivery of an event to a single
// subscription. The payload is an immutable snapshot captured at publish
// time; the dispatcher signs and sends exactly these bytes. NextAttemptAt is
// null once the record reaches a terminal status.
type DeliveryRecord struct {
	ID             string          `gorm:"type:uuid;primaryKey"`
	SubscriptionID string          `gorm:"type:uuid;not null"`
	EventType      string          `gorm:"type:varchar(100);not null"`
	Payload        json.RawMessage `gorm:"type:jsonb;not null"`
	Status         DeliveryStatus  `gorm:"type:varchar(20);not null"`
	Attempts       int             `gorm:"not null;default:0"`
	NextAttemptAt  *time.Time
	DeliveredAt    *time.Time
	ResponseStatus *int    `gorm:"type:int"`
	ResponseBody   *string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *DeliveryRecord) Validate() error {
	if strings.TrimSpace(r.SubscriptionID) == "" {
		return fmt.Errorf("%w: subscription id is required", ErrValidation)
	}
	if strings.TrimSpace(r.EventType) == "" {
		return fmt.Errorf("%w: event_type is required", ErrValidation)
	}
	if len(r.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrValidation)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid delivery status %q", ErrValidation, r.Status)
	}
	if r.Attempts < 0 {
		return fmt.Errorf("%w: attempts cannot be negative", ErrValidation)
	}
	return nil
}
