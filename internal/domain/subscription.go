package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Subscription registers a third-party endpoint that wants signed callbacks
// for a single event type. Subscriptions are soft-deleted only: is_active
// flips to false and the delivery history stays intact.
type Subscription struct {
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

func (s *Subscription) Validate() error {
	if strings.TrimSpace(s.ClientID) == "" {
		return fmt.Errorf("%w: client id is required", ErrValidation)
	}
	if strings.TrimSpace(s.EventType) == "" {
		return fmt.Errorf("%w: event_type is required", ErrValidation)
	}
	if err := ValidateCallbackURL(s.URL); err != nil {
		return err
	}
	if strings.TrimSpace(s.Secret) == "" {
		return fmt.Errorf("%w: secret is required", ErrValidation)
	}
	if s.FailureCount < 0 {
		return fmt.Errorf("%w: failure count cannot be negative", ErrValidation)
	}
	return nil
}

// ValidateCallbackURL accepts absolute http/https URLs only.
func ValidateCallbackURL(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fmt.Errorf("%w: url is required", ErrValidation)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%w: invalid url format", ErrValidation)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: url scheme must be http or https", ErrValidation)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%w: url host is required", ErrValidation)
	}

	return nil
}
