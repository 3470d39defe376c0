package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PlanFree       = "free"
	PlanStarter    = "starter"
	PlanQuickClips = "quickclips"
	PlanCreatorPro = "creatorpro"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusInactive = "inactive"
	SubscriptionStatusCanceled = "canceled"
)

const (
	PaymentMethodPayPal = "paypal"
	PaymentMethodKofi   = "ko-fi"
	PaymentMethodWise   = "wise"
	PaymentMethodManual = "manual"
)

// Subscription is a user's plan and credit allowance for a billing period.
// The current subscription is the newest active row of a user.
type Subscription struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        string     `gorm:"type:varchar(36);not null;index:idx_subscriptions_user_status,priority:1" json:"user_id" validate:"required"`
	Plan          string     `gorm:"type:varchar(20);not null;default:'free'" json:"plan" validate:"oneof=free starter quickclips creatorpro"`
	Status        string     `gorm:"type:varchar(20);not null;default:'active';index:idx_subscriptions_user_status,priority:2" json:"status" validate:"oneof=active inactive canceled"`
	CreditsUsed   int        `gorm:"not null;default:0" json:"credits_used" validate:"gte=0,ltefield=CreditsTotal"`
	CreditsTotal  int        `gorm:"not null;default:0" json:"credits_total" validate:"gte=0"`
	PaymentMethod string     `gorm:"type:varchar(20);not null;default:'manual'" json:"payment_method" validate:"oneof=paypal ko-fi wise manual"`
	StartDate     time.Time  `gorm:"not null" json:"start_date"`
	EndDate       *time.Time `gorm:"default:null" json:"end_date,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns a UUID when none is set.
func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

func (s *Subscription) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

func (s *Subscription) CreditsRemaining() int {
	if s.CreditsUsed >= s.CreditsTotal {
		return 0
	}
	return s.CreditsTotal - s.CreditsUsed
}
