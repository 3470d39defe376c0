package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusReversed  = "reversed"
)

// Payment is a single charge. OrderID is our correlation key (VOD-YYYYMMDD-NNNN
// for PayPal checkouts, KF-... for Ko-fi), TransactionID is the provider's.
type Payment struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID         string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	SubscriptionID *string   `gorm:"type:varchar(36);index;default:null" json:"subscription_id,omitempty"`
	Amount         string    `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	Currency       string    `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	PaymentMethod  string    `gorm:"type:varchar(20);not null" json:"payment_method"`
	Status         string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	OrderID        string    `gorm:"type:varchar(100);index" json:"order_id"`
	TransactionID  string    `gorm:"type:varchar(191)" json:"transaction_id"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns a UUID when none is set.
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
