package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Payment is one settlement tied to an order. TransactionID is globally unique.
type Payment struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index:idx_payments_order"`
	TransactionID string              `gorm:"column:transaction_id;not null;uniqueIndex:uq_payments_transaction_id"`
	AmountCents   int64               `gorm:"column:amount_cents;not null"`
	Currency      string              `gorm:"column:currency;not null"`
	Status        enums.PaymentStatus `gorm:"column:status;type:payment_status;not null"`
	Method        enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
