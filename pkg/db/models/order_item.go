package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OrderItem snapshots one purchased line. ProductID is nil only for the
// synthetic line written when itemization could not be recovered.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index:idx_order_items_order"`
	ProductID      *int64    `gorm:"column:product_id"`
	VariantID      *int64    `gorm:"column:variant_id"`
	Description    string    `gorm:"column:description;not null"`
	Size           *string   `gorm:"column:size"`
	Color          *string   `gorm:"column:color"`
	Quantity       int       `gorm:"column:quantity;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	LineTotalCents int64     `gorm:"column:line_total_cents;not null"`
	CostPriceCents int64     `gorm:"column:cost_price_cents;not null;default:0"`
	Synthetic      bool      `gorm:"column:synthetic;not null;default:false"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
