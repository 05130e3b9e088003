package models

import "time"

// Product is the catalog entry variants hang off. Numeric ids keep the
// payment metadata tuples short.
type Product struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SKU        string    `gorm:"column:sku;not null;uniqueIndex:uq_products_sku"`
	Name       string    `gorm:"column:name;not null"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	CostCents  int64     `gorm:"column:cost_cents;not null;default:0"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
