package models

import "time"

// InventoryVariant is a sellable size/color unit of a product.
type InventoryVariant struct {
	ID                int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ProductID         int64     `gorm:"column:product_id;not null;index:idx_inventory_variants_product"`
	SKU               string    `gorm:"column:sku;not null;uniqueIndex:uq_inventory_variants_sku"`
	Size              *string   `gorm:"column:size"`
	Color             *string   `gorm:"column:color"`
	Stock             int       `gorm:"column:stock;not null;default:0"`
	LowStockThreshold int       `gorm:"column:low_stock_threshold;not null;default:0"`
	AllowBackorder    bool      `gorm:"column:allow_backorder;not null;default:false"`
	CostCents         *int64    `gorm:"column:cost_cents"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
