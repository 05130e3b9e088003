package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderStatusEvent is an append-only history row. The latest row always
// matches Order.Status.
type OrderStatusEvent struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index:idx_order_status_history_order"`
	Status    enums.OrderStatus `gorm:"column:status;type:order_status;not null"`
	Note      *string           `gorm:"column:note"`
	Actor     string            `gorm:"column:actor;not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusEvent) TableName() string {
	return "order_status_history"
}

func (e *OrderStatusEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
