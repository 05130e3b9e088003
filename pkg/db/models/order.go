package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ShippingSnapshot is the address captured at order time.
type ShippingSnapshot struct {
	FirstName  string  `gorm:"column:first_name"`
	LastName   string  `gorm:"column:last_name"`
	Line1      string  `gorm:"column:line1"`
	Line2      *string `gorm:"column:line2"`
	City       string  `gorm:"column:city"`
	State      string  `gorm:"column:state"`
	PostalCode string  `gorm:"column:postal_code"`
	Country    string  `gorm:"column:country"`
	Phone      *string `gorm:"column:phone"`
}

// Order is the durable record of a settled sale. Exactly one exists per
// gateway transaction id.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber        string              `gorm:"column:order_number;not null;uniqueIndex:uq_orders_order_number"`
	TransactionID      string              `gorm:"column:transaction_id;not null;uniqueIndex:uq_orders_transaction_id"`
	CustomerID         *string             `gorm:"column:customer_id"`
	CustomerEmail      *string             `gorm:"column:customer_email"`
	Currency           string              `gorm:"column:currency;not null"`
	SubtotalCents      int64               `gorm:"column:subtotal_cents;not null"`
	TaxCents           int64               `gorm:"column:tax_cents;not null;default:0"`
	ShippingCents      int64               `gorm:"column:shipping_cents;not null;default:0"`
	DiscountCents      int64               `gorm:"column:discount_cents;not null;default:0"`
	TotalCents         int64               `gorm:"column:total_cents;not null"`
	AmountChargedCents int64               `gorm:"column:amount_charged_cents;not null"`
	ShippingMethod     *string             `gorm:"column:shipping_method"`
	Status             enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	Shipping           ShippingSnapshot    `gorm:"embedded;embeddedPrefix:ship_"`
	AddressID          *uuid.UUID          `gorm:"column:address_id;type:uuid"`
	AddressSource      string              `gorm:"column:address_source;not null"`
	ReviewReasons      []string            `gorm:"column:review_reasons;type:jsonb;serializer:json"`
	StockAdjustedAt    *time.Time          `gorm:"column:stock_adjusted_at"`
	Items              []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments           []Payment           `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory      []OrderStatusEvent  `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// NeedsReview reports whether the order was materialized from degraded data.
func (o Order) NeedsReview() bool {
	return len(o.ReviewReasons) > 0
}
