package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderDetail is the operator-facing view of an order aggregate.
type OrderDetail struct {
	ID             uuid.UUID           `json:"id"`
	OrderNumber    string              `json:"order_number"`
	TransactionID  string              `json:"transaction_id"`
	Status         enums.OrderStatus   `json:"status"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	Currency       string              `json:"currency"`
	SubtotalCents  int64               `json:"subtotal_cents"`
	TaxCents       int64               `json:"tax_cents"`
	ShippingCents  int64               `json:"shipping_cents"`
	DiscountCents  int64               `json:"discount_cents"`
	TotalCents     int64               `json:"total_cents"`
	ChargedCents   int64               `json:"amount_charged_cents"`
	ShippingMethod *string             `json:"shipping_method,omitempty"`
	CustomerID     *string             `json:"customer_id,omitempty"`
	CustomerEmail  *string             `json:"customer_email,omitempty"`
	Shipping       ShippingView        `json:"shipping"`
	AddressSource  string              `json:"address_source"`
	NeedsReview    bool                `json:"needs_review"`
	ReviewReasons  []string            `json:"review_reasons,omitempty"`
	StockAdjusted  bool                `json:"stock_adjusted"`
	Items          []ItemView          `json:"items"`
	Payments       []PaymentView       `json:"payments"`
	History        []HistoryView       `json:"history"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type ShippingView struct {
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
	Phone      *string `json:"phone,omitempty"`
}

type ItemView struct {
	ID             uuid.UUID `json:"id"`
	ProductID      *int64    `json:"product_id,omitempty"`
	VariantID      *int64    `json:"variant_id,omitempty"`
	Description    string    `json:"description"`
	Size           *string   `json:"size,omitempty"`
	Color          *string   `json:"color,omitempty"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	LineTotalCents int64     `json:"line_total_cents"`
	CostPriceCents int64     `json:"cost_price_cents"`
	Synthetic      bool      `json:"synthetic,omitempty"`
}

type PaymentView struct {
	TransactionID string              `json:"transaction_id"`
	AmountCents   int64               `json:"amount_cents"`
	Currency      string              `json:"currency"`
	Status        enums.PaymentStatus `json:"status"`
	Method        enums.PaymentMethod `json:"method"`
	CreatedAt     time.Time           `json:"created_at"`
}

type HistoryView struct {
	Status    enums.OrderStatus `json:"status"`
	Note      *string           `json:"note,omitempty"`
	Actor     string            `json:"actor"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewOrderDetail maps a loaded aggregate to its API view.
func NewOrderDetail(order *models.Order) OrderDetail {
	detail := OrderDetail{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		TransactionID:  order.TransactionID,
		Status:         order.Status,
		PaymentStatus:  order.PaymentStatus,
		Currency:       order.Currency,
		SubtotalCents:  order.SubtotalCents,
		TaxCents:       order.TaxCents,
		ShippingCents:  order.ShippingCents,
		DiscountCents:  order.DiscountCents,
		TotalCents:     order.TotalCents,
		ChargedCents:   order.AmountChargedCents,
		ShippingMethod: order.ShippingMethod,
		CustomerID:     order.CustomerID,
		CustomerEmail:  order.CustomerEmail,
		Shipping:       ShippingView(order.Shipping),
		AddressSource:  order.AddressSource,
		NeedsReview:    order.NeedsReview(),
		ReviewReasons:  order.ReviewReasons,
		StockAdjusted:  order.StockAdjustedAt != nil,
		Items:          make([]ItemView, 0, len(order.Items)),
		Payments:       make([]PaymentView, 0, len(order.Payments)),
		History:        make([]HistoryView, 0, len(order.StatusHistory)),
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
	for _, item := range order.Items {
		detail.Items = append(detail.Items, ItemView{
			ID:             item.ID,
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Description:    item.Description,
			Size:           item.Size,
			Color:          item.Color,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
			CostPriceCents: item.CostPriceCents,
			Synthetic:      item.Synthetic,
		})
	}
	for _, p := range order.Payments {
		detail.Payments = append(detail.Payments, PaymentView{
			TransactionID: p.TransactionID,
			AmountCents:   p.AmountCents,
			Currency:      p.Currency,
			Status:        p.Status,
			Method:        p.Method,
			CreatedAt:     p.CreatedAt,
		})
	}
	for _, h := range order.StatusHistory {
		detail.History = append(detail.History, HistoryView{
			Status:    h.Status,
			Note:      h.Note,
			Actor:     h.Actor,
			CreatedAt: h.CreatedAt,
		})
	}
	return detail
}
