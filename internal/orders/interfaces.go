package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/variants"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for the order aggregate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateAggregate(ctx context.Context, order *models.Order) error
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByNumber(ctx context.Context, number string) (*models.Order, error)
	FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	ClaimStockAdjustment(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error)
	ListPendingStockAdjustment(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error)
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus) (bool, error)
	AppendHistory(ctx context.Context, event *models.OrderStatusEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// VariantResolver maps decoded line items to inventory variants.
type VariantResolver interface {
	Resolve(ctx context.Context, ref variants.Ref) (variants.Resolution, error)
}

// StockDeducter applies stock deductions for a materialized order.
type StockDeducter interface {
	Deduct(ctx context.Context, requests []inventory.Request) inventory.Result
}

// Notifier records operator notifications.
type Notifier interface {
	Notify(ctx context.Context, draft notifications.Draft) notifications.Result
}
