package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

var (
	// ErrDuplicateTransaction means an order for the transaction id already exists.
	ErrDuplicateTransaction = errors.New("order already exists for transaction")
	// ErrDuplicateOrderNumber means the generated order number was taken.
	ErrDuplicateOrderNumber = errors.New("order number already taken")
)

var transactionConstraints = []string{
	"uq_orders_transaction_id",
	"uq_payments_transaction_id",
	"orders.transaction_id",
	"payments.transaction_id",
}

var orderNumberConstraints = []string{"uq_orders_order_number", "orders.order_number"}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(conn *gorm.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateAggregate inserts the order, its items, payments and status history in
// one transaction. A unique violation on a transaction id is reported as
// ErrDuplicateTransaction; nothing is written in that case.
func (r *repository) CreateAggregate(ctx context.Context, order *models.Order) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return err
		}
		for i := range order.Items {
			order.Items[i].OrderID = order.ID
		}
		for i := range order.Payments {
			order.Payments[i].OrderID = order.ID
		}
		for i := range order.StatusHistory {
			order.StatusHistory[i].OrderID = order.ID
		}
		if len(order.Items) > 0 {
			if err := tx.Create(&order.Items).Error; err != nil {
				return err
			}
		}
		if len(order.Payments) > 0 {
			if err := tx.Create(&order.Payments).Error; err != nil {
				return err
			}
		}
		if len(order.StatusHistory) > 0 {
			if err := tx.Create(&order.StatusHistory).Error; err != nil {
				return err
			}
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, transactionConstraints...):
		return ErrDuplicateTransaction
	case db.IsUniqueViolation(err, orderNumberConstraints...):
		return ErrDuplicateOrderNumber
	default:
		return err
	}
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.findDetail(ctx, "id = ?", id)
}

func (r *repository) FindByNumber(ctx context.Context, number string) (*models.Order, error) {
	return r.findDetail(ctx, "order_number = ?", number)
}

func (r *repository) findDetail(ctx context.Context, query string, arg any) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC, id ASC") }).
		Preload("Payments").
		Preload("StatusHistory", func(q *gorm.DB) *gorm.DB { return q.Order("created_at ASC") }).
		Where(query, arg).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ClaimStockAdjustment marks the order as stock-adjusted. Only the first
// caller gets true.
func (r *repository) ClaimStockAdjustment(ctx context.Context, orderID uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND stock_adjusted_at IS NULL", orderID).
		Updates(map[string]any{"stock_adjusted_at": now, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListPendingStockAdjustment returns orders whose stock step never ran,
// oldest first.
func (r *repository) ListPendingStockAdjustment(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []models.Order
	err := r.db.WithContext(ctx).
		Where("stock_adjusted_at IS NULL AND created_at < ?", createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repository) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus) (bool, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, from).
		Updates(map[string]any{"payment_status": to, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected != 1 {
		return false, nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{"status": to, "updated_at": now}).Error
	return err == nil, err
}

func (r *repository) AppendHistory(ctx context.Context, event *models.OrderStatusEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}
