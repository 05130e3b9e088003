package inventory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Deduction is the stock movement of one Decrement.
type Deduction struct {
	Before      int
	After       int
	Backordered int
}

// StockStore decrements variant stock atomically.
type StockStore interface {
	Decrement(ctx context.Context, variantID int64, qty int) (Deduction, error)
}

type gormStockStore struct {
	db *gorm.DB
}

// NewStockStore returns a StockStore backed by inventory_variants.
func NewStockStore(db *gorm.DB) StockStore {
	return &gormStockStore{db: db}
}

// decrementSQL subtracts relative to the stored value, floors at zero and
// refuses a shortfall unless the variant allows backorders.
const decrementSQL = `UPDATE inventory_variants
SET stock = CASE WHEN stock >= ? THEN stock - ? ELSE 0 END, updated_at = ?
WHERE id = ? AND (stock >= ? OR allow_backorder)
RETURNING stock`

// Decrement removes qty units from the variant in one conditional update.
// The row is locked first so the reported Before matches the value the
// update started from; concurrent callers wait instead of failing.
func (s *gormStockStore) Decrement(ctx context.Context, variantID int64, qty int) (Deduction, error) {
	var out Deduction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.InventoryVariant
		err := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
			Select("id", "stock", "allow_backorder").
			Where("id = ?", variantID).
			First(&current).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock variant")
		}

		var after int
		err = tx.Raw(decrementSQL, qty, qty, time.Now().UTC(), variantID, qty).Row().Scan(&after)
		if errors.Is(err, sql.ErrNoRows) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "insufficient stock: have %d, need %d", current.Stock, qty)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update variant stock")
		}

		out = Deduction{Before: current.Stock, After: after}
		if qty > current.Stock {
			out.Backordered = qty - current.Stock
		}
		return nil
	})
	return out, err
}
