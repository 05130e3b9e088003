package variants

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Repository reads the catalog. Missing rows surface as CodeNotFound.
type Repository interface {
	FindProduct(ctx context.Context, id int64) (*models.Product, error)
	FindVariant(ctx context.Context, id int64) (*models.InventoryVariant, error)
	FindVariantByAttributes(ctx context.Context, productID int64, size, color *string) (*models.InventoryVariant, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, mapLookupError(err, "product")
	}
	return &product, nil
}

func (r *repository) FindVariant(ctx context.Context, id int64) (*models.InventoryVariant, error) {
	var variant models.InventoryVariant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&variant).Error; err != nil {
		return nil, mapLookupError(err, "variant")
	}
	return &variant, nil
}

// FindVariantByAttributes matches size and color case-insensitively; a nil
// attribute only matches variants without that attribute.
func (r *repository) FindVariantByAttributes(ctx context.Context, productID int64, size, color *string) (*models.InventoryVariant, error) {
	query := r.db.WithContext(ctx).Where("product_id = ?", productID)
	query = matchAttribute(query, "size", size)
	query = matchAttribute(query, "color", color)

	var variant models.InventoryVariant
	if err := query.Order("id ASC").First(&variant).Error; err != nil {
		return nil, mapLookupError(err, "variant")
	}
	return &variant, nil
}

func matchAttribute(query *gorm.DB, column string, value *string) *gorm.DB {
	if value == nil {
		return query.Where(column + " IS NULL")
	}
	return query.Where("LOWER("+column+") = LOWER(?)", *value)
}

func mapLookupError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup "+what)
}
