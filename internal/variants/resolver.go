// Package variants resolves a line item to the concrete inventory unit and
// the cost basis recorded on the order.
package variants

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/lookup"
)

// Method records how a variant was found.
type Method string

const (
	MethodDirect     Method = "direct"
	MethodAttributes Method = "attributes"
	MethodNone       Method = "none"
)

// Ref identifies a line item's inventory unit, by id or by attributes.
type Ref struct {
	ProductID int64
	VariantID *int64
	Size      *string
	Color     *string
}

func (r Ref) String() string {
	variant := "-"
	if r.VariantID != nil {
		variant = fmt.Sprint(*r.VariantID)
	}
	return fmt.Sprintf("product=%d variant=%s size=%s color=%s", r.ProductID, variant, deref(r.Size), deref(r.Color))
}

func (r Ref) hasAttributes() bool {
	return r.Size != nil || r.Color != nil
}

// Resolution is the outcome of Resolve. Variant and Product are nil when not
// found; CostCents falls back from variant cost to product cost to zero.
type Resolution struct {
	Variant   *models.InventoryVariant
	Product   *models.Product
	CostCents int64
	Method    Method
}

func (r Resolution) Resolved() bool {
	return r.Variant != nil
}

// Resolver looks variants up with bounded retries.
type Resolver struct {
	repo   Repository
	policy lookup.Policy
}

func NewResolver(repo Repository, policy lookup.Policy) (*Resolver, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "variant repository required")
	}
	return &Resolver{repo: repo, policy: policy}, nil
}

// Resolve tries the direct variant id first (it must belong to the product),
// then the product's size/color pair. Not finding anything is not an error;
// only an exhausted transient failure is.
func (r *Resolver) Resolve(ctx context.Context, ref Ref) (Resolution, error) {
	res := Resolution{Method: MethodNone}

	if ref.ProductID > 0 {
		product, err := r.findProduct(ctx, ref.ProductID)
		if err != nil {
			return res, err
		}
		res.Product = product
	}

	if ref.VariantID != nil {
		variant, err := r.findVariant(ctx, *ref.VariantID)
		if err != nil {
			return res, err
		}
		if variant != nil && (ref.ProductID <= 0 || variant.ProductID == ref.ProductID) {
			res.Variant = variant
			res.Method = MethodDirect
		}
	}

	if res.Variant == nil && ref.ProductID > 0 && ref.hasAttributes() {
		variant, err := r.findByAttributes(ctx, ref)
		if err != nil {
			return res, err
		}
		if variant != nil {
			res.Variant = variant
			res.Method = MethodAttributes
		}
	}

	if res.Product == nil && res.Variant != nil {
		product, err := r.findProduct(ctx, res.Variant.ProductID)
		if err != nil {
			return res, err
		}
		res.Product = product
	}

	res.CostCents = costBasis(res)
	return res, nil
}

func (r *Resolver) findProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product *models.Product
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		found, err := r.repo.FindProduct(ctx, id)
		product = found
		return err
	})
	return orNotFound(product, err)
}

func (r *Resolver) findVariant(ctx context.Context, id int64) (*models.InventoryVariant, error) {
	var variant *models.InventoryVariant
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		found, err := r.repo.FindVariant(ctx, id)
		variant = found
		return err
	})
	return orNotFound(variant, err)
}

func (r *Resolver) findByAttributes(ctx context.Context, ref Ref) (*models.InventoryVariant, error) {
	var variant *models.InventoryVariant
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		found, err := r.repo.FindVariantByAttributes(ctx, ref.ProductID, trimmed(ref.Size), trimmed(ref.Color))
		variant = found
		return err
	})
	return orNotFound(variant, err)
}

func orNotFound[T any](v *T, err error) (*T, error) {
	if err == nil {
		return v, nil
	}
	if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
		return nil, nil
	}
	return nil, err
}

func costBasis(res Resolution) int64 {
	if res.Variant != nil && res.Variant.CostCents != nil {
		return *res.Variant.CostCents
	}
	if res.Product != nil {
		return res.Product.CostCents
	}
	return 0
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func deref(v *string) string {
	if v == nil {
		return "-"
	}
	return *v
}
