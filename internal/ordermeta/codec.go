// Package ordermeta encodes order contents into the flat key/value metadata a
// payment gateway echoes back on its events, and decodes it tolerantly.
//
// The items value is a comma-separated list of
// productId:quantity:unitPrice:variantId:size:color tuples. Absent optional
// fields are written as Sentinel so positions stay stable. Totals and
// references travel as sibling keys and are never dropped; when the whole
// encoding exceeds the byte budget, trailing tuples are dropped instead.
package ordermeta

import (
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	KeyItems          = "items"
	KeySubtotal       = "subtotal"
	KeyTax            = "tax"
	KeyShipping       = "shipping"
	KeyDiscount       = "discount"
	KeyTotal          = "total"
	KeyCurrency       = "currency"
	KeyShippingMethod = "shipping_method"
	KeyItemCount      = "item_count"
	KeyAddressID      = "address_id"
	KeyCustomerID     = "customer_id"

	// Sentinel marks an absent variant id, size or color.
	Sentinel = "N/A"

	// DefaultBudget matches the gateway's metadata ceiling in bytes.
	DefaultBudget = 500

	tupleSep    = ","
	fieldSep    = ":"
	tupleFields = 6
)

var attributeReplacer = strings.NewReplacer(tupleSep, "-", fieldSep, "-")

// Metadata is the gateway-facing key/value payload.
type Metadata map[string]string

// Size is the sum of key and value byte lengths, the unit the budget is expressed in.
func (m Metadata) Size() int {
	size := 0
	for k, v := range m {
		size += len(k) + len(v)
	}
	return size
}

// Item is one encoded line.
type Item struct {
	ProductID      int64
	Quantity       int
	UnitPriceCents int64
	VariantID      *int64
	Size           *string
	Color          *string
}

// Order is the buyer-side view the codec encodes.
type Order struct {
	Items          []Item
	SubtotalCents  int64
	TaxCents       int64
	ShippingCents  int64
	DiscountCents  int64
	TotalCents     int64
	Currency       string
	ShippingMethod string
	AddressID      string
	CustomerID     string
}

// Encode renders order into metadata no larger than budget bytes. A
// non-positive budget selects DefaultBudget. Encode fails only when the order
// is invalid or the scalar keys alone cannot fit.
func Encode(order Order, budget int) (Metadata, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if err := validateOrder(order); err != nil {
		return nil, err
	}

	meta := Metadata{
		KeySubtotal:  formatCents(order.SubtotalCents),
		KeyTax:       formatCents(order.TaxCents),
		KeyShipping:  formatCents(order.ShippingCents),
		KeyDiscount:  formatCents(order.DiscountCents),
		KeyTotal:     formatCents(order.TotalCents),
		KeyCurrency:  strings.ToUpper(strings.TrimSpace(order.Currency)),
		KeyItemCount: strconv.Itoa(len(order.Items)),
	}
	setIfPresent(meta, KeyShippingMethod, order.ShippingMethod)
	setIfPresent(meta, KeyAddressID, order.AddressID)
	setIfPresent(meta, KeyCustomerID, order.CustomerID)

	scalarSize := meta.Size()
	if scalarSize > budget {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation,
			"order summary needs %d bytes of metadata but the budget is %d", scalarSize, budget)
	}

	remaining := budget - scalarSize - len(KeyItems)
	var b strings.Builder
	for _, item := range order.Items {
		tuple := encodeTuple(item)
		need := len(tuple)
		if b.Len() > 0 {
			need += len(tupleSep)
		}
		if b.Len()+need > remaining {
			break
		}
		if b.Len() > 0 {
			b.WriteString(tupleSep)
		}
		b.WriteString(tuple)
	}
	if b.Len() > 0 {
		meta[KeyItems] = b.String()
	}
	return meta, nil
}

func validateOrder(order Order) error {
	if strings.TrimSpace(order.Currency) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency is required")
	}
	for _, amount := range []int64{order.SubtotalCents, order.TaxCents, order.ShippingCents, order.DiscountCents, order.TotalCents} {
		if amount < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "order amounts must not be negative")
		}
	}
	for i, item := range order.Items {
		switch {
		case item.ProductID <= 0:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: product id must be positive", i)
		case item.Quantity <= 0:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: quantity must be positive", i)
		case item.UnitPriceCents < 0:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: unit price must not be negative", i)
		case item.VariantID != nil && *item.VariantID <= 0:
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d: variant id must be positive", i)
		}
	}
	return nil
}

func encodeTuple(item Item) string {
	variant := Sentinel
	if item.VariantID != nil {
		variant = strconv.FormatInt(*item.VariantID, 10)
	}
	return strings.Join([]string{
		strconv.FormatInt(item.ProductID, 10),
		strconv.Itoa(item.Quantity),
		strconv.FormatInt(item.UnitPriceCents, 10),
		variant,
		encodeAttribute(item.Size),
		encodeAttribute(item.Color),
	}, fieldSep)
}

func encodeAttribute(value *string) string {
	if value == nil {
		return Sentinel
	}
	clean := strings.TrimSpace(attributeReplacer.Replace(*value))
	if clean == "" {
		return Sentinel
	}
	return clean
}

func formatCents(v int64) string {
	return strconv.FormatInt(v, 10)
}

func setIfPresent(meta Metadata, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		meta[key] = value
	}
}
