package ordermeta

import (
	"fmt"
	"strconv"
	"strings"
)

// Decoded is the tolerant reading of gateway metadata. Scalars are nil when
// the metadata did not carry them (or carried garbage).
type Decoded struct {
	Items []Item

	SubtotalCents *int64
	TaxCents      *int64
	ShippingCents *int64
	DiscountCents *int64
	TotalCents    *int64

	Currency       string
	ShippingMethod *string
	ItemCount      *int
	AddressID      *string
	CustomerID     *string

	// Truncated is set when fewer tuples decoded than item_count announced.
	Truncated bool
	Warnings  []string
}

// SyntheticItem stands in for the whole order when no tuple survived decoding.
type SyntheticItem struct {
	Description    string
	Quantity       int
	UnitPriceCents int64
}

// Decode never fails: unparsable tuples and scalars are dropped with a warning.
func Decode(meta Metadata) Decoded {
	var out Decoded

	out.SubtotalCents = out.parseAmount(meta, KeySubtotal)
	out.TaxCents = out.parseAmount(meta, KeyTax)
	out.ShippingCents = out.parseAmount(meta, KeyShipping)
	out.DiscountCents = out.parseAmount(meta, KeyDiscount)
	out.TotalCents = out.parseAmount(meta, KeyTotal)

	out.Currency = strings.ToUpper(strings.TrimSpace(meta[KeyCurrency]))
	out.ShippingMethod = optionalString(meta, KeyShippingMethod)
	out.AddressID = optionalString(meta, KeyAddressID)
	out.CustomerID = optionalString(meta, KeyCustomerID)

	if raw, ok := meta[KeyItemCount]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			out.warn("ignored item_count %q", raw)
		} else {
			out.ItemCount = &n
		}
	}

	if raw := strings.TrimSpace(meta[KeyItems]); raw != "" {
		for i, tuple := range strings.Split(raw, tupleSep) {
			item, err := decodeTuple(tuple)
			if err != nil {
				out.warn("dropped tuple %d (%q): %v", i, tuple, err)
				continue
			}
			out.Items = append(out.Items, item)
		}
	}

	if out.ItemCount != nil && len(out.Items) < *out.ItemCount {
		out.Truncated = true
	}
	return out
}

// NeedsFallback reports whether the order must be materialized from a synthetic line.
func (d Decoded) NeedsFallback() bool {
	return len(d.Items) == 0
}

// Degraded reports whether itemization was lost in any way.
func (d Decoded) Degraded() bool {
	return d.Truncated || len(d.Warnings) > 0 || d.NeedsFallback()
}

// Fallback builds the single line recorded when itemization is lost. It is
// priced at the subtotal when known, else at the charged amount net of any
// carried tax, shipping and discount.
func (d Decoded) Fallback(chargedCents int64) SyntheticItem {
	price := chargedCents
	if d.SubtotalCents != nil {
		price = *d.SubtotalCents
	} else {
		price -= deref(d.TaxCents) + deref(d.ShippingCents) - deref(d.DiscountCents)
		if price < 0 {
			price = 0
		}
	}
	desc := "order (itemization unavailable)"
	if d.ItemCount != nil {
		desc = fmt.Sprintf("order with %d items", *d.ItemCount)
	}
	return SyntheticItem{Description: desc, Quantity: 1, UnitPriceCents: price}
}

func (d *Decoded) warn(format string, args ...any) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}

func (d *Decoded) parseAmount(meta Metadata, key string) *int64 {
	raw, ok := meta[key]
	if !ok {
		return nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v < 0 {
		d.warn("ignored %s %q", key, raw)
		return nil
	}
	return &v
}

func optionalString(meta Metadata, key string) *string {
	v := strings.TrimSpace(meta[key])
	if v == "" {
		return nil
	}
	return &v
}

func decodeTuple(tuple string) (Item, error) {
	fields := strings.Split(strings.TrimSpace(tuple), fieldSep)
	if len(fields) != tupleFields {
		return Item{}, fmt.Errorf("expected %d fields, got %d", tupleFields, len(fields))
	}

	productID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || productID <= 0 {
		return Item{}, fmt.Errorf("bad product id %q", fields[0])
	}
	qty, err := strconv.Atoi(fields[1])
	if err != nil || qty <= 0 {
		return Item{}, fmt.Errorf("bad quantity %q", fields[1])
	}
	price, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || price < 0 {
		return Item{}, fmt.Errorf("bad unit price %q", fields[2])
	}

	item := Item{ProductID: productID, Quantity: qty, UnitPriceCents: price}
	if fields[3] != Sentinel {
		variantID, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil || variantID <= 0 {
			return Item{}, fmt.Errorf("bad variant id %q", fields[3])
		}
		item.VariantID = &variantID
	}
	item.Size = decodeAttribute(fields[4])
	item.Color = decodeAttribute(fields[5])
	return item, nil
}

func decodeAttribute(raw string) *string {
	if raw == Sentinel || raw == "" {
		return nil
	}
	return &raw
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
