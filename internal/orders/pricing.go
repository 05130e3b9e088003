package orders

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/internal/ordermeta"
	"github.com/angelmondragon/storefront-backend/pkg/config"
)

// Pricer computes tax and shipping for orders whose metadata omitted them.
type Pricer struct {
	rates                 map[string]decimal.Decimal
	flatShippingCents     int64
	freeShippingThreshold int64
}

// NewPricer builds a Pricer from configuration.
func NewPricer(cfg config.PricingConfig) (*Pricer, error) {
	rates, err := cfg.TaxRateTable()
	if err != nil {
		return nil, err
	}
	return &Pricer{
		rates:                 rates,
		flatShippingCents:     cfg.FlatShippingCents,
		freeShippingThreshold: cfg.FreeShippingThresholdCents,
	}, nil
}

// Tax returns subtotal × rate(country), rounded half-up to whole cents.
func (p *Pricer) Tax(subtotalCents int64, country string) int64 {
	if p == nil || subtotalCents <= 0 {
		return 0
	}
	rate, ok := p.rates[strings.ToUpper(strings.TrimSpace(country))]
	if !ok {
		rate = p.rates[""]
	}
	return decimal.NewFromInt(subtotalCents).Mul(rate).Round(0).IntPart()
}

// Shipping returns the flat rate unless the subtotal reaches the free-shipping
// threshold. A zero threshold disables free shipping.
func (p *Pricer) Shipping(subtotalCents int64) int64 {
	if p == nil {
		return 0
	}
	if p.freeShippingThreshold > 0 && subtotalCents >= p.freeShippingThreshold {
		return 0
	}
	return p.flatShippingCents
}

// Totals are the order amounts in minor units. Computed names the fields
// that were derived rather than carried by the metadata.
type Totals struct {
	SubtotalCents int64
	TaxCents      int64
	ShippingCents int64
	DiscountCents int64
	TotalCents    int64
	Computed      []string
}

// computeTotals prefers metadata values and fills the gaps: subtotal from the
// line totals, tax and shipping from the pricer, total from the parts. When
// itemization was lost and no subtotal was carried, the charged amount is the
// only figure known: it becomes the total and nothing is priced on top.
func computeTotals(decoded ordermeta.Decoded, lineTotal, chargedCents int64, country string, pricer *Pricer) Totals {
	var t Totals
	chargedOnly := decoded.NeedsFallback() && decoded.SubtotalCents == nil
	if chargedOnly {
		pricer = nil
	}

	if decoded.SubtotalCents != nil {
		t.SubtotalCents = *decoded.SubtotalCents
	} else {
		t.SubtotalCents = lineTotal
		t.Computed = append(t.Computed, ordermeta.KeySubtotal)
	}

	if decoded.TaxCents != nil {
		t.TaxCents = *decoded.TaxCents
	} else {
		t.TaxCents = pricer.Tax(t.SubtotalCents, country)
		t.Computed = append(t.Computed, ordermeta.KeyTax)
	}

	if decoded.ShippingCents != nil {
		t.ShippingCents = *decoded.ShippingCents
	} else {
		t.ShippingCents = pricer.Shipping(t.SubtotalCents)
		t.Computed = append(t.Computed, ordermeta.KeyShipping)
	}

	if decoded.DiscountCents != nil {
		t.DiscountCents = *decoded.DiscountCents
	}

	switch {
	case decoded.TotalCents != nil:
		t.TotalCents = *decoded.TotalCents
	case chargedOnly:
		t.TotalCents = chargedCents
		t.Computed = append(t.Computed, ordermeta.KeyTotal)
	default:
		t.TotalCents = t.SubtotalCents + t.TaxCents + t.ShippingCents - t.DiscountCents
		if t.TotalCents < 0 {
			t.TotalCents = 0
		}
		t.Computed = append(t.Computed, ordermeta.KeyTotal)
	}
	return t
}
