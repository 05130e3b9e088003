// Package checkout prices a buyer's cart and opens the gateway payment that
// later comes back to the reconciler carrying the encoded order.
package checkout

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/ordermeta"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/variants"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type intentCreator interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type variantResolver interface {
	Resolve(ctx context.Context, ref variants.Ref) (variants.Resolution, error)
}

type addressLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Address, error)
}

// Service opens payments for carts.
type Service interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error)
}

// LineInput is one cart line as the storefront submits it.
type LineInput struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	VariantID *int64  `json:"variant_id,omitempty" validate:"omitempty,gt=0"`
	Size      *string `json:"size,omitempty" validate:"omitempty,max=64"`
	Color     *string `json:"color,omitempty" validate:"omitempty,max=64"`
	Quantity  int     `json:"quantity" validate:"required,gt=0,lte=999"`
}

// CreateIntentInput is the cart plus the references the order will need.
type CreateIntentInput struct {
	Items          []LineInput `json:"items" validate:"required,min=1,max=100,dive"`
	AddressID      string      `json:"address_id" validate:"omitempty,uuid"`
	CustomerID     string      `json:"customer_id,omitempty" validate:"omitempty,max=64"`
	CustomerEmail  string      `json:"customer_email,omitempty" validate:"omitempty,email,max=320"`
	ShippingMethod string      `json:"shipping_method,omitempty" validate:"omitempty,max=32"`
	IdempotencyKey string      `json:"-"`
}

// Intent is what the storefront needs to confirm the payment client-side.
type Intent struct {
	ID            string             `json:"id"`
	ClientSecret  string             `json:"client_secret"`
	AmountCents   int64              `json:"amount_cents"`
	Currency      string             `json:"currency"`
	SubtotalCents int64              `json:"subtotal_cents"`
	TaxCents      int64              `json:"tax_cents"`
	ShippingCents int64              `json:"shipping_cents"`
	EncodedItems  int                `json:"encoded_items"`
	Truncated     bool               `json:"truncated"`
	Metadata      ordermeta.Metadata `json:"-"`
}

// StockViolation describes a line the inventory cannot cover.
type StockViolation struct {
	Line      int   `json:"line"`
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id"`
	Available int   `json:"available"`
	Requested int   `json:"requested"`
}

type ServiceParams struct {
	Variants  variantResolver
	Addresses addressLoader
	Pricer    *orders.Pricer
	Stripe    intentCreator
	Config    config.CheckoutConfig
	Logger    *logger.Logger
}

type service struct {
	variants  variantResolver
	addresses addressLoader
	pricer    *orders.Pricer
	stripe    intentCreator
	budget    int
	currency  string
	validate  *validator.Validate
	logg      *logger.Logger
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Variants == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "variant resolver required")
	case params.Addresses == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "address loader required")
	case params.Stripe == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe client required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Config.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}
	return &service{
		variants:  params.Variants,
		addresses: params.Addresses,
		pricer:    params.Pricer,
		stripe:    params.Stripe,
		budget:    params.Config.MetadataBudgetBytes,
		currency:  currency,
		validate:  validator.New(),
		logg:      logg,
	}, nil
}

// CreateIntent prices the cart from the catalog, encodes it into payment
// metadata and creates the PaymentIntent. Nothing is persisted locally; the
// order only exists once the payment succeeds.
func (s *service) CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid checkout request")
	}

	country := ""
	if input.AddressID != "" {
		addr, err := s.addresses.FindByID(ctx, uuid.MustParse(input.AddressID))
		if err != nil {
			if pkgerrors.CodeOf(err) == pkgerrors.CodeNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "address not found")
			}
			return nil, err
		}
		country = addr.Country
	}

	items, subtotal, err := s.priceLines(ctx, input.Items)
	if err != nil {
		return nil, err
	}
	tax := s.pricer.Tax(subtotal, country)
	shipping := s.pricer.Shipping(subtotal)
	total := subtotal + tax + shipping

	meta, err := ordermeta.Encode(ordermeta.Order{
		Items:          items,
		SubtotalCents:  subtotal,
		TaxCents:       tax,
		ShippingCents:  shipping,
		TotalCents:     total,
		Currency:       s.currency,
		ShippingMethod: input.ShippingMethod,
		AddressID:      input.AddressID,
		CustomerID:     input.CustomerID,
	}, s.budget)
	if err != nil {
		return nil, err
	}
	encoded := len(ordermeta.Decode(meta).Items)
	if encoded < len(items) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"items":   len(items),
			"encoded": encoded,
		}), "cart exceeds metadata budget, itemization truncated")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(total),
		Currency: stripe.String(strings.ToLower(s.currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if input.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(input.CustomerEmail)
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}

	pi, err := s.stripe.CreatePaymentIntent(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"payment_intent": pi.ID,
		"amount_cents":   total,
	}), "payment intent created")

	return &Intent{
		ID:            pi.ID,
		ClientSecret:  pi.ClientSecret,
		AmountCents:   total,
		Currency:      s.currency,
		SubtotalCents: subtotal,
		TaxCents:      tax,
		ShippingCents: shipping,
		EncodedItems:  encoded,
		Truncated:     encoded < len(items),
		Metadata:      meta,
	}, nil
}

// priceLines resolves every line against the catalog so the metadata carries
// variant ids the reconciler can use directly.
func (s *service) priceLines(ctx context.Context, lines []LineInput) ([]ordermeta.Item, int64, error) {
	items := make([]ordermeta.Item, 0, len(lines))
	var (
		subtotal   int64
		violations []StockViolation
	)
	for i, line := range lines {
		ref := variants.Ref{ProductID: line.ProductID, VariantID: line.VariantID, Size: line.Size, Color: line.Color}
		res, err := s.variants.Resolve(ctx, ref)
		if err != nil {
			return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve cart line")
		}
		if res.Product == nil || !res.Product.IsActive {
			return nil, 0, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: product %d is not available", i, line.ProductID)
		}
		wantsVariant := line.VariantID != nil || line.Size != nil || line.Color != nil
		if wantsVariant && !res.Resolved() {
			return nil, 0, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: variant not found", i)
		}

		item := ordermeta.Item{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPriceCents: res.Product.PriceCents,
			Size:           line.Size,
			Color:          line.Color,
		}
		if res.Variant != nil {
			id := res.Variant.ID
			item.VariantID = &id
			item.Size = res.Variant.Size
			item.Color = res.Variant.Color
			if res.Variant.Stock < line.Quantity && !res.Variant.AllowBackorder {
				violations = append(violations, StockViolation{
					Line:      i,
					ProductID: line.ProductID,
					VariantID: id,
					Available: res.Variant.Stock,
					Requested: line.Quantity,
				})
			}
		}
		subtotal += item.UnitPriceCents * int64(item.Quantity)
		items = append(items, item)
	}
	if len(violations) > 0 {
		return nil, 0, pkgerrors.Newf(pkgerrors.CodeStateConflict, "insufficient stock for %d line(s)", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
	return items, subtotal, nil
}
