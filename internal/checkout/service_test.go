package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/ordermeta"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/variants"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func strPtr(v string) *string { return &v }

type catalogResolver struct {
	products map[int64]*models.Product
	variants map[int64]*models.InventoryVariant
	err      error
}

func (c *catalogResolver) Resolve(ctx context.Context, ref variants.Ref) (variants.Resolution, error) {
	if c.err != nil {
		return variants.Resolution{}, c.err
	}
	res := variants.Resolution{Product: c.products[ref.ProductID]}
	if ref.VariantID != nil {
		if v, ok := c.variants[*ref.VariantID]; ok && v.ProductID == ref.ProductID {
			res.Variant = v
			return res, nil
		}
	}
	if ref.Size != nil {
		for _, v := range c.variants {
			if v.ProductID == ref.ProductID && v.Size != nil && *v.Size == *ref.Size {
				res.Variant = v
			}
		}
	}
	return res, nil
}

type addressStore map[uuid.UUID]*models.Address

func (a addressStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Address, error) {
	if addr, ok := a[id]; ok {
		return addr, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
}

type fakeStripe struct {
	params *stripe.PaymentIntentParams
	err    error
}

func (f *fakeStripe) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret_abc", Amount: *params.Amount}, nil
}

type fixture struct {
	svc     Service
	stripe  *fakeStripe
	address *models.Address
}

func newFixture(t *testing.T, budget int) *fixture {
	t.Helper()
	addr := &models.Address{ID: uuid.New(), Country: "GB"}
	catalog := &catalogResolver{
		products: map[int64]*models.Product{
			7:  {ID: 7, Name: "Tee", PriceCents: 1500, IsActive: true},
			9:  {ID: 9, Name: "Mug", PriceCents: 2000, IsActive: true},
			11: {ID: 11, Name: "Retired", PriceCents: 100, IsActive: false},
		},
		variants: map[int64]*models.InventoryVariant{
			3: {ID: 3, ProductID: 7, Size: strPtr("M"), Color: strPtr("Red"), Stock: 4},
			4: {ID: 4, ProductID: 7, Size: strPtr("L"), Color: strPtr("Red"), Stock: 0, AllowBackorder: true},
		},
	}
	pricer, err := orders.NewPricer(config.PricingConfig{DefaultTaxRate: "0.1", TaxRates: map[string]string{"GB": "0.2"}, FlatShippingCents: 500})
	require.NoError(t, err)

	fs := &fakeStripe{}
	svc, err := NewService(ServiceParams{
		Variants:  catalog,
		Addresses: addressStore{addr.ID: addr},
		Pricer:    pricer,
		Stripe:    fs,
		Config:    config.CheckoutConfig{MetadataBudgetBytes: budget, DefaultCurrency: "usd"},
	})
	require.NoError(t, err)
	return &fixture{svc: svc, stripe: fs, address: addr}
}

func TestCreateIntent_PricesAndEncodesCart(t *testing.T) {
	f := newFixture(t, 500)
	variantID := int64(3)

	intent, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{
		Items: []LineInput{
			{ProductID: 7, VariantID: &variantID, Quantity: 2},
			{ProductID: 9, Quantity: 1},
		},
		AddressID:      f.address.ID.String(),
		CustomerEmail:  "buyer@example.com",
		IdempotencyKey: "cart-42",
	})
	require.NoError(t, err)

	assert.Equal(t, "pi_123", intent.ID)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)
	assert.EqualValues(t, 5000, intent.SubtotalCents)
	assert.EqualValues(t, 1000, intent.TaxCents)
	assert.EqualValues(t, 500, intent.ShippingCents)
	assert.EqualValues(t, 6500, intent.AmountCents)
	assert.Equal(t, "USD", intent.Currency)
	assert.Equal(t, 2, intent.EncodedItems)
	assert.False(t, intent.Truncated)

	params := f.stripe.params
	require.NotNil(t, params)
	assert.EqualValues(t, 6500, *params.Amount)
	assert.Equal(t, "usd", *params.Currency)
	assert.Equal(t, "buyer@example.com", *params.ReceiptEmail)
	assert.Equal(t, "cart-42", *params.IdempotencyKey)
	assert.Equal(t, "7:2:1500:3:M:Red,9:1:2000:N/A:N/A:N/A", params.Metadata[ordermeta.KeyItems])
	assert.Equal(t, f.address.ID.String(), params.Metadata[ordermeta.KeyAddressID])

	decoded := ordermeta.Decode(ordermeta.Metadata(params.Metadata))
	require.Len(t, decoded.Items, 2)
	assert.EqualValues(t, 6500, *decoded.TotalCents)
}

func TestCreateIntent_ResolvesAttributesAheadOfTime(t *testing.T) {
	f := newFixture(t, 500)
	_, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{
		Items: []LineInput{{ProductID: 7, Size: strPtr("L"), Color: strPtr("Red"), Quantity: 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, "7:3:1500:4:L:Red", f.stripe.params.Metadata[ordermeta.KeyItems])
}

func TestCreateIntent_RejectsInsufficientStock(t *testing.T) {
	f := newFixture(t, 500)
	variantID := int64(3)
	_, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{
		Items: []LineInput{{ProductID: 7, VariantID: &variantID, Quantity: 5}},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	details := pkgerrors.As(err).Details().(map[string]any)
	violations := details["violations"].([]StockViolation)
	require.Len(t, violations, 1)
	assert.Equal(t, 4, violations[0].Available)
	assert.Nil(t, f.stripe.params)
}

func TestCreateIntent_ValidationFailures(t *testing.T) {
	f := newFixture(t, 500)
	cases := map[string]CreateIntentInput{
		"empty cart":       {},
		"zero quantity":    {Items: []LineInput{{ProductID: 7}}},
		"bad address":      {Items: []LineInput{{ProductID: 9, Quantity: 1}}, AddressID: "nope"},
		"unknown address":  {Items: []LineInput{{ProductID: 9, Quantity: 1}}, AddressID: uuid.NewString()},
		"inactive product": {Items: []LineInput{{ProductID: 11, Quantity: 1}}},
		"unknown product":  {Items: []LineInput{{ProductID: 404, Quantity: 1}}},
		"unknown variant":  {Items: []LineInput{{ProductID: 7, Size: strPtr("XXL"), Quantity: 1}}},
		"bad email":        {Items: []LineInput{{ProductID: 9, Quantity: 1}}, CustomerEmail: "not-an-email"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.CreateIntent(context.Background(), input)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
		})
	}
	assert.Nil(t, f.stripe.params)
}

func TestCreateIntent_TruncatesLargeCarts(t *testing.T) {
	f := newFixture(t, 150)
	items := make([]LineInput, 0, 12)
	for i := 0; i < 12; i++ {
		items = append(items, LineInput{ProductID: 9, Quantity: i + 1})
	}
	intent, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{Items: items})
	require.NoError(t, err)
	assert.True(t, intent.Truncated)
	assert.Less(t, intent.EncodedItems, 12)
	assert.Equal(t, "12", f.stripe.params.Metadata[ordermeta.KeyItemCount])
	assert.LessOrEqual(t, intent.Metadata.Size(), 150)
}

func TestCreateIntent_GatewayFailureIsDependency(t *testing.T) {
	f := newFixture(t, 500)
	f.stripe.err = errors.New("stripe unavailable")
	_, err := f.svc.CreateIntent(context.Background(), CreateIntentInput{Items: []LineInput{{ProductID: 9, Quantity: 1}}})
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
}
