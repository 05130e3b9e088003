package orders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/address"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/ordermeta"
	"github.com/angelmondragon/storefront-backend/internal/variants"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgdb "github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/lookup"
)

type harness struct {
	db         *gorm.DB
	repo       Repository
	reconciler *Reconciler
	service    Service
}

func newHarness(t *testing.T, pricing config.PricingConfig) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	client := pkgdb.NewFromGorm(conn)
	policy := lookup.Policy{Timeout: time.Second, Attempts: 2, Backoff: time.Millisecond}

	resolver, err := variants.NewResolver(variants.NewRepository(conn), policy)
	require.NoError(t, err)

	notifier, err := notifications.NewNotifier(notifications.NotifierParams{Repository: notifications.NewRepository(conn)})
	require.NoError(t, err)

	engine, err := inventory.NewEngine(inventory.EngineParams{
		Resolver: resolver,
		Store:    inventory.NewStockStore(conn),
		Notifier: notifier,
		Backoff:  time.Millisecond,
	})
	require.NoError(t, err)

	pricer, err := NewPricer(pricing)
	require.NoError(t, err)

	repo := NewRepository(conn)
	reconciler, err := NewReconciler(ReconcilerParams{
		Repository: repo,
		Tx:         client,
		Variants:   resolver,
		Addresses:  address.NewResolver(address.NewRepository(conn), policy, nil),
		Stock:      engine,
		Notifier:   notifier,
		Numbers:    NewNumberGenerator(&memorySequence{}, nil),
		Pricer:     pricer,
	})
	require.NoError(t, err)

	svc, err := NewService(repo, client)
	require.NoError(t, err)

	return &harness{db: conn, repo: repo, reconciler: reconciler, service: svc}
}

func (h *harness) count(t *testing.T, model any, where ...any) int64 {
	t.Helper()
	var n int64
	q := h.db.Model(model)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func (h *harness) stock(t *testing.T, variantID int64) int {
	t.Helper()
	var v models.InventoryVariant
	require.NoError(t, h.db.First(&v, variantID).Error)
	return v.Stock
}

// seedCatalog creates product 7 with variant 3 (M/Red) and product 9 without
// variants, plus one stored address.
func (h *harness) seedCatalog(t *testing.T, variantStock int) *models.Address {
	t.Helper()
	size, color := "M", "Red"
	addr := &models.Address{
		FirstName: "Grace", LastName: "Hopper", Line1: "1 Navy Way",
		City: "Arlington", State: "VA", PostalCode: "22202", Country: "US",
	}
	dbtest.MustCreate(t, h.db,
		&models.Product{ID: 7, SKU: "TEE", Name: "Tee", PriceCents: 1500, CostCents: 600},
		&models.Product{ID: 9, SKU: "MUG", Name: "Mug", PriceCents: 2000, CostCents: 800},
		&models.InventoryVariant{ID: 3, ProductID: 7, SKU: "TEE-M-RED", Size: &size, Color: &color, Stock: variantStock, LowStockThreshold: 0},
		addr,
	)
	return addr
}

func twoItemMetadata(t *testing.T, addressID string) ordermeta.Metadata {
	t.Helper()
	size, color := "M", "Red"
	variantID := int64(3)
	meta, err := ordermeta.Encode(ordermeta.Order{
		Items: []ordermeta.Item{
			{ProductID: 7, Quantity: 2, UnitPriceCents: 1500, VariantID: &variantID, Size: &size, Color: &color},
			{ProductID: 9, Quantity: 1, UnitPriceCents: 2000},
		},
		SubtotalCents: 5000,
		TotalCents:    5000,
		Currency:      "usd",
		AddressID:     addressID,
	}, ordermeta.DefaultBudget)
	require.NoError(t, err)
	return meta
}

func paymentEvent(txID string, amount int64, meta ordermeta.Metadata) PaymentEvent {
	return PaymentEvent{
		TransactionID: txID,
		AmountCents:   amount,
		Currency:      "usd",
		Method:        enums.PaymentMethodCard,
		Metadata:      meta,
		CustomerEmail: "buyer@example.com",
		Verified:      true,
	}
}

type memorySequence struct {
	mu   sync.Mutex
	keys map[string]int64
	err  error
}

func (m *memorySequence) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.keys == nil {
		m.keys = map[string]int64{}
	}
	m.keys[key]++
	return m.keys[key], nil
}

func (m *memorySequence) SequenceKey(scope, bucket string) string {
	return scope + ":" + bucket
}
