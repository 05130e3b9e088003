package routes

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubOrders struct{}

func (stubOrders) Get(ctx context.Context, ref string) (*models.Order, error) {
	return &models.Order{ID: uuid.New(), OrderNumber: ref}, nil
}

func (stubOrders) UpdateStatus(ctx context.Context, input orders.UpdateStatusInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, Status: input.Status}, nil
}

func (stubOrders) UpdatePaymentStatus(ctx context.Context, input orders.UpdatePaymentStatusInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, PaymentStatus: input.Status}, nil
}

type stubNotifications struct{}

func (stubNotifications) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}
func (stubNotifications) UnreadCount(ctx context.Context) (int64, error)   { return 0, nil }
func (stubNotifications) MarkRead(ctx context.Context, id uuid.UUID) error { return nil }
func (stubNotifications) MarkAllRead(ctx context.Context) (int64, error)   { return 0, nil }
func (stubNotifications) Archive(ctx context.Context, id uuid.UUID) error  { return nil }
func (stubNotifications) Dismiss(ctx context.Context, id uuid.UUID) error  { return nil }

type stubCheckout struct{}

func (stubCheckout) CreateIntent(ctx context.Context, input checkoutsvc.CreateIntentInput) (*checkoutsvc.Intent, error) {
	return &checkoutsvc.Intent{ID: "pi_1"}, nil
}

type rejectingVerifier struct{}

func (rejectingVerifier) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	return stripe.Event{}, pkgerrors.New(pkgerrors.CodeValidation, "bad signature")
}

type stubWebhook struct{}

func (stubWebhook) HandleEvent(ctx context.Context, event *stripe.Event) error { return nil }

type stubGuard struct{}

func (stubGuard) Claim(ctx context.Context, eventID string) (stripewebhook.ClaimState, error) {
	return stripewebhook.ClaimAcquired, nil
}
func (stubGuard) Complete(ctx context.Context, eventID string) error { return nil }
func (stubGuard) Release(ctx context.Context, eventID string) error  { return nil }

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "storefront", ExpirationMinutes: 30},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	metrics.NewPipelineMetrics(reg)
	return NewRouter(Deps{
		Config:         cfg,
		Logger:         logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Pingers:        map[string]controllers.Pinger{"db": stubPinger{}},
		Gatherer:       reg,
		Checkout:       stubCheckout{},
		Orders:         stubOrders{},
		Notifications:  stubNotifications{},
		StripeVerifier: rejectingVerifier{},
		StripeWebhook:  stubWebhook{},
		WebhookGuard:   stubGuard{},
	}), cfg
}

func tokenFor(t *testing.T, cfg *config.Config, role enums.MemberRole) string {
	t.Helper()
	token, err := auth.MintOperatorToken(cfg.JWT, time.Now(), auth.OperatorTokenPayload{OperatorID: uuid.New(), Role: role})
	require.NoError(t, err)
	return token
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouterAdminRequiresToken(t *testing.T) {
	router, cfg := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders/SO-1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders/SO-1", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, cfg, enums.MemberRoleStaff))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterStatusUpdateRequiresAdminRole(t *testing.T) {
	router, cfg := newTestRouter(t)
	path := "/api/admin/v1/orders/" + uuid.NewString() + "/status"

	req := httptest.NewRequest(http.MethodPatch, path, bytes.NewBufferString(`{"status":"approved"}`))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, cfg, enums.MemberRoleStaff))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPatch, path, bytes.NewBufferString(`{"status":"approved"}`))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, cfg, enums.MemberRoleAdmin))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRouterWebhookIsPublicButVerified(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterCheckoutRequiresIdempotencyKey(t *testing.T) {
	router, _ := newTestRouter(t)
	body := `{"items":[{"product_id":7,"quantity":1}]}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/intents", bytes.NewBufferString(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/intents", bytes.NewBufferString(body))
	req.Header.Set("Idempotency-Key", "cart-1")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}
