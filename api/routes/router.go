package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/realtime"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// CacheStore is the Redis surface the HTTP layer needs for replay protection
// and throttling.
type CacheStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(policy, subject string) string
}

type stripeVerifier interface {
	VerifyEvent(payload []byte, signature string) (stripe.Event, error)
}

type webhookGuard interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.ClaimState, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pingers  map[string]controllers.Pinger
	Cache    CacheStore
	Gatherer prometheus.Gatherer

	Checkout      checkoutsvc.Service
	Orders        orders.Service
	Notifications notifications.Service
	Hub           *realtime.Hub

	StripeVerifier stripeVerifier
	StripeWebhook  webhookcontrollers.StripeWebhookService
	WebhookGuard   webhookGuard
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Realtime.AllowedOrigins),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.Checkout.RateLimitWindow,
		cfg.Checkout.RateLimitIPLimit,
		cfg.Checkout.RateLimitEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, d.Pingers))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(d.StripeWebhook, d.StripeVerifier, d.WebhookGuard, logg))
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.With(
			middleware.RateLimit(checkoutPolicy, d.Cache, logg),
			middleware.Idempotency(d.Cache, cfg.Checkout.IdempotencyTTL, logg),
		).Post("/intents", controllers.CreateCheckoutIntent(d.Checkout, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderRef}", controllers.AdminOrderDetail(d.Orders, logg))
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.MemberRoleOwner, enums.MemberRoleAdmin))
				r.Patch("/{orderId}/status", controllers.AdminOrderUpdateStatus(d.Orders, logg))
				r.Patch("/{orderId}/payment-status", controllers.AdminOrderUpdatePaymentStatus(d.Orders, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(d.Notifications, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(d.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(d.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(d.Notifications, logg))
			r.Post("/{notificationId}/archive", controllers.ArchiveNotification(d.Notifications, logg))
			r.Post("/{notificationId}/dismiss", controllers.DismissNotification(d.Notifications, logg))
		})

		r.With(middleware.RequireRole(logg, enums.MemberRoleOwner, enums.MemberRoleAdmin)).
			Get("/realtime", controllers.RealtimeConnect(d.Hub, cfg.Realtime, logg))
	})

	return r
}
