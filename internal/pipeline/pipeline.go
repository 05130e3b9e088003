// Package pipeline assembles the payment-to-fulfillment components shared by
// the API server and the cron worker.
package pipeline

import (
	"github.com/angelmondragon/storefront-backend/internal/address"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/variants"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/lookup"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Params wires Build. Sequences, Hub and Metrics are optional: without
// Sequences order numbers use the fallback format, without Hub notifications
// are stored but not pushed. Hub is usually a realtime.Bus so every process
// reaches the operator sessions of every API replica.
type Params struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.Client
	Sequences redis.SequenceStore
	Hub       notifications.Hub
	Metrics   *metrics.PipelineMetrics
}

// Pipeline holds the assembled components.
type Pipeline struct {
	Variants      *variants.Resolver
	Addresses     address.Repository
	Engine        *inventory.Engine
	Notifier      *notifications.Notifier
	Notifications notifications.Repository
	Pricer        *orders.Pricer
	Orders        orders.Repository
	Reconciler    *orders.Reconciler
	OrderService  orders.Service
}

func Build(params Params) (*Pipeline, error) {
	if params.Config == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "config required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database client required")
	}
	cfg := params.Config
	conn := params.DB.DB()
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	policy := lookup.Policy{
		Timeout:  cfg.Reconcile.LookupTimeout,
		Attempts: cfg.Reconcile.LookupAttempts,
		Backoff:  cfg.Reconcile.LookupBackoff,
	}

	resolver, err := variants.NewResolver(variants.NewRepository(conn), policy)
	if err != nil {
		return nil, err
	}

	notifRepo := notifications.NewRepository(conn)
	notifierParams := notifications.NotifierParams{
		Repository:  notifRepo,
		Logger:      logg,
		Metrics:     params.Metrics,
		PushTimeout: cfg.Notifications.PushTimeout,
		Hub:         params.Hub,
	}
	notifier, err := notifications.NewNotifier(notifierParams)
	if err != nil {
		return nil, err
	}

	engine, err := inventory.NewEngine(inventory.EngineParams{
		Resolver:    resolver,
		Store:       inventory.NewStockStore(conn),
		Notifier:    notifier,
		Logger:      logg,
		Metrics:     params.Metrics,
		Concurrency: cfg.Reconcile.DeductionConcurrency,
		Attempts:    cfg.Reconcile.StockUpdateAttempts,
	})
	if err != nil {
		return nil, err
	}

	pricer, err := orders.NewPricer(cfg.Pricing)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "pricing config")
	}

	addrRepo := address.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	reconciler, err := orders.NewReconciler(orders.ReconcilerParams{
		Repository:      ordersRepo,
		Tx:              params.DB,
		Variants:        resolver,
		Addresses:       address.NewResolver(addrRepo, policy, logg),
		Stock:           engine,
		Notifier:        notifier,
		Numbers:         orders.NewNumberGenerator(params.Sequences, logg),
		Pricer:          pricer,
		Logger:          logg,
		Metrics:         params.Metrics,
		DefaultCurrency: cfg.Checkout.DefaultCurrency,
	})
	if err != nil {
		return nil, err
	}

	orderService, err := orders.NewService(ordersRepo, params.DB)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Variants:      resolver,
		Addresses:     addrRepo,
		Engine:        engine,
		Notifier:      notifier,
		Notifications: notifRepo,
		Pricer:        pricer,
		Orders:        ordersRepo,
		Reconciler:    reconciler,
		OrderService:  orderService,
	}, nil
}
