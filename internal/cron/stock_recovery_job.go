package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultStockRecoveryGrace = 10 * time.Minute
	defaultStockRecoveryBatch = 50
)

type pendingStockLister interface {
	ListPendingStockAdjustment(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error)
}

type paymentReconciler interface {
	Reconcile(ctx context.Context, ev orders.PaymentEvent) (*orders.Outcome, error)
}

type StockRecoveryJobParams struct {
	Logger     *logger.Logger
	Orders     pendingStockLister
	Reconciler paymentReconciler
	Grace      time.Duration
	BatchSize  int
}

// NewStockRecoveryJob finishes orders whose process died between
// materialization and stock deduction. It replays each order's transaction
// through the reconciler, which resumes from the stored order.
func NewStockRecoveryJob(params StockRecoveryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultStockRecoveryGrace
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStockRecoveryBatch
	}
	return &stockRecoveryJob{
		logg:       params.Logger,
		orders:     params.Orders,
		reconciler: params.Reconciler,
		grace:      grace,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type stockRecoveryJob struct {
	logg       *logger.Logger
	orders     pendingStockLister
	reconciler paymentReconciler
	grace      time.Duration
	batch      int
	now        func() time.Time
}

func (j *stockRecoveryJob) Name() string { return "stock-recovery" }

func (j *stockRecoveryJob) Run(ctx context.Context) (int64, error) {
	pending, err := j.orders.ListPendingStockAdjustment(ctx, j.now().UTC().Add(-j.grace), j.batch)
	if err != nil {
		return 0, fmt.Errorf("list pending orders: %w", err)
	}

	var (
		recovered int64
		errs      error
	)
	for _, order := range pending {
		out, err := j.reconciler.Reconcile(ctx, orders.PaymentEvent{
			TransactionID: order.TransactionID,
			AmountCents:   order.AmountChargedCents,
			Currency:      order.Currency,
			Verified:      true,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.OrderNumber, err))
			continue
		}
		if out.StockAdjusted {
			recovered++
		}
	}
	if len(pending) > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"pending":   len(pending),
			"recovered": recovered,
		}), "recovered orders with pending stock adjustment")
	}
	return recovered, errs
}
