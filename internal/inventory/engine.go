// Package inventory deducts stock for paid line items and raises low-stock
// alerts.
package inventory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/variants"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultConcurrency = 4
	defaultAttempts    = 5
	defaultBackoff     = 10 * time.Millisecond
)

// Resolver maps a line item reference to an inventory variant.
type Resolver interface {
	Resolve(ctx context.Context, ref variants.Ref) (variants.Resolution, error)
}

// Notifier records low-stock alerts.
type Notifier interface {
	Notify(ctx context.Context, draft notifications.Draft) notifications.Result
}

// Request asks for Quantity units of the referenced variant.
type Request struct {
	Ref      variants.Ref
	Quantity int
}

// Line is one successful deduction.
type Line struct {
	VariantID   int64
	ProductID   int64
	SKU         string
	Quantity    int
	Before      int
	After       int
	Backordered int
}

// Result lists successful deductions in request order. Errors are advisory:
// a failed item never rolls back the others.
type Result struct {
	Deducted []Line
	Errors   []string
	err      error
}

// Err returns the per-item failures combined, or nil.
func (r Result) Err() error {
	return r.err
}

// Engine applies deductions with one atomic decrement per variant.
type Engine struct {
	resolver    Resolver
	store       StockStore
	notifier    Notifier
	logg        *logger.Logger
	metrics     *metrics.PipelineMetrics
	concurrency int
	attempts    int
	backoff     time.Duration
}

// EngineParams wires an Engine. Notifier, Logger and Metrics are optional.
type EngineParams struct {
	Resolver    Resolver
	Store       StockStore
	Notifier    Notifier
	Logger      *logger.Logger
	Metrics     *metrics.PipelineMetrics
	Concurrency int
	Attempts    int
	Backoff     time.Duration
}

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Resolver == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "variant resolver required")
	}
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stock store required")
	}
	e := &Engine{
		resolver:    params.Resolver,
		store:       params.Store,
		notifier:    params.Notifier,
		logg:        params.Logger,
		metrics:     params.Metrics,
		concurrency: params.Concurrency,
		attempts:    params.Attempts,
		backoff:     params.Backoff,
	}
	if e.logg == nil {
		e.logg = logger.Nop()
	}
	if e.concurrency <= 0 {
		e.concurrency = defaultConcurrency
	}
	if e.attempts <= 0 {
		e.attempts = defaultAttempts
	}
	if e.backoff <= 0 {
		e.backoff = defaultBackoff
	}
	return e, nil
}

// Deduct processes every request independently and concurrently.
func (e *Engine) Deduct(ctx context.Context, requests []Request) Result {
	lines := make([]*Line, len(requests))
	errs := make([]error, len(requests))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			line, err := e.deductOne(ctx, req)
			if err != nil {
				errs[i] = fmt.Errorf("item %d (%s): %w", i, req.Ref, err)
				e.metrics.IncDeduction("failed")
				e.logg.Warn(e.logg.WithFields(ctx, map[string]any{
					"item":     i,
					"ref":      req.Ref.String(),
					"quantity": req.Quantity,
					"error":    err.Error(),
				}), "stock deduction failed")
				return nil
			}
			lines[i] = line
			if line.Backordered > 0 {
				e.metrics.IncDeduction("backordered")
			} else {
				e.metrics.IncDeduction("ok")
			}
			return nil
		})
	}
	_ = g.Wait()

	var result Result
	for i := range requests {
		if lines[i] != nil {
			result.Deducted = append(result.Deducted, *lines[i])
		}
		if errs[i] != nil {
			result.Errors = append(result.Errors, errs[i].Error())
			result.err = multierr.Append(result.err, errs[i])
		}
	}
	return result
}

func (e *Engine) deductOne(ctx context.Context, req Request) (*Line, error) {
	if req.Quantity <= 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be positive, got %d", req.Quantity)
	}

	res, err := e.resolver.Resolve(ctx, req.Ref)
	if err != nil {
		return nil, err
	}
	if !res.Resolved() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no matching variant")
	}

	line, err := e.decrement(ctx, res.Variant, req.Quantity)
	if err != nil {
		return nil, err
	}

	if line.After <= res.Variant.LowStockThreshold {
		e.raiseLowStock(ctx, res, line)
	}
	return line, nil
}

// decrement applies the deduction, retrying transient store failures. A
// shortfall or a missing variant is final.
func (e *Engine) decrement(ctx context.Context, variant *models.InventoryVariant, qty int) (*Line, error) {
	var deduction Deduction
	backoff := retry.WithMaxRetries(uint64(e.attempts-1), retry.WithJitterPercent(20, retry.NewExponential(e.backoff)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		d, err := e.store.Decrement(ctx, variant.ID, qty)
		if err != nil {
			if pkgerrors.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		deduction = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Line{
		VariantID:   variant.ID,
		ProductID:   variant.ProductID,
		SKU:         variant.SKU,
		Quantity:    qty,
		Before:      deduction.Before,
		After:       deduction.After,
		Backordered: deduction.Backordered,
	}, nil
}

func (e *Engine) raiseLowStock(ctx context.Context, res variants.Resolution, line *Line) {
	if e.notifier == nil {
		return
	}
	priority := enums.NotificationPriorityHigh
	if line.After == 0 {
		priority = enums.NotificationPriorityUrgent
	}
	name := strconv.FormatInt(line.ProductID, 10)
	if res.Product != nil && res.Product.Name != "" {
		name = res.Product.Name
	}

	draft := notifications.Draft{
		TargetType: enums.NotificationTargetProduct,
		TargetID:   strconv.FormatInt(line.ProductID, 10),
		Type:       enums.NotificationTypeLowStock,
		Priority:   priority,
		Title:      "Low stock",
		Message:    fmt.Sprintf("%s (%s) has %d left", name, line.SKU, line.After),
		// Crossing the threshold from above starts a new low-stock episode,
		// which reopens an alert the operators already handled.
		Rearm: line.Before > res.Variant.LowStockThreshold,
		Data: map[string]any{
			"product_id": line.ProductID,
			"variant_id": line.VariantID,
			"sku":        line.SKU,
			"stock":      line.After,
			"threshold":  res.Variant.LowStockThreshold,
		},
	}
	if result := e.notifier.Notify(ctx, draft); result.Err != nil {
		e.logg.Error(ctx, "low stock notification failed", result.Err)
	}
}
