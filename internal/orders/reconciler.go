package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/address"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/ordermeta"
	"github.com/angelmondragon/storefront-backend/internal/variants"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// ReconcilerActor is recorded on the history rows the reconciler writes.
const ReconcilerActor = "system:reconciler"

// Stage is a step of the payment-to-order pipeline.
type Stage string

const (
	StageReceived      Stage = "received"
	StageVerified      Stage = "verified"
	StageDeduplicated  Stage = "deduplicated"
	StageDecoded       Stage = "decoded"
	StageResolved      Stage = "resolved"
	StageMaterialized  Stage = "materialized"
	StageStockAdjusted Stage = "stock-adjusted"
	StageNotified      Stage = "notified"
)

// Review reasons recorded on degraded orders.
const (
	ReasonItemizationUnavailable = "itemization unavailable"
	ReasonItemizationTruncated   = "itemization truncated"
	ReasonMetadataWarnings       = "metadata partially unreadable"
	ReasonUnresolvedVariant      = "unresolved variant"
	ReasonUnknownProduct         = "unknown product"
)

// PaymentEvent is a verified "payment succeeded" notification from the gateway.
type PaymentEvent struct {
	TransactionID string `validate:"required,max=255"`
	EventID       string
	AmountCents   int64 `validate:"gte=0"`
	Currency      string
	Method        enums.PaymentMethod
	Metadata      ordermeta.Metadata
	Shipping      *address.GatewayShipping
	CustomerEmail string `validate:"max=320"`
	Verified      bool
}

// ReconcileStatus tells whether this call created the order.
type ReconcileStatus string

const (
	StatusCreated   ReconcileStatus = "created"
	StatusDuplicate ReconcileStatus = "duplicate"
)

// Outcome describes what one Reconcile call did.
type Outcome struct {
	Order         *models.Order
	Status        ReconcileStatus
	Stage         Stage
	StockAdjusted bool
	Deduction     *inventory.Result
	Notifications []notifications.Result
}

// Reconciler turns payment events into exactly one persisted order each.
type Reconciler struct {
	repo      Repository
	tx        txRunner
	resolver  VariantResolver
	addresses *address.Resolver
	stock     StockDeducter
	notifier  Notifier
	numbers   *NumberGenerator
	pricer    *Pricer
	logg      *logger.Logger
	metrics   *metrics.PipelineMetrics
	validate  *validator.Validate
	currency  string
	now       func() time.Time
}

// ReconcilerParams wires a Reconciler. Logger and Metrics are optional.
type ReconcilerParams struct {
	Repository      Repository
	Tx              txRunner
	Variants        VariantResolver
	Addresses       *address.Resolver
	Stock           StockDeducter
	Notifier        Notifier
	Numbers         *NumberGenerator
	Pricer          *Pricer
	Logger          *logger.Logger
	Metrics         *metrics.PipelineMetrics
	DefaultCurrency string
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	switch {
	case params.Repository == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	case params.Variants == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "variant resolver required")
	case params.Addresses == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "address resolver required")
	case params.Stock == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stock deducter required")
	case params.Notifier == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifier required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	numbers := params.Numbers
	if numbers == nil {
		numbers = NewNumberGenerator(nil, logg)
	}
	currency := strings.ToUpper(strings.TrimSpace(params.DefaultCurrency))
	if currency == "" {
		currency = "USD"
	}
	return &Reconciler{
		repo:      params.Repository,
		tx:        params.Tx,
		resolver:  params.Variants,
		addresses: params.Addresses,
		stock:     params.Stock,
		notifier:  params.Notifier,
		numbers:   numbers,
		pricer:    params.Pricer,
		logg:      logg,
		metrics:   params.Metrics,
		validate:  validator.New(),
		currency:  currency,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Reconcile processes one payment event. It is safe to call any number of
// times, concurrently, for the same transaction id. Only persistence failures
// of the order itself are returned as errors (CodeDependency, retryable);
// every other problem degrades the order and is recorded on it.
func (r *Reconciler) Reconcile(ctx context.Context, ev PaymentEvent) (*Outcome, error) {
	start := time.Now()
	ctx = r.logg.WithTransactionID(ctx, ev.TransactionID)

	out, err := r.reconcile(ctx, ev)

	label := "failed"
	if err == nil {
		label = string(out.Status)
	}
	r.metrics.ObserveReconcile(label, time.Since(start))
	if err != nil {
		stage := StageReceived
		if out != nil {
			stage = out.Stage
		}
		r.logg.Error(r.logg.WithField(ctx, "stage", string(stage)), "payment reconciliation failed", err)
	}
	return out, err
}

func (r *Reconciler) reconcile(ctx context.Context, ev PaymentEvent) (*Outcome, error) {
	out := &Outcome{Stage: StageReceived}

	if !ev.Verified {
		return out, pkgerrors.New(pkgerrors.CodeValidation, "payment event is not verified")
	}
	if err := r.validate.Struct(ev); err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment event")
	}
	out.Stage = StageVerified

	// Fast path for redeliveries. The unique constraints below stay the guard.
	existing, err := r.repo.FindByTransactionID(ctx, ev.TransactionID)
	switch {
	case err == nil:
		return r.resume(ctx, out, existing)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup order by transaction")
	}
	out.Stage = StageDeduplicated

	decoded := ordermeta.Decode(ev.Metadata)
	out.Stage = StageDecoded

	order := r.draftOrder(ctx, ev, decoded)
	out.Stage = StageResolved

	if err := r.materialize(ctx, order); err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			r.logg.Info(ctx, "concurrent delivery already materialized the order")
			existing, findErr := r.repo.FindByTransactionID(ctx, ev.TransactionID)
			if findErr != nil {
				return out, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load existing order")
			}
			return r.resume(ctx, out, existing)
		}
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
	}
	out.Order = order
	out.Status = StatusCreated
	out.Stage = StageMaterialized
	for _, reason := range order.ReviewReasons {
		r.metrics.IncDegradation(reasonLabel(reason))
	}

	ctx = r.logg.WithOrderID(ctx, order.ID.String())
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"order_number": order.OrderNumber,
		"total_cents":  order.TotalCents,
		"items":        len(order.Items),
		"needs_review": order.NeedsReview(),
	}), "order materialized")

	return r.finish(ctx, out, order, order.Items)
}

// resume completes the stock and notification steps for an order created by
// an earlier or concurrent delivery.
func (r *Reconciler) resume(ctx context.Context, out *Outcome, order *models.Order) (*Outcome, error) {
	out.Order = order
	out.Status = StatusDuplicate
	out.Stage = StageDeduplicated
	ctx = r.logg.WithOrderID(ctx, order.ID.String())

	items, err := r.repo.FindItems(ctx, order.ID)
	if err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	order.Items = items
	return r.finish(ctx, out, order, items)
}

func (r *Reconciler) finish(ctx context.Context, out *Outcome, order *models.Order, items []models.OrderItem) (*Outcome, error) {
	claimed, err := r.repo.ClaimStockAdjustment(ctx, order.ID, r.now())
	if err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stock adjustment")
	}
	if claimed {
		result := r.stock.Deduct(ctx, deductionRequests(items))
		out.Deduction = &result
		out.StockAdjusted = true
		if len(result.Errors) > 0 {
			r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
				"failed_items": len(result.Errors),
				"errors":       result.Errors,
			}), "stock deduction incomplete")
		}
	}
	out.Stage = StageStockAdjusted

	out.Notifications = append(out.Notifications, r.notify(ctx, orderPlacedDraft(order)))
	if order.NeedsReview() {
		out.Notifications = append(out.Notifications, r.notify(ctx, needsReviewDraft(order)))
	}
	out.Stage = StageNotified
	return out, nil
}

func (r *Reconciler) notify(ctx context.Context, draft notifications.Draft) notifications.Result {
	result := r.notifier.Notify(ctx, draft)
	if result.Outcome == notifications.OutcomeFailed {
		r.logg.Error(r.logg.WithField(ctx, "notification_type", string(draft.Type)), "order notification not recorded", result.Err)
	}
	return result
}

// materialize writes the aggregate. A taken order number is retried once with
// a uuid-derived number.
func (r *Reconciler) materialize(ctx context.Context, order *models.Order) error {
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return r.repo.WithTx(tx).CreateAggregate(ctx, order)
	})
	if !errors.Is(err, ErrDuplicateOrderNumber) {
		return err
	}
	order.OrderNumber = FallbackNumber(r.now(), order.ID)
	return r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return r.repo.WithTx(tx).CreateAggregate(ctx, order)
	})
}

func (r *Reconciler) draftOrder(ctx context.Context, ev PaymentEvent, decoded ordermeta.Decoded) *models.Order {
	var reasons []string

	items, lineTotal, itemReasons := r.buildItems(ctx, decoded, ev.AmountCents)
	reasons = append(reasons, itemReasons...)

	addressID := ""
	if decoded.AddressID != nil {
		addressID = *decoded.AddressID
	}
	addr := r.addresses.Resolve(ctx, address.Input{AddressID: addressID, Gateway: ev.Shipping})
	reasons = append(reasons, addr.Reasons...)

	totals := computeTotals(decoded, lineTotal, ev.AmountCents, addr.Snapshot.Country, r.pricer)
	if totals.TotalCents != ev.AmountCents {
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
			"total_cents":   totals.TotalCents,
			"charged_cents": ev.AmountCents,
			"computed":      totals.Computed,
		}), "order total differs from charged amount")
	}

	currency := decoded.Currency
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(ev.Currency))
	}
	if currency == "" {
		currency = r.currency
	}

	method := ev.Method
	if !method.IsValid() {
		method = enums.PaymentMethodOther
	}

	order := &models.Order{
		OrderNumber:        r.numbers.Next(ctx),
		TransactionID:      ev.TransactionID,
		CustomerID:         decoded.CustomerID,
		CustomerEmail:      optional(ev.CustomerEmail),
		Currency:           currency,
		SubtotalCents:      totals.SubtotalCents,
		TaxCents:           totals.TaxCents,
		ShippingCents:      totals.ShippingCents,
		DiscountCents:      totals.DiscountCents,
		TotalCents:         totals.TotalCents,
		AmountChargedCents: ev.AmountCents,
		ShippingMethod:     decoded.ShippingMethod,
		Status:             enums.OrderStatusPending,
		PaymentStatus:      enums.PaymentStatusPaid,
		Shipping:           addr.Snapshot,
		AddressID:          addr.AddressID,
		AddressSource:      string(addr.Source),
		ReviewReasons:      reasons,
		Items:              items,
		Payments: []models.Payment{{
			TransactionID: ev.TransactionID,
			AmountCents:   ev.AmountCents,
			Currency:      currency,
			Status:        enums.PaymentStatusPaid,
			Method:        method,
		}},
		StatusHistory: []models.OrderStatusEvent{{
			Status: enums.OrderStatusPending,
			Note:   optional(historyNote(reasons)),
			Actor:  ReconcilerActor,
		}},
	}
	return order
}

func (r *Reconciler) buildItems(ctx context.Context, decoded ordermeta.Decoded, chargedCents int64) ([]models.OrderItem, int64, []string) {
	var reasons []string
	if decoded.NeedsFallback() {
		synthetic := decoded.Fallback(chargedCents)
		r.logg.Warn(r.logg.WithField(ctx, "warnings", decoded.Warnings), "no line items decoded, recording synthetic item")
		item := models.OrderItem{
			Description:    synthetic.Description,
			Quantity:       synthetic.Quantity,
			UnitPriceCents: synthetic.UnitPriceCents,
			LineTotalCents: synthetic.UnitPriceCents * int64(synthetic.Quantity),
			Synthetic:      true,
		}
		return []models.OrderItem{item}, item.LineTotalCents, []string{ReasonItemizationUnavailable}
	}

	if decoded.Truncated {
		reasons = append(reasons, fmt.Sprintf("%s: %d of %d items", ReasonItemizationTruncated, len(decoded.Items), *decoded.ItemCount))
	}
	if len(decoded.Warnings) > 0 {
		r.logg.Warn(r.logg.WithField(ctx, "warnings", decoded.Warnings), "metadata decoded with warnings")
		reasons = append(reasons, ReasonMetadataWarnings)
	}

	items := make([]models.OrderItem, 0, len(decoded.Items))
	var lineTotal int64
	for i, in := range decoded.Items {
		productID := in.ProductID
		item := models.OrderItem{
			ProductID:      &productID,
			Size:           in.Size,
			Color:          in.Color,
			Quantity:       in.Quantity,
			UnitPriceCents: in.UnitPriceCents,
			LineTotalCents: in.UnitPriceCents * int64(in.Quantity),
		}

		ref := variants.Ref{ProductID: in.ProductID, VariantID: in.VariantID, Size: in.Size, Color: in.Color}
		res, err := r.resolver.Resolve(ctx, ref)
		if err != nil {
			r.logg.Error(r.logg.WithField(ctx, "ref", ref.String()), "variant lookup failed", err)
		}
		if res.Variant != nil {
			id := res.Variant.ID
			item.VariantID = &id
		} else if in.VariantID != nil || in.Size != nil || in.Color != nil {
			reasons = append(reasons, fmt.Sprintf("%s: item %d", ReasonUnresolvedVariant, i))
		}
		if res.Product == nil && err == nil {
			reasons = append(reasons, fmt.Sprintf("%s: item %d", ReasonUnknownProduct, i))
		}
		item.CostPriceCents = res.CostCents
		item.Description = describe(res.Product, in)

		lineTotal += item.LineTotalCents
		items = append(items, item)
	}
	return items, lineTotal, reasons
}

func deductionRequests(items []models.OrderItem) []inventory.Request {
	requests := make([]inventory.Request, 0, len(items))
	for _, item := range items {
		if item.Synthetic || item.ProductID == nil {
			continue
		}
		requests = append(requests, inventory.Request{
			Ref: variants.Ref{
				ProductID: *item.ProductID,
				VariantID: item.VariantID,
				Size:      item.Size,
				Color:     item.Color,
			},
			Quantity: item.Quantity,
		})
	}
	return requests
}

func orderPlacedDraft(order *models.Order) notifications.Draft {
	link := "/admin/orders/" + order.ID.String()
	return notifications.Draft{
		TargetType: enums.NotificationTargetOrder,
		TargetID:   order.ID.String(),
		Type:       enums.NotificationTypeOrderPlaced,
		Priority:   enums.NotificationPriorityNormal,
		Title:      "New order " + order.OrderNumber,
		Message:    fmt.Sprintf("Order %s was paid: %s %s", order.OrderNumber, formatAmount(order.TotalCents), order.Currency),
		Link:       &link,
		Data: map[string]any{
			"order_id":       order.ID.String(),
			"order_number":   order.OrderNumber,
			"total_cents":    order.TotalCents,
			"currency":       order.Currency,
			"transaction_id": order.TransactionID,
		},
	}
}

func needsReviewDraft(order *models.Order) notifications.Draft {
	link := "/admin/orders/" + order.ID.String()
	return notifications.Draft{
		TargetType: enums.NotificationTargetOrder,
		TargetID:   order.ID.String(),
		Type:       enums.NotificationTypeOrderNeedsReview,
		Priority:   enums.NotificationPriorityHigh,
		Title:      "Order " + order.OrderNumber + " needs review",
		Message:    strings.Join(order.ReviewReasons, "; "),
		Link:       &link,
		Data: map[string]any{
			"order_id": order.ID.String(),
			"reasons":  order.ReviewReasons,
		},
	}
}

func describe(product *models.Product, item ordermeta.Item) string {
	name := "Product #" + strconv.FormatInt(item.ProductID, 10)
	if product != nil && product.Name != "" {
		name = product.Name
	}
	var attrs []string
	if item.Size != nil {
		attrs = append(attrs, *item.Size)
	}
	if item.Color != nil {
		attrs = append(attrs, *item.Color)
	}
	if len(attrs) == 0 {
		return name
	}
	return name + " (" + strings.Join(attrs, " / ") + ")"
}

func historyNote(reasons []string) string {
	if len(reasons) == 0 {
		return "payment received"
	}
	return "payment received; needs review: " + strings.Join(reasons, "; ")
}

// reasonLabel strips per-item detail so metric labels stay bounded.
func reasonLabel(reason string) string {
	if idx := strings.Index(reason, ":"); idx > 0 {
		return reason[:idx]
	}
	return reason
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
