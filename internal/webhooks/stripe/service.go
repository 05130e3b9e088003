package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/address"
	"github.com/angelmondragon/storefront-backend/internal/ordermeta"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type reconciler interface {
	Reconcile(ctx context.Context, ev orders.PaymentEvent) (*orders.Outcome, error)
}

type ServiceParams struct {
	Reconciler reconciler
	Logger     *logger.Logger
	Metrics    *metrics.PipelineMetrics
}

// Service turns verified Stripe events into reconciler input.
type Service struct {
	reconciler reconciler
	logg       *logger.Logger
	metrics    *metrics.PipelineMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{reconciler: params.Reconciler, logg: logg, metrics: params.Metrics}, nil
}

// HandleEvent processes one event whose signature the caller already
// verified. Unhandled types are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			s.metrics.IncWebhook(string(event.Type), "invalid")
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		ev := PaymentEventFromIntent(event.ID, &intent)
		if _, err := s.reconciler.Reconcile(ctx, ev); err != nil {
			s.metrics.IncWebhook(string(event.Type), "failed")
			return err
		}
		s.metrics.IncWebhook(string(event.Type), "processed")
		return nil
	case stripe.EventTypePaymentIntentPaymentFailed:
		s.logg.Info(ctx, "payment failed, no order created")
		s.metrics.IncWebhook(string(event.Type), "ignored")
		return nil
	default:
		s.metrics.IncWebhook(string(event.Type), "ignored")
		return nil
	}
}

// PaymentEventFromIntent maps a succeeded PaymentIntent onto a reconciler
// event. The intent id is the transaction id.
func PaymentEventFromIntent(eventID string, intent *stripe.PaymentIntent) orders.PaymentEvent {
	amount := intent.AmountReceived
	if amount == 0 {
		amount = intent.Amount
	}
	method := enums.PaymentMethodOther
	if len(intent.PaymentMethodTypes) > 0 {
		method = enums.PaymentMethodFromGateway(intent.PaymentMethodTypes[0])
	}
	if intent.PaymentMethod != nil && intent.PaymentMethod.Type != "" {
		method = enums.PaymentMethodFromGateway(string(intent.PaymentMethod.Type))
	}

	return orders.PaymentEvent{
		TransactionID: intent.ID,
		EventID:       eventID,
		AmountCents:   amount,
		Currency:      strings.ToUpper(string(intent.Currency)),
		Method:        method,
		Metadata:      ordermeta.Metadata(intent.Metadata),
		Shipping:      shippingFromIntent(intent.Shipping),
		CustomerEmail: intent.ReceiptEmail,
		Verified:      true,
	}
}

func shippingFromIntent(details *stripe.ShippingDetails) *address.GatewayShipping {
	if details == nil {
		return nil
	}
	out := &address.GatewayShipping{Name: details.Name, Phone: details.Phone}
	if details.Address != nil {
		out.Line1 = details.Address.Line1
		out.Line2 = details.Address.Line2
		out.City = details.Address.City
		out.State = details.Address.State
		out.PostalCode = details.Address.PostalCode
		out.Country = details.Address.Country
	}
	return out
}
